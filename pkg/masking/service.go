// Package masking scrubs customer PII and credential material from tool
// results before they are folded into run state or serialized into LLM
// prompts. Regex rules cover the textual shapes (emails, phones, keys);
// code-based maskers handle anything that needs structural validation.
package masking

import (
	"log/slog"
	"sort"

	"github.com/ecomops/opsloop/pkg/config"
)

// Service applies data masking to tool result values. Created once at
// application startup; thread-safe and stateless aside from compiled
// patterns. Nil-safe: all methods on a nil *Service return their input
// unchanged, so callers never branch on whether masking is enabled.
type Service struct {
	patterns []*CompiledPattern
	maskers  []Masker
}

// NewService resolves the configured pattern groups and custom patterns into
// a compiled rule set. Returns nil when masking is disabled. Unknown groups
// and invalid patterns are logged and skipped, never fatal.
func NewService(cfg config.MaskingConfig) *Service {
	if !cfg.Enabled {
		return nil
	}

	groups := cfg.PatternGroups
	if len(groups) == 0 {
		groups = []string{"pii", "credentials"}
	}

	builtin := builtinPatterns()
	groupIndex := builtinGroups()
	seen := make(map[string]bool)
	var resolved []string
	usePII := false

	for _, group := range groups {
		names, ok := groupIndex[group]
		if !ok {
			slog.Warn("Unknown masking pattern group, skipping", "group", group)
			continue
		}
		if group == "pii" {
			usePII = true
		}
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				resolved = append(resolved, name)
			}
		}
	}
	sort.Strings(resolved)

	s := &Service{}
	for _, name := range resolved {
		if p := compilePattern(name, builtin[name]); p != nil {
			s.patterns = append(s.patterns, p)
		}
	}
	for _, custom := range cfg.CustomPatterns {
		p := compilePattern("custom:"+custom.Name, Pattern{
			Pattern:     custom.Pattern,
			Replacement: custom.Replacement,
			Description: custom.Name,
		})
		if p != nil {
			s.patterns = append(s.patterns, p)
		}
	}

	// Card numbers ride with the PII group; they need the Luhn check, not a
	// regex, to stay clear of order and tracking numbers.
	if usePII {
		s.maskers = append(s.maskers, &PaymentCardMasker{})
	}

	slog.Info("Masking service initialized",
		"patterns", len(s.patterns), "code_maskers", len(s.maskers))
	return s
}

// MaskText applies every rule to one string.
func (s *Service) MaskText(text string) string {
	if s == nil || text == "" {
		return text
	}
	for _, m := range s.maskers {
		if m.AppliesTo(text) {
			text = m.Mask(text)
		}
	}
	for _, p := range s.patterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// MaskValue deep-walks a decoded JSON value, masking every string leaf.
// Map keys are schema names, not data, and pass through untouched. Non-string
// scalars are returned as-is so numeric findings stay exact.
func (s *Service) MaskValue(v any) any {
	if s == nil {
		return v
	}
	switch t := v.(type) {
	case string:
		return s.MaskText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = s.MaskValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = s.MaskValue(item)
		}
		return out
	default:
		return v
	}
}

// PatternNames lists the active rule names in application order, for startup
// logging and tests.
func (s *Service) PatternNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.patterns))
	for _, p := range s.patterns {
		names = append(names, p.Name)
	}
	return names
}
