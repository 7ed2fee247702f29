package masking

import (
	"log/slog"
	"regexp"
)

// Pattern is one named regex rule: anything the regex matches is replaced
// wholesale with the replacement string.
type Pattern struct {
	Pattern     string
	Replacement string
	Description string
}

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPatterns returns the stock masking rules. Commerce tool results
// carry customer contact details (ticket subjects, order notes) and the
// occasional credential pasted into a support thread; both are scrubbed
// before the data reaches run state or an LLM prompt.
func builtinPatterns() map[string]Pattern {
	return map[string]Pattern{
		"email": {
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Replacement: `__MASKED_EMAIL__`,
			Description: "Email addresses",
		},
		"phone": {
			Pattern:     `(?:\+\d{1,3}[ .-]?)?\(?\d{3}\)?[ .-]\d{3}[ .-]\d{4}\b`,
			Replacement: `__MASKED_PHONE__`,
			Description: "Phone numbers with separators",
		},
		"api_key": {
			Pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`,
			Replacement: `"api_key": "__MASKED_API_KEY__"`,
			Description: "API keys",
		},
		"token": {
			Pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"token": "__MASKED_TOKEN__"`,
			Description: "Access tokens",
		},
		"password": {
			Pattern:     `(?i)(?:password|passwd|pwd)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
			Replacement: `"password": "__MASKED_PASSWORD__"`,
			Description: "Passwords",
		},
	}
}

// builtinGroups returns predefined groups of masking rules. The card group
// is code-based (see PaymentCardMasker); regex alone cannot tell a card
// number from an order id.
func builtinGroups() map[string][]string {
	return map[string][]string{
		"pii":         {"email", "phone"},
		"credentials": {"api_key", "token", "password"},
	}
}

// compilePattern compiles one rule, returning nil when the expression is
// invalid so a bad custom pattern degrades to a log line instead of a crash.
func compilePattern(name string, p Pattern) *CompiledPattern {
	compiled, err := regexp.Compile(p.Pattern)
	if err != nil {
		slog.Error("Failed to compile masking pattern, skipping",
			"pattern", name, "error", err)
		return nil
	}
	return &CompiledPattern{
		Name:        name,
		Regex:       compiled,
		Replacement: p.Replacement,
		Description: p.Description,
	}
}
