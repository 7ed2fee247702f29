package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// engineTuning is the YAML shape of the engine section in the tuning file.
// Durations are strings ("1s", "250ms") parsed at resolve time.
type engineTuning struct {
	MaxReplans       int     `yaml:"max_replans"`
	RetryAttempts    int     `yaml:"retry_attempts"`
	RetryDelay       string  `yaml:"retry_delay"`
	ToolTimeout      string  `yaml:"tool_timeout"`
	RunTimeout       string  `yaml:"run_timeout"`
	MemoryTopK       int     `yaml:"memory_top_k"`
	MemoryConfidence float64 `yaml:"memory_confidence"`
}

// maskingTuning is the YAML shape of the masking section. Enabled is a
// pointer so an absent key keeps the env-derived value.
type maskingTuning struct {
	Enabled        *bool                  `yaml:"enabled"`
	PatternGroups  []string               `yaml:"pattern_groups"`
	CustomPatterns []CustomMaskingPattern `yaml:"custom_patterns"`
}

// tuningFile is the optional YAML overlay. Only engine and masking settings
// are tunable by file; everything credential-like stays in the environment.
type tuningFile struct {
	Engine  engineTuning  `yaml:"engine"`
	Masking maskingTuning `yaml:"masking"`
}

// Load builds the configuration: environment first, then the optional YAML
// tuning file at path layered over the engine defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := applyTuningFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyTuningFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No tuning file, using defaults", "path", path)
			return nil
		}
		return fmt.Errorf("reading tuning file %s: %w", path, err)
	}

	var tf tuningFile
	if err := yaml.Unmarshal(ExpandEnv(data), &tf); err != nil {
		return fmt.Errorf("parsing tuning file %s: %w", path, err)
	}

	override := EngineConfig{
		MaxReplans:       tf.Engine.MaxReplans,
		RetryAttempts:    tf.Engine.RetryAttempts,
		MemoryTopK:       tf.Engine.MemoryTopK,
		MemoryConfidence: tf.Engine.MemoryConfidence,
	}
	// Non-zero file values win; zero values leave the defaults in place.
	if err := mergo.Merge(&cfg.Engine, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging tuning file %s: %w", path, err)
	}

	applyDuration(&cfg.Engine.RetryDelay, tf.Engine.RetryDelay, "retry_delay")
	applyDuration(&cfg.Engine.ToolTimeout, tf.Engine.ToolTimeout, "tool_timeout")
	applyDuration(&cfg.Engine.RunTimeout, tf.Engine.RunTimeout, "run_timeout")

	if tf.Masking.Enabled != nil {
		cfg.Masking.Enabled = *tf.Masking.Enabled
	}
	if len(tf.Masking.PatternGroups) > 0 {
		cfg.Masking.PatternGroups = tf.Masking.PatternGroups
	}
	cfg.Masking.CustomPatterns = append(cfg.Masking.CustomPatterns, tf.Masking.CustomPatterns...)

	slog.Info("Applied tuning file", "path", path)
	return nil
}

// applyDuration parses a duration string into dst, keeping the existing
// value and warning when the string is invalid.
func applyDuration(dst *time.Duration, raw, field string) {
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in tuning file, using default",
			"field", field, "value", raw, "default", *dst, "error", err)
		return
	}
	*dst = d
}
