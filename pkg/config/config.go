// Package config loads the process configuration: environment variables
// first, with an optional YAML tuning file layered over engine defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string
	Port int
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LLMConfig holds chat-completion endpoint settings. When Deployment is set
// the client speaks the Azure-style deployment API; otherwise Model is used
// against a plain OpenAI-compatible endpoint.
type LLMConfig struct {
	Endpoint    string
	APIKey      string
	Deployment  string
	APIVersion  string
	Model       string
	Temperature float32
}

// TransportConfig holds tool-transport client settings.
type TransportConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// EmbeddingConfig holds embedding model settings for the memory tools.
type EmbeddingConfig struct {
	Model     string
	Dimension int
}

// CheckpointConfig selects and configures the checkpoint backend.
type CheckpointConfig struct {
	Backend  string // "memory", "postgres" or "redis"
	RedisURL string
	TTL      time.Duration
}

// RetentionConfig tunes the background cleanup sweeps. Checkpoint expiry
// follows CheckpointConfig.TTL; this covers everything else.
type RetentionConfig struct {
	CleanupInterval     time.Duration
	ActionRetentionDays int
}

// EngineConfig holds orchestration tuning. Values here may be overridden by
// the optional YAML tuning file (see Load).
type EngineConfig struct {
	MaxReplans       int           `yaml:"max_replans"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	RunTimeout       time.Duration `yaml:"run_timeout"` // 0 = no run-level deadline
	MemoryTopK       int           `yaml:"memory_top_k"`
	MemoryConfidence float64       `yaml:"memory_confidence"`
}

// CustomMaskingPattern is an operator-supplied masking rule from the tuning
// file, applied after the builtin groups.
type CustomMaskingPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MaskingConfig controls scrubbing of tool results before they enter run
// state or LLM prompts. Enabled by default; pattern groups default to
// pii + credentials when none are named.
type MaskingConfig struct {
	Enabled        bool
	PatternGroups  []string
	CustomPatterns []CustomMaskingPattern
}

// SlackConfig holds the optional notification channel for approval gates.
// Empty token disables notifications entirely.
type SlackConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Config is the immutable top-level configuration, constructed once at
// startup and passed into every component that needs it.
type Config struct {
	AppEnv               string
	LogLevel             string
	ObservabilityProject string
	Server               ServerConfig
	Engine               EngineConfig
	LLM                  LLMConfig
	Transport            TransportConfig
	Embedding            EmbeddingConfig
	Checkpoint           CheckpointConfig
	Retention            RetentionConfig
	Masking              MaskingConfig
	Slack                SlackConfig
}

// DefaultEngine returns the canonical engine tuning.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		MaxReplans:       2,
		RetryAttempts:    2,
		RetryDelay:       time.Second,
		ToolTimeout:      15 * time.Second,
		MemoryTopK:       3,
		MemoryConfidence: 0.7,
	}
}

// LoadFromEnv builds the configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	temp, err := parseFloat32(getEnvOrDefault("LLM_TEMPERATURE", "0.2"))
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TEMPERATURE: %w", err)
	}

	dim, err := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSION", "1536"))
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_DIMENSION: %w", err)
	}

	toolTimeout, err := parseDurationOrSeconds(getEnvOrDefault("MCP_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MCP_TIMEOUT: %w", err)
	}

	checkpointTTL, err := parseDurationOrSeconds(getEnvOrDefault("CHECKPOINT_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKPOINT_TTL: %w", err)
	}

	cleanupInterval, err := parseDurationOrSeconds(getEnvOrDefault("CLEANUP_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_INTERVAL: %w", err)
	}

	retentionDays, err := strconv.Atoi(getEnvOrDefault("ACTION_RETENTION_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACTION_RETENTION_DAYS: %w", err)
	}

	maskingEnabled, err := strconv.ParseBool(getEnvOrDefault("MASKING_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid MASKING_ENABLED: %w", err)
	}

	cfg := &Config{
		AppEnv:               getEnvOrDefault("APP_ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		ObservabilityProject: os.Getenv("OBSERVABILITY_PROJECT"),
		Server: ServerConfig{
			Host: getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Engine: DefaultEngine(),
		LLM: LLMConfig{
			Endpoint:    os.Getenv("LLM_ENDPOINT"),
			APIKey:      os.Getenv("LLM_API_KEY"),
			Deployment:  os.Getenv("LLM_DEPLOYMENT"),
			APIVersion:  getEnvOrDefault("LLM_API_VERSION", "2024-02-01"),
			Model:       getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			Temperature: temp,
		},
		Transport: TransportConfig{
			Endpoint: getEnvOrDefault("MCP_ENDPOINT", "http://localhost:8090"),
			APIKey:   os.Getenv("MCP_API_KEY"),
			Timeout:  toolTimeout,
		},
		Embedding: EmbeddingConfig{
			Model:     getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: dim,
		},
		Checkpoint: CheckpointConfig{
			Backend:  getEnvOrDefault("CHECKPOINT_BACKEND", "postgres"),
			RedisURL: getEnvOrDefault("CHECKPOINT_REDIS_URL", "redis://localhost:6379"),
			TTL:      checkpointTTL,
		},
		Retention: RetentionConfig{
			CleanupInterval:     cleanupInterval,
			ActionRetentionDays: retentionDays,
		},
		Masking: MaskingConfig{
			Enabled:       maskingEnabled,
			PatternGroups: []string{"pii", "credentials"},
		},
		Slack: SlackConfig{
			Token:        os.Getenv("SLACK_TOKEN"),
			Channel:      getEnvOrDefault("SLACK_CHANNEL", "#ops-approvals"),
			DashboardURL: os.Getenv("DASHBOARD_URL"),
		},
	}
	cfg.Engine.ToolTimeout = toolTimeout

	return cfg, nil
}

// Validate checks settings that have no usable zero value.
func (c *Config) Validate() error {
	switch c.Checkpoint.Backend {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	if c.Engine.MaxReplans < 0 {
		return fmt.Errorf("max_replans must be >= 0, got %d", c.Engine.MaxReplans)
	}
	if c.Engine.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be >= 1, got %d", c.Engine.RetryAttempts)
	}
	if c.Retention.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", c.Retention.CleanupInterval)
	}
	if c.Retention.ActionRetentionDays < 1 {
		return fmt.Errorf("action retention must be >= 1 day, got %d", c.Retention.ActionRetentionDays)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	return float32(f), err
}

// parseDurationOrSeconds accepts either a Go duration ("15s") or a bare
// number of seconds ("15").
func parseDurationOrSeconds(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor seconds", s)
	}
	return time.Duration(secs) * time.Second, nil
}
