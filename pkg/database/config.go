package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadConfigFromEnv loads database configuration from environment variables.
// With prefix "TOOLS_" it reads TOOLS_DB_* first and falls back to the plain
// DB_* values, so single-database deployments configure one set of vars.
func LoadConfigFromEnv(prefix string) (Config, error) {
	port, err := strconv.Atoi(envOrDefault(prefix, "DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %sDB_PORT: %w", prefix, err)
	}

	maxOpen, _ := strconv.Atoi(envOrDefault(prefix, "DB_MAX_OPEN_CONNS", "10"))
	maxIdle, _ := strconv.Atoi(envOrDefault(prefix, "DB_MAX_IDLE_CONNS", "5"))

	return Config{
		Host:            envOrDefault(prefix, "DB_HOST", "localhost"),
		Port:            port,
		User:            envOrDefault(prefix, "DB_USER", "opsloop"),
		Password:        envOrDefault(prefix, "DB_PASSWORD", ""),
		Database:        envOrDefault(prefix, "DB_NAME", "opsloop"),
		SSLMode:         envOrDefault(prefix, "DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}, nil
}

func envOrDefault(prefix, key, defaultVal string) string {
	if prefix != "" {
		if val := os.Getenv(prefix + key); val != "" {
			return val
		}
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
