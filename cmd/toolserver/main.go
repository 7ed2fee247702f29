// Toolserver is the HTTP tool plane. Exposes the commerce read/write tools
// and the incident memory store over POST /invoke for the orchestrator's
// agents.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/database"
	"github.com/ecomops/opsloop/pkg/llm"
	"github.com/ecomops/opsloop/pkg/toolserver"
	"github.com/ecomops/opsloop/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, using existing environment", "error", err)
	}

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	addr := net.JoinHostPort(
		getEnv("TOOLSERVER_HOST", "0.0.0.0"),
		getEnv("TOOLSERVER_PORT", "8090"),
	)
	slog.Info("Starting toolserver",
		"version", version.Full(),
		"addr", addr,
		"app_env", cfg.AppEnv)

	// 2. Initialize database (runs tools migrations, including the data seed).
	// With TOOLS_DB_* unset this shares the orchestrator's database.
	dbConfig, err := database.LoadConfigFromEnv("TOOLS_")
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig, database.SchemaTools)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database", "database", dbConfig.Database)

	// 3. Embedder for the incident memory tools. Without LLM credentials the
	// deterministic hash embedder keeps save/query working offline.
	var embedder toolserver.Embedder
	if openaiClient, err := llm.NewOpenAIClient(cfg.LLM, cfg.Embedding); err == nil {
		embedder = toolserver.NewEmbedder(openaiClient, cfg.Embedding.Dimension)
		slog.Info("Embeddings client initialized", "model", cfg.Embedding.Model)
	} else {
		embedder = toolserver.NewDeterministicEmbedder(cfg.Embedding.Dimension)
		slog.Warn("LLM not configured, using deterministic embeddings", "error", err)
	}

	// 4. Tool registry and HTTP server
	registry := toolserver.NewRegistry(dbClient.DB(), embedder)
	server := toolserver.NewServer(registry, cfg.Transport.APIKey)
	slog.Info("Tool registry initialized", "tools", registry.Len())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Toolserver started successfully")

	// 5. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 6. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
