// Opsloop orchestrator server. Answers operational questions over the
// commerce data plane via the multi-agent reasoning engine and exposes the
// HTTP API with the human approval workflow.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ecomops/opsloop/pkg/agent"
	"github.com/ecomops/opsloop/pkg/api"
	"github.com/ecomops/opsloop/pkg/checkpoint"
	"github.com/ecomops/opsloop/pkg/cleanup"
	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/database"
	"github.com/ecomops/opsloop/pkg/graph"
	"github.com/ecomops/opsloop/pkg/llm"
	"github.com/ecomops/opsloop/pkg/masking"
	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/memory"
	"github.com/ecomops/opsloop/pkg/services"
	"github.com/ecomops/opsloop/pkg/session"
	"github.com/ecomops/opsloop/pkg/slack"
	"github.com/ecomops/opsloop/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	tuningFile := flag.String("config",
		getEnv("CONFIG_FILE", "./config/opsloop.yaml"),
		"Path to the optional engine tuning file")
	flag.Parse()

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, using existing environment", "error", err)
	}

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Load(*tuningFile)
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

	slog.Info("Starting opsloop",
		"version", version.Full(),
		"addr", cfg.Server.Addr(),
		"app_env", cfg.AppEnv)

	// 2. Initialize database (runs core migrations)
	dbConfig, err := database.LoadConfigFromEnv("")
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig, database.SchemaCore)
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

	// 3. System warnings collect degraded-subsystem notices for /health
	warningsService := services.NewSystemWarningsService()

	// 4. LLM client. The engine degrades to keyword planning and template
	// synthesis when no credentials are configured
	llmClient, llmConfigured := llm.NewFromConfig(cfg.LLM, cfg.Embedding)
	if llmConfigured {
		slog.Info("LLM client initialized", "model", cfg.LLM.Model)
	} else {
		slog.Warn("LLM not configured, running with keyword planner and template synthesis")
		warningsService.AddWarning(
			services.WarningCategoryLLMHealth,
			"LLM not configured",
			"set LLM_API_KEY to enable model-driven planning and synthesis",
			"openai",
		)
	}

	// 5. Tool transport client + startup probe. An unreachable tool server is
	// a warning, not a startup failure; it may come up later. Tool results
	// are scrubbed of PII before they enter run state or LLM prompts.
	maskingService := masking.NewService(cfg.Masking)
	if maskingService == nil {
		slog.Warn("Data masking disabled; tool results flow unscrubbed")
	}
	mcpClient := mcp.NewClient(cfg.Transport, maskingService)
	if err := mcpClient.Health(ctx); err != nil {
		slog.Warn("Tool server unreachable at startup", "endpoint", cfg.Transport.Endpoint, "error", err)
		warningsService.AddWarning(
			services.WarningCategoryToolHealth,
			"Tool server unreachable at startup",
			err.Error(),
			"toolserver",
		)
	} else {
		slog.Info("Tool server healthy", "endpoint", cfg.Transport.Endpoint)
	}

	// 6. Domain services
	memoryService := memory.NewService(mcpClient)
	actionService := services.NewPendingActionService(dbClient.DB())
	actionExecutor := services.NewActionExecutor(mcpClient, actionService)
	historyService := services.NewHistoryService(memoryService)
	slog.Info("Services initialized")

	// 7. Checkpoint store for suspended approval threads
	checkpointStore, err := checkpoint.New(cfg.Checkpoint, dbClient.DB())
	if err != nil {
		slog.Error("Failed to initialize checkpoint store", "backend", cfg.Checkpoint.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := checkpointStore.Close(); err != nil {
			slog.Error("Error closing checkpoint store", "error", err)
		}
	}()
	slog.Info("Checkpoint store initialized", "backend", cfg.Checkpoint.Backend)

	// 8. Background retention sweeps
	cleanupService := cleanup.NewService(dbClient.DB(), cfg.Retention, cfg.Checkpoint.TTL)
	cleanupService.Start(ctx)

	// 9. Approval notifications (optional) and the per-thread run guard
	var notifier graph.Notifier
	if slackService := slack.NewService(slack.ServiceConfig{
		Token:        cfg.Slack.Token,
		Channel:      cfg.Slack.Channel,
		DashboardURL: cfg.Slack.DashboardURL,
	}); slackService != nil {
		notifier = slackService
		slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
	} else {
		slog.Info("Slack notifications disabled")
	}
	sessionManager := session.NewManager()

	// 10. Agent registry and reasoning engine
	registry := agent.NewDefaultRegistry(mcpClient, llmClient, memoryService)
	engine := graph.NewEngine(registry, llmClient, checkpointStore, actionService, actionExecutor, memoryService, sessionManager, notifier, cfg.Engine)
	slog.Info("Engine initialized",
		"agents", registry.Names(),
		"max_replans", cfg.Engine.MaxReplans)

	// 11. HTTP server
	apiServer := api.NewServer(engine, actionService, actionExecutor, historyService, warningsService, sessionManager, dbClient)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Opsloop started successfully")

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown; in-flight runs get a grace period to checkpoint
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	cleanupService.Stop()

	slog.Info("Shutdown complete")
}
