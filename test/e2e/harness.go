// Package e2e exercises the assembled opsloop stack: a real PostgreSQL
// database (shared testcontainer locally, external service in CI), the real
// tool server over the seeded commerce schema, the reasoning engine, and the
// public HTTP API. Only the language model is scripted; everything else runs
// the production wiring from cmd/opsloop.
package e2e

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ecomops/opsloop/pkg/agent"
	"github.com/ecomops/opsloop/pkg/api"
	"github.com/ecomops/opsloop/pkg/checkpoint"
	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/database"
	"github.com/ecomops/opsloop/pkg/graph"
	"github.com/ecomops/opsloop/pkg/llm"
	"github.com/ecomops/opsloop/pkg/masking"
	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/memory"
	"github.com/ecomops/opsloop/pkg/models"
	"github.com/ecomops/opsloop/pkg/services"
	"github.com/ecomops/opsloop/pkg/session"
	"github.com/ecomops/opsloop/pkg/toolserver"
)

// testToolAPIKey is the bearer key the harness tool server expects.
const testToolAPIKey = "e2e-tool-key"

var (
	// Shared connection string for all tests in local dev.
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// TestApp is one fully wired opsloop instance under test.
type TestApp struct {
	T        *testing.T
	BaseURL  string // engine API root, e.g. http://127.0.0.1:43210
	ToolsURL string // tool server root

	DB       *sql.DB
	Actions  *services.PendingActionService
	Sessions *session.Manager
	Notifier *RecordingNotifier
	Memory   *memory.Service

	httpClient *http.Client
}

type appConfig struct {
	llmClient    llm.Client
	engine       config.EngineConfig
	toolServerUp bool
	transportKey string
}

// TestAppOption customizes NewTestApp.
type TestAppOption func(*appConfig)

// WithLLMClient injects the scripted model for the run.
func WithLLMClient(c llm.Client) TestAppOption {
	return func(cfg *appConfig) { cfg.llmClient = c }
}

// WithEngineConfig overrides the engine tuning.
func WithEngineConfig(engine config.EngineConfig) TestAppOption {
	return func(cfg *appConfig) { cfg.engine = engine }
}

// WithToolServerDown skips the tool server and points the transport at a
// closed port, so every tool invocation fails with a connection error.
func WithToolServerDown() TestAppOption {
	return func(cfg *appConfig) { cfg.toolServerUp = false }
}

// WithTransportAPIKey overrides the bearer key the engine presents to the
// tool server. A wrong key makes every invocation fail with HTTP 401.
func WithTransportAPIKey(key string) TestAppOption {
	return func(cfg *appConfig) { cfg.transportKey = key }
}

// defaultEngineConfig mirrors the production defaults with retry delays
// trimmed so failure scenarios stay fast.
func defaultEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxReplans:       2,
		RetryAttempts:    2,
		RetryDelay:       20 * time.Millisecond,
		ToolTimeout:      10 * time.Second,
		RunTimeout:       time.Minute,
		MemoryTopK:       3,
		MemoryConfidence: 0.7,
	}
}

// NewTestApp assembles the full stack against a fresh database schema.
// Resources are released through t.Cleanup in reverse start order.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	cfg := &appConfig{
		engine:       defaultEngineConfig(),
		toolServerUp: true,
		transportKey: testToolAPIKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.llmClient == nil {
		// No scripted model given: run with the disabled client, which makes
		// the planner fall back to keyword rules and the synthesizer to the
		// deterministic template.
		cfg.llmClient, _ = llm.NewFromConfig(config.LLMConfig{}, config.EmbeddingConfig{})
	}

	db := newSchemaDB(t)
	require.NoError(t, database.Migrate(db, "e2e", database.SchemaCore))
	require.NoError(t, database.Migrate(db, "e2e", database.SchemaTools))

	// Tool server over the commerce schema, deterministic embeddings so
	// memory similarity is stable without a model.
	toolsURL := "http://127.0.0.1:9" // closed port, connection refused
	if cfg.toolServerUp {
		registry := toolserver.NewRegistry(db, toolserver.NewDeterministicEmbedder(64))
		toolSrv := httptest.NewServer(toolserver.NewServer(registry, testToolAPIKey).Router())
		t.Cleanup(toolSrv.Close)
		toolsURL = toolSrv.URL
	}

	masker := masking.NewService(config.MaskingConfig{Enabled: true})
	invoker := mcp.NewClient(config.TransportConfig{
		Endpoint: toolsURL,
		APIKey:   cfg.transportKey,
		Timeout:  10 * time.Second,
	}, masker)

	memoryService := memory.NewService(invoker)
	actionService := services.NewPendingActionService(db)
	executor := services.NewActionExecutor(invoker, actionService)
	historyService := services.NewHistoryService(memoryService)
	warnings := services.NewSystemWarningsService()

	sessions := session.NewManager()
	notifier := &RecordingNotifier{}

	agents := agent.NewDefaultRegistry(invoker, cfg.llmClient, memoryService)
	engine := graph.NewEngine(agents, cfg.llmClient, checkpoint.NewPostgresStore(db),
		actionService, executor, memoryService, sessions, notifier, cfg.engine)

	apiServer := api.NewServer(engine, actionService, executor, historyService,
		warnings, sessions, database.NewClientFromDB(db))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpServer := &http.Server{Handler: apiServer.Router()}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			t.Logf("api server: %v", err)
		}
	}()
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})

	return &TestApp{
		T:          t,
		BaseURL:    "http://" + listener.Addr().String(),
		ToolsURL:   toolsURL,
		DB:         db,
		Actions:    actionService,
		Sessions:   sessions,
		Notifier:   notifier,
		Memory:     memoryService,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// newSchemaDB returns a pool bound to a fresh schema on the shared database,
// dropped again when the test ends. Per-test schemas keep parallel tests and
// CI reruns from seeing each other's rows.
func newSchemaDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	connStr := baseConnString(t)
	schemaName := generateSchemaName(t)

	admin, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName))
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	db, err := sql.Open("pgx", addSearchPath(connStr, schemaName))
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	t.Cleanup(func() {
		_, err := db.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
		if err != nil {
			t.Logf("drop schema %s: %v", schemaName, err)
		}
		_ = db.Close()
	})
	return db
}

// baseConnString returns the shared database connection string. In CI
// (CI_DATABASE_URL set) it is the external service container; locally one
// testcontainer is started for the whole package.
func baseConnString(t *testing.T) string {
	if ciDatabaseURL := os.Getenv("CI_DATABASE_URL"); ciDatabaseURL != "" {
		return ciDatabaseURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer")

		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		// The container serves every test in the package; the process exit
		// reaps it, so no per-test termination here.
		sharedConnStr, containerErr = pgContainer.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr)
	return sharedConnStr
}

// generateSchemaName derives a unique schema identifier from the test name.
func generateSchemaName(t *testing.T) string {
	name := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.ToLower(t.Name()))
	if len(name) > 40 {
		name = name[:40]
	}

	suffix := make([]byte, 4)
	_, err := rand.Read(suffix)
	require.NoError(t, err)
	return fmt.Sprintf("e2e_%s_%s", name, hex.EncodeToString(suffix))
}

func addSearchPath(connStr, schemaName string) string {
	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%ssearch_path=%s", connStr, separator, schemaName)
}

// RecordingNotifier captures approval-gate notifications for assertions.
// It satisfies graph.Notifier.
type RecordingNotifier struct {
	mu       sync.Mutex
	requests []ApprovalNotice
	resumes  []ResumeNotice
}

// ApprovalNotice is one ApprovalRequested call.
type ApprovalNotice struct {
	ThreadID string
	Question string
	Actions  []models.PendingAction
}

// ResumeNotice is one RunResumed call.
type ResumeNotice struct {
	ThreadID string
	Executed int
	Failed   int
}

func (n *RecordingNotifier) ApprovalRequested(_ context.Context, threadID, question string, actions []models.PendingAction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, ApprovalNotice{ThreadID: threadID, Question: question, Actions: actions})
}

func (n *RecordingNotifier) RunResumed(_ context.Context, threadID string, executed, failed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resumes = append(n.resumes, ResumeNotice{ThreadID: threadID, Executed: executed, Failed: failed})
}

// ApprovalRequests returns a snapshot of recorded approval notifications.
func (n *RecordingNotifier) ApprovalRequests() []ApprovalNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ApprovalNotice, len(n.requests))
	copy(out, n.requests)
	return out
}

// ResumeNotices returns a snapshot of recorded resume notifications.
func (n *RecordingNotifier) ResumeNotices() []ResumeNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ResumeNotice, len(n.resumes))
	copy(out, n.resumes)
	return out
}

var _ graph.Notifier = (*RecordingNotifier)(nil)
