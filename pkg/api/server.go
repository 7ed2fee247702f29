// Package api is the HTTP surface of the engine: query submission, the
// approval workflow over pending actions, incident history, and health.
package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/ecomops/opsloop/pkg/database"
	"github.com/ecomops/opsloop/pkg/models"
	"github.com/ecomops/opsloop/pkg/services"
	"github.com/ecomops/opsloop/pkg/session"
)

// QueryEngine runs questions through the reasoning loop and resumes suspended
// threads. Implemented by graph.Engine.
type QueryEngine interface {
	Run(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error)
	Resume(ctx context.Context, req models.ResumeRequest) (*models.QueryResponse, error)
}

// ActionService is the approval lifecycle over pending actions.
type ActionService interface {
	ListPending(ctx context.Context) ([]models.PendingAction, error)
	Approve(ctx context.Context, id int64, comment string) (*models.PendingAction, error)
	Reject(ctx context.Context, id int64, comment string) (*models.PendingAction, error)
}

// ActionRunner executes approved actions against the tool server.
type ActionRunner interface {
	ExecuteApproved(ctx context.Context, id int64) (*models.ExecutionResult, error)
}

// HistoryProvider reads the episodic memory store.
type HistoryProvider interface {
	ListIncidents(ctx context.Context, limit, offset int) ([]models.MemoryIncident, int, error)
	Search(ctx context.Context, query string, k int) ([]models.MemoryHit, error)
}

// Server holds the handler dependencies.
type Server struct {
	engine   QueryEngine
	actions  ActionService
	runner   ActionRunner
	history  HistoryProvider
	warnings *services.SystemWarningsService
	sessions *session.Manager
	dbClient *database.Client
	logger   *slog.Logger
}

// NewServer wires the API server over the engine and services. sessions may
// be nil; the runs endpoint then reports an empty list.
func NewServer(engine QueryEngine, actions ActionService, runner ActionRunner, history HistoryProvider, warnings *services.SystemWarningsService, sessions *session.Manager, dbClient *database.Client) *Server {
	if sessions == nil {
		sessions = session.NewManager()
	}
	return &Server{
		engine:   engine,
		actions:  actions,
		runner:   runner,
		history:  history,
		warnings: warnings,
		sessions: sessions,
		dbClient: dbClient,
		logger:   slog.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	r.GET("/health", s.healthHandler)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/query", s.queryHandler)
		v1.POST("/query/resume", s.resumeHandler)
		v1.GET("/runs/active", s.activeRunsHandler)

		v1.GET("/actions/pending", s.pendingActionsHandler)
		v1.POST("/actions/approve/:id", s.approveActionHandler)
		v1.POST("/actions/execute/:id", s.executeActionHandler)

		v1.GET("/history/incidents", s.incidentsHandler)
		v1.GET("/history/incidents/search", s.incidentSearchHandler)
	}

	return r
}
