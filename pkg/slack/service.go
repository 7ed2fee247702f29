package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecomops/opsloop/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service handles Slack notification delivery for the approval workflow.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// ApprovalRequested announces a run that suspended with proposed actions.
// Fail-open: errors are logged, never returned.
func (s *Service) ApprovalRequested(ctx context.Context, threadID, question string, actions []models.PendingAction) {
	if s == nil {
		return
	}

	blocks := BuildApprovalRequestMessage(threadID, question, actions, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("Failed to send approval notification",
			"thread_id", threadID,
			"pending_actions", len(actions),
			"error", err)
	}
}

// RunResumed reports the outcome of a resumed run. Posted as a threaded
// reply under the approval request when that message can still be found in
// channel history, standalone otherwise. Fail-open: errors are logged,
// never returned.
func (s *Service) RunResumed(ctx context.Context, threadID string, executed, failed int) {
	if s == nil {
		return
	}

	threadTS, err := s.client.FindRunMessage(ctx, threadID)
	if err != nil {
		s.logger.Warn("Failed to find approval message for thread",
			"thread_id", threadID,
			"error", err)
	}

	blocks := BuildRunResumedMessage(threadID, executed, failed)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send resume notification",
			"thread_id", threadID,
			"error", err)
	}
}
