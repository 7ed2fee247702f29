// Package cleanup provides data retention sweeps over the core schema.
package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/ecomops/opsloop/pkg/config"
)

// Service periodically enforces retention policies:
//   - Removes checkpoints whose thread went quiet past the checkpoint TTL
//   - Removes executed and rejected actions past the retention window
//
// Approved-but-unexecuted actions are never swept. All operations are
// idempotent and safe to run from multiple replicas.
type Service struct {
	db            *sql.DB
	retention     config.RetentionConfig
	checkpointTTL time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service over the core schema database.
func NewService(db *sql.DB, retention config.RetentionConfig, checkpointTTL time.Duration) *Service {
	return &Service{
		db:            db,
		retention:     retention,
		checkpointTTL: checkpointTTL,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"checkpoint_ttl", s.checkpointTTL,
		"action_retention_days", s.retention.ActionRetentionDays,
		"interval", s.retention.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.retention.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.sweepExpiredCheckpoints(ctx)
	s.sweepDecidedActions(ctx)
}

// sweepExpiredCheckpoints drops suspended threads nobody resumed within the
// TTL. With the redis backend the table stays empty and this is a no-op.
func (s *Service) sweepExpiredCheckpoints(ctx context.Context) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE updated_at < NOW() - ($1 * INTERVAL '1 second')`,
		s.checkpointTTL.Seconds())
	if err != nil {
		slog.Error("Retention: checkpoint sweep failed", "error", err)
		return
	}
	if count, err := res.RowsAffected(); err == nil && count > 0 {
		slog.Info("Retention: removed expired checkpoints", "count", count)
	}
}

func (s *Service) sweepDecidedActions(ctx context.Context) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_actions
		WHERE status IN ('executed', 'rejected')
		  AND updated_at < NOW() - ($1 * INTERVAL '1 day')`,
		s.retention.ActionRetentionDays)
	if err != nil {
		slog.Error("Retention: action sweep failed", "error", err)
		return
	}
	if count, err := res.RowsAffected(); err == nil && count > 0 {
		slog.Info("Retention: removed decided actions", "count", count)
	}
}
