// Package services holds the persistence and execution layer between the
// engine, the HTTP API, and the tool transport: pending-action lifecycle,
// approved-action execution, incident history, and transient system warnings.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ecomops/opsloop/pkg/models"
)

const pendingActionColumns = `id, agent_name, action_type, payload, reasoning, status, comment, result, created_at, updated_at`

// PendingActionService owns the pending_actions table: inserts from the
// engine's approval gate and the pending → approved → executed / rejected
// lifecycle driven by humans.
type PendingActionService struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPendingActionService wraps the shared database handle.
func NewPendingActionService(db *sql.DB) *PendingActionService {
	return &PendingActionService{db: db, logger: slog.With("service", "pending_actions")}
}

// Create inserts a new pending action row. A blank status defaults to
// pending.
func (s *PendingActionService) Create(ctx context.Context, req models.CreatePendingActionRequest) (*models.PendingAction, error) {
	if strings.TrimSpace(req.ActionType) == "" {
		return nil, &ValidationError{Field: "action_type", Message: "must not be empty"}
	}
	status := req.Status
	if status == "" {
		status = models.ActionPending
	}
	agent := req.Agent
	if agent == "" {
		agent = "system"
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", req.ActionType, err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO pending_actions (agent_name, action_type, payload, reasoning, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+pendingActionColumns,
		agent, req.ActionType, data, req.Reasoning, status)
	action, err := scanPendingAction(row)
	if err != nil {
		return nil, fmt.Errorf("insert pending action %s: %w", req.ActionType, err)
	}
	s.logger.Info("Pending action created",
		"action_id", action.ID, "agent", action.Agent, "action_type", action.ActionType, "status", action.Status)
	return action, nil
}

// Get loads one action by ID.
func (s *PendingActionService) Get(ctx context.Context, id int64) (*models.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pendingActionColumns+` FROM pending_actions WHERE id = $1`, id)
	action, err := scanPendingAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load action %d: %w", id, err)
	}
	return action, nil
}

// ListPending returns actions still awaiting a decision, oldest first.
func (s *PendingActionService) ListPending(ctx context.Context) ([]models.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingActionColumns+`
		FROM pending_actions
		WHERE status = $1
		ORDER BY created_at ASC, id ASC`,
		models.ActionPending)
	if err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	return collectPendingActions(rows)
}

// ListByIDs returns the actions for the given IDs; missing IDs are skipped.
func (s *PendingActionService) ListByIDs(ctx context.Context, ids []int64) ([]models.PendingAction, error) {
	if len(ids) == 0 {
		return []models.PendingAction{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingActionColumns+`
		FROM pending_actions
		WHERE id = ANY($1)
		ORDER BY id ASC`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("list actions by id: %w", err)
	}
	return collectPendingActions(rows)
}

// Approve moves a pending action to approved.
func (s *PendingActionService) Approve(ctx context.Context, id int64, comment string) (*models.PendingAction, error) {
	return s.transition(ctx, id, models.ActionApproved, comment, nil)
}

// Reject moves a pending action to rejected.
func (s *PendingActionService) Reject(ctx context.Context, id int64, comment string) (*models.PendingAction, error) {
	return s.transition(ctx, id, models.ActionRejected, comment, nil)
}

// MarkExecuted moves an approved action to executed and stores the tool
// result alongside it.
func (s *PendingActionService) MarkExecuted(ctx context.Context, id int64, result map[string]any) (*models.PendingAction, error) {
	return s.transition(ctx, id, models.ActionExecuted, "", result)
}

// transition applies one status change under a row lock so concurrent
// decisions on the same action serialize.
func (s *PendingActionService) transition(ctx context.Context, id int64, next models.ActionStatus, comment string, result map[string]any) (*models.PendingAction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition for action %d: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	var current models.ActionStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM pending_actions WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock action %d: %w", id, err)
	}
	if current.Terminal() {
		return nil, fmt.Errorf("action %d is already %s: %w", id, current, ErrAlreadyTerminal)
	}
	if !current.CanTransitionTo(next) {
		return nil, fmt.Errorf("action %d cannot move %s -> %s: %w", id, current, next, ErrInvalidTransition)
	}

	var row *sql.Row
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result for action %d: %w", id, err)
		}
		row = tx.QueryRowContext(ctx, `
			UPDATE pending_actions
			SET status = $2, result = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+pendingActionColumns,
			id, next, data)
	} else {
		row = tx.QueryRowContext(ctx, `
			UPDATE pending_actions
			SET status = $2, comment = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+pendingActionColumns,
			id, next, comment)
	}
	action, err := scanPendingAction(row)
	if err != nil {
		return nil, fmt.Errorf("update action %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition for action %d: %w", id, err)
	}

	s.logger.Info("Pending action transitioned",
		"action_id", id, "from", current, "to", next)
	return action, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingAction(row rowScanner) (*models.PendingAction, error) {
	var (
		action  models.PendingAction
		payload []byte
		result  []byte
	)
	err := row.Scan(&action.ID, &action.Agent, &action.ActionType, &payload, &action.Reasoning,
		&action.Status, &action.Comment, &result, &action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &action.Payload); err != nil {
			return nil, fmt.Errorf("decode payload for action %d: %w", action.ID, err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &action.Result); err != nil {
			return nil, fmt.Errorf("decode result for action %d: %w", action.ID, err)
		}
	}
	return &action, nil
}

func collectPendingActions(rows *sql.Rows) ([]models.PendingAction, error) {
	defer rows.Close()
	out := []models.PendingAction{}
	for rows.Next() {
		action, err := scanPendingAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending action: %w", err)
		}
		out = append(out, *action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending actions: %w", err)
	}
	return out, nil
}
