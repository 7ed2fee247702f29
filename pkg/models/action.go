package models

import "time"

// ActionStatus is the lifecycle state of a pending action.
type ActionStatus string

// Pending-action statuses. The only legal transitions are
// pending → approved → executed and pending → rejected;
// executed and rejected are terminal.
const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionExecuted ActionStatus = "executed"
	ActionRejected ActionStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ActionStatus) Terminal() bool {
	return s == ActionExecuted || s == ActionRejected
}

// CanTransitionTo reports whether s → next is a legal transition.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	switch s {
	case ActionPending:
		return next == ActionApproved || next == ActionRejected
	case ActionApproved:
		return next == ActionExecuted
	default:
		return false
	}
}

// PendingAction is the durable record of a proposed mutation awaiting the
// approval lifecycle.
type PendingAction struct {
	ID         int64          `json:"id"`
	Agent      string         `json:"agent_name"`
	ActionType string         `json:"action_type"`
	Payload    map[string]any `json:"payload"`
	Reasoning  string         `json:"reasoning"`
	Status     ActionStatus   `json:"status"`
	Comment    string         `json:"comment,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// CreatePendingActionRequest contains fields for inserting a pending action.
type CreatePendingActionRequest struct {
	Agent      string         `json:"agent_name"`
	ActionType string         `json:"action_type"`
	Payload    map[string]any `json:"payload"`
	Reasoning  string         `json:"reasoning"`
	Status     ActionStatus   `json:"status"`
}

// ExecutionResult is the structured outcome of running an approved action
// through the action executor.
type ExecutionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Result  map[string]any `json:"result,omitempty"`
}
