// Package models contains the shared domain types: agent tasks and results,
// pending actions, run state, and the request/response models of the HTTP API.
package models

import "fmt"

// AgentStatus classifies an agent result.
type AgentStatus string

// Agent result statuses.
const (
	StatusSuccess      AgentStatus = "success"
	StatusFailure      AgentStatus = "failure"
	StatusNeedsRetry   AgentStatus = "needs_retry"
	StatusCannotHandle AgentStatus = "cannot_handle"
)

// AgentTask is one planned unit of work for a named agent.
// Immutable once planned; Parameters always carry the verbatim user query
// under "query" and the capability name under "mode".
type AgentTask struct {
	Agent      string         `json:"agent"`
	Objective  string         `json:"objective"`
	Parameters map[string]any `json:"parameters"`
	Priority   int            `json:"priority"` // 1 = highest
	ResultSlot string         `json:"result_slot,omitempty"`
}

// Mode returns the capability name the task selects, or "" when unset.
func (t AgentTask) Mode() string {
	if t.Parameters == nil {
		return ""
	}
	if m, ok := t.Parameters["mode"].(string); ok {
		return m
	}
	return ""
}

// Query returns the user query the task carries, or "" when unset.
func (t AgentTask) Query() string {
	if t.Parameters == nil {
		return ""
	}
	if q, ok := t.Parameters["query"].(string); ok {
		return q
	}
	return ""
}

// AgentRecommendation is a proposed action emitted by an agent.
// RequiresApproval defaults to true; only read-only investigatory actions
// may set it false.
type AgentRecommendation struct {
	ActionType       string         `json:"action_type"`
	Payload          map[string]any `json:"payload"`
	Reasoning        string         `json:"reasoning"`
	RequiresApproval bool           `json:"requires_approval"`
	Agent            string         `json:"agent,omitempty"`
}

// AgentResult is the tagged outcome of one agent run.
// cannot_handle additionally carries Reason and SuggestedAgent.
type AgentResult struct {
	Status          AgentStatus           `json:"status"`
	Findings        map[string]any        `json:"findings,omitempty"`
	Insights        []string              `json:"insights,omitempty"`
	Recommendations []AgentRecommendation `json:"recommendations,omitempty"`
	Error           string                `json:"error,omitempty"`
	Reason          string                `json:"reason,omitempty"`
	SuggestedAgent  string                `json:"suggested_agent,omitempty"`
}

// SuccessResult builds a success result.
func SuccessResult(findings map[string]any, insights []string, recs []AgentRecommendation) AgentResult {
	return AgentResult{Status: StatusSuccess, Findings: findings, Insights: insights, Recommendations: recs}
}

// FailureResult builds a terminal failure result.
func FailureResult(format string, args ...any) AgentResult {
	return AgentResult{Status: StatusFailure, Error: fmt.Sprintf(format, args...)}
}

// RetryResult builds a needs_retry result for transient faults.
func RetryResult(err error) AgentResult {
	return AgentResult{Status: StatusNeedsRetry, Error: err.Error()}
}

// CannotHandleResult builds a cannot_handle result with a suggested successor.
func CannotHandleResult(reason, suggested string) AgentResult {
	return AgentResult{Status: StatusCannotHandle, Reason: reason, SuggestedAgent: suggested}
}

// CannotHandleNote records an out-of-scope declination for the evaluator.
type CannotHandleNote struct {
	Agent  string `json:"agent"`
	Query  string `json:"query"`
	Reason string `json:"reason"`
}
