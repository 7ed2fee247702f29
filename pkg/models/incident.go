package models

import "time"

// MemoryIncident is one episodic-memory record: what happened, what was
// concluded, and what came of it.
type MemoryIncident struct {
	ID          int64     `json:"id"`
	Summary     string    `json:"incident_summary"`
	RootCause   string    `json:"root_cause,omitempty"`
	ActionTaken string    `json:"action_taken,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MemoryHit is an incident returned from a similarity query.
type MemoryHit struct {
	MemoryIncident
	Score float64 `json:"score"`
}

// Incident outcomes written by the engine's memory step.
const (
	OutcomeAnalysisShared  = "analysis_shared"
	OutcomePendingApproval = "pending_approval"
)
