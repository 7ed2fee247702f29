package models

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question string         `json:"question" binding:"required"`
	UserID   string         `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ResumeRequest is the body of POST /query/resume.
type ResumeRequest struct {
	ThreadID          string  `json:"thread_id" binding:"required"`
	ApprovedActionIDs []int64 `json:"approved_action_ids"`
	RejectedActionIDs []int64 `json:"rejected_action_ids"`
}

// QueryResponse is the body returned by /query and /query/resume.
type QueryResponse struct {
	Answer         string          `json:"answer"`
	Diagnostics    []string        `json:"diagnostics"`
	PendingActions []PendingAction `json:"pending_actions"`
	ThreadID       string          `json:"thread_id"`
	HITLWaiting    bool            `json:"hitl_waiting"`
}

// ApproveActionRequest is the body of POST /actions/approve/:id.
type ApproveActionRequest struct {
	Status             ActionStatus `json:"status" binding:"required"`
	Comment            string       `json:"comment,omitempty"`
	ExecuteImmediately bool         `json:"execute_immediately,omitempty"`
}

// PendingActionsResponse wraps GET /actions/pending.
type PendingActionsResponse struct {
	Items []PendingAction `json:"items"`
}

// IncidentsResponse wraps GET /history/incidents.
type IncidentsResponse struct {
	Items []MemoryIncident `json:"items"`
	Total int              `json:"total"`
}

// IncidentSearchResponse wraps GET /history/incidents/search.
type IncidentSearchResponse struct {
	Items []MemoryHit `json:"items"`
}
