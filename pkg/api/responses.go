package api

import (
	"github.com/ecomops/opsloop/pkg/models"
	"github.com/ecomops/opsloop/pkg/services"
)

// ActionDecisionResponse is returned by POST /api/v1/actions/approve/:id.
// Execution is set only when the decision was approve with
// execute_immediately.
type ActionDecisionResponse struct {
	Action    *models.PendingAction   `json:"action"`
	Execution *models.ExecutionResult `json:"execution,omitempty"`
}

// HealthCheck is the status of one subsystem in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                    `json:"status"`
	Version  string                    `json:"version"`
	Checks   map[string]HealthCheck    `json:"checks"`
	Warnings []*services.SystemWarning `json:"warnings,omitempty"`
}
