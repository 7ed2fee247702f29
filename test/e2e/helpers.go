package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/models"
	"github.com/ecomops/opsloop/pkg/session"
)

// ────────────────────────────────────────────────────────────
// Low-level HTTP helpers
// ────────────────────────────────────────────────────────────

// postJSON posts body to path and returns the raw response body, requiring
// the given status code.
func (app *TestApp) postJSON(t *testing.T, path string, body any, expectedStatus int) []byte {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := app.httpClient.Post(app.BaseURL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode,
		"POST %s returned %d: %s", path, resp.StatusCode, string(raw))
	return raw
}

// getJSON fetches path and returns the raw response body, requiring the
// given status code.
func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) []byte {
	t.Helper()

	resp, err := app.httpClient.Get(app.BaseURL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, expectedStatus, resp.StatusCode,
		"GET %s returned %d: %s", path, resp.StatusCode, string(raw))
	return raw
}

func decodeInto[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), "decode %s", string(raw))
	return out
}

// ────────────────────────────────────────────────────────────
// Typed endpoint wrappers
// ────────────────────────────────────────────────────────────

// Query submits a question and expects a completed or suspended run.
func (app *TestApp) Query(t *testing.T, question string) models.QueryResponse {
	t.Helper()
	raw := app.postJSON(t, "/api/v1/query", models.QueryRequest{Question: question}, http.StatusOK)
	return decodeInto[models.QueryResponse](t, raw)
}

// QueryExpectStatus submits an arbitrary query body expecting a specific
// status, returning the decoded error envelope.
func (app *TestApp) QueryExpectStatus(t *testing.T, body any, expectedStatus int) map[string]any {
	t.Helper()
	raw := app.postJSON(t, "/api/v1/query", body, expectedStatus)
	return decodeInto[map[string]any](t, raw)
}

// Resume continues a suspended thread with the human decision.
func (app *TestApp) Resume(t *testing.T, req models.ResumeRequest) models.QueryResponse {
	t.Helper()
	raw := app.postJSON(t, "/api/v1/query/resume", req, http.StatusOK)
	return decodeInto[models.QueryResponse](t, raw)
}

// ResumeExpectStatus resumes expecting a specific status, returning the
// decoded error envelope.
func (app *TestApp) ResumeExpectStatus(t *testing.T, req models.ResumeRequest, expectedStatus int) map[string]any {
	t.Helper()
	raw := app.postJSON(t, "/api/v1/query/resume", req, expectedStatus)
	return decodeInto[map[string]any](t, raw)
}

// ApproveAction marks one pending action approved.
func (app *TestApp) ApproveAction(t *testing.T, id int64) models.PendingAction {
	t.Helper()
	raw := app.postJSON(t, fmt.Sprintf("/api/v1/actions/approve/%d", id),
		models.ApproveActionRequest{Status: models.ActionApproved}, http.StatusOK)
	resp := decodeInto[struct {
		Action models.PendingAction `json:"action"`
	}](t, raw)
	return resp.Action
}

// RejectAction marks one pending action rejected.
func (app *TestApp) RejectAction(t *testing.T, id int64, comment string) models.PendingAction {
	t.Helper()
	raw := app.postJSON(t, fmt.Sprintf("/api/v1/actions/approve/%d", id),
		models.ApproveActionRequest{Status: models.ActionRejected, Comment: comment}, http.StatusOK)
	resp := decodeInto[struct {
		Action models.PendingAction `json:"action"`
	}](t, raw)
	return resp.Action
}

// PendingActions lists actions still waiting for a decision.
func (app *TestApp) PendingActions(t *testing.T) []models.PendingAction {
	t.Helper()
	raw := app.getJSON(t, "/api/v1/actions/pending", http.StatusOK)
	return decodeInto[models.PendingActionsResponse](t, raw).Items
}

// ActiveRuns lists in-flight runs from the session manager.
func (app *TestApp) ActiveRuns(t *testing.T) []session.Run {
	t.Helper()
	raw := app.getJSON(t, "/api/v1/runs/active", http.StatusOK)
	resp := decodeInto[struct {
		Items []session.Run `json:"items"`
		Count int           `json:"count"`
	}](t, raw)
	return resp.Items
}

// Incidents lists the episodic memory newest-first.
func (app *TestApp) Incidents(t *testing.T) models.IncidentsResponse {
	t.Helper()
	raw := app.getJSON(t, "/api/v1/history/incidents", http.StatusOK)
	return decodeInto[models.IncidentsResponse](t, raw)
}

// ────────────────────────────────────────────────────────────
// Database probes
// ────────────────────────────────────────────────────────────

// ActionStatusInDB reads the persisted status of a pending action row.
func (app *TestApp) ActionStatusInDB(t *testing.T, id int64) string {
	t.Helper()
	var status string
	require.NoError(t, app.DB.QueryRow(
		"SELECT status FROM pending_actions WHERE id = $1", id).Scan(&status))
	return status
}

// StockQty reads the current stock level for a product. The products table
// is the level the write tools mutate.
func (app *TestApp) StockQty(t *testing.T, productID int) int {
	t.Helper()
	var qty int
	require.NoError(t, app.DB.QueryRow(
		"SELECT stock_qty FROM products WHERE id = $1", productID).Scan(&qty))
	return qty
}

// MemoryRows counts stored incidents directly in the commerce schema.
func (app *TestApp) MemoryRows(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, app.DB.QueryRow("SELECT COUNT(*) FROM agent_memory").Scan(&n))
	return n
}

