package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/checkpoint"
	"github.com/ecomops/opsloop/pkg/models"
	"github.com/ecomops/opsloop/pkg/services"
	"github.com/ecomops/opsloop/pkg/session"
)

func TestQueryHandler_RunsEngine(t *testing.T) {
	f := newAPIFixture()
	f.engine.runResp = &models.QueryResponse{
		Answer:         "Revenue dipped 12% in EU, driven by a stockout.",
		Diagnostics:    []string{"Agents executed: inventory, sales"},
		PendingActions: []models.PendingAction{},
		ThreadID:       "thread-1",
	}

	rec := performJSON(t, f.router, http.MethodPost, "/api/v1/query", models.QueryRequest{
		Question: "Why did revenue drop last week?",
		UserID:   "ops-1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Why did revenue drop last week?", f.engine.lastRun.Question)
	assert.Equal(t, "ops-1", f.engine.lastRun.UserID)

	var resp models.QueryResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "thread-1", resp.ThreadID)
	assert.False(t, resp.HITLWaiting)
	assert.Contains(t, resp.Answer, "stockout")
}

func TestQueryHandler_RejectsMalformedJSON(t *testing.T) {
	f := newAPIFixture()

	rec := performRaw(t, f.router, http.MethodPost, "/api/v1/query", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_RequiresQuestion(t *testing.T) {
	f := newAPIFixture()

	rec := performJSON(t, f.router, http.MethodPost, "/api/v1/query", map[string]any{"user_id": "ops-1"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.engine.lastRun.Question)
}

func TestQueryHandler_MapsValidationError(t *testing.T) {
	f := newAPIFixture()
	f.engine.runErr = services.NewValidationError("question", "must not be empty")

	rec := performJSON(t, f.router, http.MethodPost, "/api/v1/query", models.QueryRequest{Question: "   "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "question")
}

func TestQueryHandler_MapsEngineFailure(t *testing.T) {
	f := newAPIFixture()
	f.engine.runErr = errors.New("planner exploded")

	rec := performJSON(t, f.router, http.MethodPost, "/api/v1/query", models.QueryRequest{Question: "anything"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	// Internals never leak to the caller.
	assert.NotContains(t, rec.Body.String(), "planner exploded")
}

func TestResumeHandler_AppliesDecisions(t *testing.T) {
	f := newAPIFixture()
	f.engine.resumeResp = &models.QueryResponse{
		Answer:   "Restock executed.",
		ThreadID: "thread-9",
	}

	rec := performJSON(t, f.router, http.MethodPost, "/api/v1/query/resume", models.ResumeRequest{
		ThreadID:          "thread-9",
		ApprovedActionIDs: []int64{1, 2},
		RejectedActionIDs: []int64{3},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thread-9", f.engine.lastResume.ThreadID)
	assert.Equal(t, []int64{1, 2}, f.engine.lastResume.ApprovedActionIDs)
	assert.Equal(t, []int64{3}, f.engine.lastResume.RejectedActionIDs)
}

func TestResumeHandler_UnknownThread(t *testing.T) {
	f := newAPIFixture()
	f.engine.resumeErr = fmt.Errorf("load checkpoint for thread %s: %w", "ghost", checkpoint.ErrNotFound)

	rec := performJSON(t, f.router, http.MethodPost, "/api/v1/query/resume", models.ResumeRequest{ThreadID: "ghost"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "thread not found")
}

func TestResumeHandler_RequiresThreadID(t *testing.T) {
	f := newAPIFixture()

	rec := performJSON(t, f.router, http.MethodPost, "/api/v1/query/resume", map[string]any{
		"approved_action_ids": []int64{1},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResumeHandler_BusyThread(t *testing.T) {
	f := newAPIFixture()
	f.engine.resumeErr = fmt.Errorf("thread %s: %w", "thread-9", session.ErrThreadBusy)

	rec := performJSON(t, f.router, http.MethodPost, "/api/v1/query/resume", models.ResumeRequest{ThreadID: "thread-9"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already active")
}

func TestActiveRunsHandler(t *testing.T) {
	f := newAPIFixture()

	rec := performJSON(t, f.router, http.MethodGet, "/api/v1/runs/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []session.Run `json:"items"`
		Count int           `json:"count"`
	}
	decodeBody(t, rec, &body)
	assert.Zero(t, body.Count)
	assert.Empty(t, body.Items)

	release, err := f.sessions.Begin("thread-1", session.KindQuery, "top products this week")
	require.NoError(t, err)
	defer release()

	rec = performJSON(t, f.router, http.MethodGet, "/api/v1/runs/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "thread-1", body.Items[0].ThreadID)
	assert.Equal(t, session.KindQuery, body.Items[0].Kind)
	assert.Equal(t, "top products this week", body.Items[0].Question)
}
