package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/memory"
)

func TestHistoryService_ListIncidentsDefaultsPaging(t *testing.T) {
	invoker := &fakeInvoker{envelope: map[string]any{
		"success": true,
		"result": map[string]any{
			"incidents": []any{
				map[string]any{"id": float64(4), "incident_summary": "Revenue dip in EU", "outcome": "analysis_shared"},
				map[string]any{"id": float64(3), "incident_summary": "Desk Lamp stockout", "outcome": "pending_approval"},
			},
			"total": float64(12),
		},
	}}
	svc := NewHistoryService(memory.NewService(invoker))

	incidents, total, err := svc.ListIncidents(context.Background(), 0, -1)
	require.NoError(t, err)

	assert.Equal(t, "list_incidents", invoker.lastTool)
	assert.Equal(t, 20, invoker.lastArgs["limit"])
	assert.Equal(t, 0, invoker.lastArgs["offset"])

	assert.Equal(t, 12, total)
	require.Len(t, incidents, 2)
	assert.Equal(t, int64(4), incidents[0].ID)
	assert.Equal(t, "Revenue dip in EU", incidents[0].Summary)
	assert.Equal(t, "pending_approval", incidents[1].Outcome)
}

func TestHistoryService_ListIncidentsHonorsPaging(t *testing.T) {
	invoker := &fakeInvoker{envelope: map[string]any{
		"success": true,
		"result":  map[string]any{"incidents": []any{}, "total": float64(0)},
	}}
	svc := NewHistoryService(memory.NewService(invoker))

	incidents, total, err := svc.ListIncidents(context.Background(), 5, 10)
	require.NoError(t, err)

	assert.Equal(t, 5, invoker.lastArgs["limit"])
	assert.Equal(t, 10, invoker.lastArgs["offset"])
	assert.Zero(t, total)
	assert.Empty(t, incidents)
}

func TestHistoryService_SearchRequiresQuery(t *testing.T) {
	invoker := &fakeInvoker{}
	svc := NewHistoryService(memory.NewService(invoker))

	_, err := svc.Search(context.Background(), "   ", 3)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "query", verr.Field)
	assert.Zero(t, invoker.calls)
}

func TestHistoryService_SearchDefaultsTopK(t *testing.T) {
	invoker := &fakeInvoker{envelope: map[string]any{
		"success": true,
		"result": map[string]any{
			"matches": []any{
				map[string]any{
					"id":               float64(7),
					"incident_summary": "ROAS collapse on campaign 2",
					"root_cause":       "budget exhausted mid-flight",
					"outcome":          "analysis_shared",
					"score":            0.87,
				},
			},
		},
	}}
	svc := NewHistoryService(memory.NewService(invoker))

	hits, err := svc.Search(context.Background(), "why did roas drop", 0)
	require.NoError(t, err)

	assert.Equal(t, "query_vector_memory", invoker.lastTool)
	assert.Equal(t, "why did roas drop", invoker.lastArgs["query"])
	assert.Equal(t, memory.DefaultTopK, invoker.lastArgs["k"])

	require.Len(t, hits, 1)
	assert.Equal(t, "ROAS collapse on campaign 2", hits[0].Summary)
	assert.Equal(t, "budget exhausted mid-flight", hits[0].RootCause)
	assert.InDelta(t, 0.87, hits[0].Score, 1e-9)
}
