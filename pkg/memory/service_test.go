package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/models"
)

type fakeInvoker struct {
	lastTool string
	lastArgs map[string]any
	envelope map[string]any
	err      error
}

func (f *fakeInvoker) Invoke(_ context.Context, tool string, args map[string]any) (map[string]any, error) {
	f.lastTool = tool
	f.lastArgs = args
	if f.err != nil {
		return nil, f.err
	}
	return f.envelope, nil
}

func TestQuerySimilar(t *testing.T) {
	invoker := &fakeInvoker{envelope: map[string]any{
		"success": true,
		"result": map[string]any{
			"matches": []any{
				map[string]any{
					"id":               float64(4),
					"incident_summary": "why did sales drop",
					"root_cause":       "campaign paused mid-week",
					"outcome":          "analysis_shared",
					"score":            0.91,
					"created_at":       "2026-08-20T10:00:00Z",
				},
				map[string]any{
					"id":               float64(2),
					"incident_summary": "earbuds stockout",
					"score":            0.55,
				},
			},
		},
	}}
	svc := NewService(invoker)

	hits, err := svc.QuerySimilar(context.Background(), "sales drop", 2)
	require.NoError(t, err)

	assert.Equal(t, "query_vector_memory", invoker.lastTool)
	assert.Equal(t, map[string]any{"query": "sales drop", "k": 2}, invoker.lastArgs)

	require.Len(t, hits, 2)
	assert.Equal(t, int64(4), hits[0].ID)
	assert.Equal(t, "why did sales drop", hits[0].Summary)
	assert.Equal(t, "campaign paused mid-week", hits[0].RootCause)
	assert.InDelta(t, 0.91, hits[0].Score, 0.0001)
	assert.Equal(t, 2026, hits[0].CreatedAt.Year())
	assert.InDelta(t, 0.55, hits[1].Score, 0.0001)
}

func TestQuerySimilar_DefaultK(t *testing.T) {
	invoker := &fakeInvoker{envelope: map[string]any{
		"success": true,
		"result":  map[string]any{"matches": []any{}},
	}}
	svc := NewService(invoker)

	hits, err := svc.QuerySimilar(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, DefaultTopK, invoker.lastArgs["k"])
}

func TestQuerySimilar_TransportError(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("connection refused")}
	svc := NewService(invoker)

	_, err := svc.QuerySimilar(context.Background(), "anything", 3)
	assert.ErrorContains(t, err, "query memory")
	assert.ErrorContains(t, err, "connection refused")
}

func TestAppend(t *testing.T) {
	invoker := &fakeInvoker{envelope: map[string]any{
		"success": true,
		"result":  map[string]any{"memory_id": float64(17)},
	}}
	svc := NewService(invoker)

	id, err := svc.Append(context.Background(), models.MemoryIncident{
		Summary:   "which products need restocking?",
		RootCause: "two SKUs under reorder point",
		Outcome:   models.OutcomePendingApproval,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	assert.Equal(t, "save_to_memory", invoker.lastTool)
	assert.Equal(t, "which products need restocking?", invoker.lastArgs["incident_summary"])
	assert.Equal(t, "two SKUs under reorder point", invoker.lastArgs["root_cause"])
	assert.Equal(t, models.OutcomePendingApproval, invoker.lastArgs["outcome"])
}

func TestAppend_MissingID(t *testing.T) {
	invoker := &fakeInvoker{envelope: map[string]any{
		"success": true,
		"result":  map[string]any{},
	}}
	svc := NewService(invoker)

	_, err := svc.Append(context.Background(), models.MemoryIncident{Summary: "x"})
	assert.ErrorContains(t, err, "no memory_id")
}

func TestListRecent(t *testing.T) {
	invoker := &fakeInvoker{envelope: map[string]any{
		"success": true,
		"result": map[string]any{
			"incidents": []any{
				map[string]any{"id": float64(9), "incident_summary": "newest", "created_at": "2026-08-23T08:00:00Z"},
				map[string]any{"id": float64(8), "incident_summary": "older"},
			},
			"total": float64(42),
		},
	}}
	svc := NewService(invoker)

	incidents, total, err := svc.ListRecent(context.Background(), 2, 0)
	require.NoError(t, err)

	assert.Equal(t, "list_incidents", invoker.lastTool)
	assert.Equal(t, map[string]any{"limit": 2, "offset": 0}, invoker.lastArgs)
	require.Len(t, incidents, 2)
	assert.Equal(t, int64(9), incidents[0].ID)
	assert.Equal(t, 42, total)
}
