// Package memory gives the engine, the historian agent and the history API
// typed access to the episodic incident store exposed by the tool server.
// All operations route through the tool transport; nothing here touches the
// vector table directly.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/models"
)

// DefaultTopK is the number of hits a similarity query returns when the
// caller does not choose one.
const DefaultTopK = 3

// Service wraps the three memory tools.
type Service struct {
	invoker mcp.Invoker
	logger  *slog.Logger
}

// NewService builds a Service over the shared tool client.
func NewService(invoker mcp.Invoker) *Service {
	return &Service{invoker: invoker, logger: slog.Default()}
}

// QuerySimilar returns up to k incidents semantically close to query, best
// first.
func (s *Service) QuerySimilar(ctx context.Context, query string, k int) ([]models.MemoryHit, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	envelope, err := s.invoker.Invoke(ctx, "query_vector_memory", map[string]any{
		"query": query,
		"k":     k,
	})
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}

	var hits []models.MemoryHit
	if err := decodeField(mcp.Result(envelope), "matches", &hits); err != nil {
		return nil, fmt.Errorf("decode memory matches: %w", err)
	}
	return hits, nil
}

// Append stores a new incident and returns its id.
func (s *Service) Append(ctx context.Context, incident models.MemoryIncident) (int64, error) {
	envelope, err := s.invoker.Invoke(ctx, "save_to_memory", map[string]any{
		"incident_summary": incident.Summary,
		"root_cause":       incident.RootCause,
		"action_taken":     incident.ActionTaken,
		"outcome":          incident.Outcome,
	})
	if err != nil {
		return 0, fmt.Errorf("save to memory: %w", err)
	}

	id, ok := mcp.Result(envelope)["memory_id"].(float64)
	if !ok {
		return 0, fmt.Errorf("save to memory: response carried no memory_id")
	}
	s.logger.Debug("Incident saved to memory", "memory_id", int64(id))
	return int64(id), nil
}

// ListRecent returns incidents newest-first without similarity search, plus
// the total row count for pagination.
func (s *Service) ListRecent(ctx context.Context, limit, offset int) ([]models.MemoryIncident, int, error) {
	envelope, err := s.invoker.Invoke(ctx, "list_incidents", map[string]any{
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}

	result := mcp.Result(envelope)
	var incidents []models.MemoryIncident
	if err := decodeField(result, "incidents", &incidents); err != nil {
		return nil, 0, fmt.Errorf("decode incidents: %w", err)
	}

	total := len(incidents)
	if n, ok := result["total"].(float64); ok {
		total = int(n)
	}
	return incidents, total, nil
}

// decodeField re-marshals one field of a loosely-typed tool result into dst.
// Absent fields leave dst untouched.
func decodeField(result map[string]any, field string, dst any) error {
	raw, ok := result[field]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
