package services

import (
	"context"
	"strings"

	"github.com/ecomops/opsloop/pkg/memory"
	"github.com/ecomops/opsloop/pkg/models"
)

// HistoryService exposes the episodic memory store to the HTTP surface:
// recent incidents and semantic search.
type HistoryService struct {
	memory *memory.Service
}

// NewHistoryService wraps the shared memory service.
func NewHistoryService(mem *memory.Service) *HistoryService {
	return &HistoryService{memory: mem}
}

// ListIncidents returns recent incidents newest first, plus the total count.
func (s *HistoryService) ListIncidents(ctx context.Context, limit, offset int) ([]models.MemoryIncident, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.memory.ListRecent(ctx, limit, offset)
}

// Search runs a similarity query over stored incidents.
func (s *HistoryService) Search(ctx context.Context, query string, k int) ([]models.MemoryHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "query", Message: "must not be empty"}
	}
	if k <= 0 {
		k = memory.DefaultTopK
	}
	return s.memory.QuerySimilar(ctx, query, k)
}
