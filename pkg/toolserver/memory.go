package toolserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// memoryTools stores and recalls past incidents. Embeddings live in a JSONB
// column and similarity is computed in process; the table stays small
// enough (one row per resolved investigation) that a vector index would be
// overkill.
type memoryTools struct {
	db       *sql.DB
	embedder Embedder
}

// Save implements save_to_memory. Arguments: incident_summary (required),
// root_cause, action_taken, outcome (all optional). The embedding covers
// summary, cause and action so recall works from any of the three.
func (t *memoryTools) Save(ctx context.Context, args map[string]any) (any, error) {
	summary, err := stringArg(args, "incident_summary", "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(summary) == "" {
		return nil, argErr("incident_summary is required")
	}
	rootCause, err := stringArg(args, "root_cause", "")
	if err != nil {
		return nil, err
	}
	actionTaken, err := stringArg(args, "action_taken", "")
	if err != nil {
		return nil, err
	}
	outcome, err := stringArg(args, "outcome", "")
	if err != nil {
		return nil, err
	}

	vector, err := t.embedder.Embed(ctx, embeddingText(summary, rootCause, actionTaken))
	if err != nil {
		return nil, fmt.Errorf("embed incident: %w", err)
	}
	encoded, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}

	var (
		id        int64
		createdAt time.Time
	)
	err = t.db.QueryRowContext(ctx, `
		INSERT INTO agent_memory (incident_summary, root_cause, action_taken, outcome, embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		summary, rootCause, actionTaken, outcome, encoded).Scan(&id, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert incident: %w", err)
	}

	return map[string]any{
		"memory_id":  id,
		"message":    "Incident stored successfully.",
		"created_at": createdAt.UTC().Format(time.RFC3339),
	}, nil
}

// Query implements query_vector_memory. Arguments: query (required), k
// (1-10, default 3), min_score (default 0). Scores are cosine similarity
// clamped to zero, so unrelated incidents never rank on negative
// similarity.
func (t *memoryTools) Query(ctx context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query", "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, argErr("query is required")
	}
	k, err := boundedIntArg(args, "k", 3, 1, 10)
	if err != nil {
		return nil, err
	}
	minScore, err := floatArg(args, "min_score", 0)
	if err != nil {
		return nil, err
	}

	queryVector, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, incident_summary, root_cause, action_taken, outcome, embedding, created_at
		FROM agent_memory
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	type scored struct {
		row   map[string]any
		score float64
	}
	var candidates []scored
	for rows.Next() {
		var (
			id          int64
			summary     string
			rootCause   string
			actionTaken string
			outcome     string
			rawVector   []byte
			createdAt   time.Time
		)
		if err := rows.Scan(&id, &summary, &rootCause, &actionTaken, &outcome, &rawVector, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}

		var vector []float64
		if err := json.Unmarshal(rawVector, &vector); err != nil {
			return nil, fmt.Errorf("decode embedding for memory %d: %w", id, err)
		}

		score := cosineSimilarity(queryVector, vector)
		if score < 0 {
			score = 0
		}
		score = round4(score)
		if score < minScore {
			continue
		}

		candidates = append(candidates, scored{
			row: map[string]any{
				"id":               id,
				"incident_summary": summary,
				"root_cause":       rootCause,
				"action_taken":     actionTaken,
				"outcome":          outcome,
				"score":            score,
				"created_at":       createdAt.UTC().Format(time.RFC3339),
			},
			score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	matches := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, c.row)
	}

	return map[string]any{
		"query":       query,
		"matches":     matches,
		"total_found": len(matches),
	}, nil
}

// ListIncidents implements list_incidents. Arguments: limit (1-50, default
// 10), offset (default 0). Newest first.
func (t *memoryTools) ListIncidents(ctx context.Context, args map[string]any) (any, error) {
	limit, err := boundedIntArg(args, "limit", 10, 1, 50)
	if err != nil {
		return nil, err
	}
	offset, err := intArg(args, "offset", 0)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, argErr("offset must be >= 0")
	}

	var total int64
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_memory`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, incident_summary, root_cause, action_taken, outcome, created_at
		FROM agent_memory
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	incidents := []map[string]any{}
	for rows.Next() {
		var (
			id          int64
			summary     string
			rootCause   string
			actionTaken string
			outcome     string
			createdAt   time.Time
		)
		if err := rows.Scan(&id, &summary, &rootCause, &actionTaken, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan incident row: %w", err)
		}
		incidents = append(incidents, map[string]any{
			"id":               id,
			"incident_summary": summary,
			"root_cause":       rootCause,
			"action_taken":     actionTaken,
			"outcome":          outcome,
			"created_at":       createdAt.UTC().Format(time.RFC3339),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident rows: %w", err)
	}

	return map[string]any{
		"incidents": incidents,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	}, nil
}

// embeddingText joins the narrative fields that should influence recall.
func embeddingText(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
