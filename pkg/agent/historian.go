package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecomops/opsloop/pkg/memory"
	"github.com/ecomops/opsloop/pkg/models"
)

// HistorianAgent reads and writes the episodic incident memory. Its query
// matches additionally feed the shared memory context for all later steps.
type HistorianAgent struct {
	memory *memory.Service
	logger *slog.Logger
}

// NewHistorianAgent builds the historian over the memory service.
func NewHistorianAgent(svc *memory.Service) *HistorianAgent {
	return &HistorianAgent{memory: svc, logger: slog.With("agent", "historian")}
}

func (a *HistorianAgent) Metadata() models.AgentMetadata {
	return models.AgentMetadata{
		Name:        "historian",
		DisplayName: "HISTORIAN",
		Description: "Retrieves similar past incidents from memory for context. Stores new incidents as lessons learned. Essential for 'why' questions.",
		Capabilities: []models.Capability{
			{
				Name:        "query",
				Description: "Search for similar past incidents using semantic similarity",
				Parameters: []string{
					"query: search query (defaults to the user's question)",
					"k: number of results to return (default 3)",
				},
				ExampleQueries: []string{
					"Has this happened before?",
					"Why did sales drop last time?",
				},
			},
			{
				Name:        "past_actions",
				Description: "List actions taken on similar past incidents and how they turned out",
				Parameters: []string{
					"query: search query (defaults to the user's question)",
					"k: number of incidents to inspect (default 5)",
				},
				ExampleQueries: []string{
					"What did we do last time this happened?",
					"Which past fixes worked?",
				},
			},
			{
				Name:        "save",
				Description: "Store a new incident as a lesson learned",
				Parameters: []string{
					"incident: incident details (incident_summary, root_cause, action_taken, outcome)",
				},
				ExampleQueries: []string{
					"Remember this incident for future reference",
					"Save this as a lesson learned",
				},
			},
		},
		Keywords:             []string{"why", "reason", "cause", "explain", "happened", "history", "before", "similar", "past"},
		PriorityBoostPhrases: []string{"root cause", "explain why"},
	}
}

func (a *HistorianAgent) Run(ctx context.Context, task models.AgentTask, rc RunContext) models.AgentResult {
	if a.memory == nil {
		return models.FailureResult("historian: memory service unavailable")
	}

	switch mode := task.Mode(); mode {
	case "", "query":
		return a.query(ctx, task, rc)
	case "past_actions":
		return a.pastActions(ctx, task, rc)
	case "save":
		return a.save(ctx, task)
	default:
		return models.FailureResult("historian: unknown mode %q", mode)
	}
}

func (a *HistorianAgent) query(ctx context.Context, task models.AgentTask, rc RunContext) models.AgentResult {
	query := task.Query()
	if query == "" {
		query = rc.UserQuery
	}
	k := intParam(task.Parameters, "k", memory.DefaultTopK)

	hits, err := a.memory.QuerySimilar(ctx, query, k)
	if err != nil {
		a.logger.Error("Memory query failed", "error", err)
		return toolFailure("historian", err)
	}

	insights := []string{fmt.Sprintf("Historian: retrieved %d similar incidents.", len(hits))}
	if len(hits) == 0 {
		insights = []string{"Historian: no close incidents found."}
	}
	return models.SuccessResult(map[string]any{"matches": hits}, insights, nil)
}

func (a *HistorianAgent) pastActions(ctx context.Context, task models.AgentTask, rc RunContext) models.AgentResult {
	query := task.Query()
	if query == "" {
		query = rc.UserQuery
	}
	k := intParam(task.Parameters, "k", 5)

	hits, err := a.memory.QuerySimilar(ctx, query, k)
	if err != nil {
		a.logger.Error("Memory query failed", "error", err)
		return toolFailure("historian", err)
	}

	actions := make([]map[string]any, 0, len(hits))
	for _, hit := range hits {
		if hit.ActionTaken == "" {
			continue
		}
		actions = append(actions, map[string]any{
			"incident_summary": hit.Summary,
			"action_taken":     hit.ActionTaken,
			"outcome":          hit.Outcome,
			"created_at":       hit.CreatedAt,
		})
	}

	findings := map[string]any{"past_actions": actions, "count": len(actions)}
	if len(actions) == 0 {
		return models.SuccessResult(findings,
			[]string{"Historian: no recorded actions match this question."}, nil)
	}
	return models.SuccessResult(findings,
		[]string{fmt.Sprintf("Historian: found %d past actions relevant to this question.", len(actions))}, nil)
}

func (a *HistorianAgent) save(ctx context.Context, task models.AgentTask) models.AgentResult {
	payload, ok := task.Parameters["incident"].(map[string]any)
	if !ok || len(payload) == 0 {
		return models.FailureResult("historian: save mode requires an 'incident' payload")
	}

	incident := models.MemoryIncident{
		Summary:     strField(payload, "incident_summary"),
		RootCause:   strField(payload, "root_cause"),
		ActionTaken: strField(payload, "action_taken"),
		Outcome:     strField(payload, "outcome"),
	}
	if incident.Summary == "" {
		return models.FailureResult("historian: incident payload is missing incident_summary")
	}

	memoryID, err := a.memory.Append(ctx, incident)
	if err != nil {
		a.logger.Error("Memory append failed", "error", err)
		return toolFailure("historian", err)
	}

	return models.SuccessResult(
		map[string]any{"memory_id": memoryID},
		[]string{fmt.Sprintf("Incident persisted with id=%d.", memoryID)},
		nil)
}
