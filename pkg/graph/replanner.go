package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ecomops/opsloop/pkg/models"
)

// Replan builds a follow-up battle plan after an unsatisfying round. It
// consumes one unit of the replan budget, honors the analyst routing flag
// set by the evaluator, and never re-tasks an agent that already returned
// findings.
func (p *Planner) Replan(ctx context.Context, state *models.GraphState) []models.AgentTask {
	state.ReplanCount++
	state.NeedsReplan = false

	if state.RouteToAnalyst {
		state.RouteToAnalyst = false
		p.logger.Info("Replanning straight to the data analyst", "thread_id", state.ThreadID)
		return []models.AgentTask{AnalystTask(state.UserQuery)}
	}

	tasks, err := p.planLLM(ctx, state, replanContext(state))
	if err != nil {
		p.logger.Info("Replan completion failed, trying the analyst", "reason", err)
		return p.analystFallback(state)
	}

	kept := tasks[:0]
	for _, task := range tasks {
		if state.HasFindings(task.Agent) {
			continue
		}
		kept = append(kept, task)
	}
	if len(kept) == 0 {
		return p.analystFallback(state)
	}
	return kept
}

// analystFallback returns the single analyst task unless the analyst was
// already tried this run.
func (p *Planner) analystFallback(state *models.GraphState) []models.AgentTask {
	if state.HasFindings("data_analyst") || state.FailedAgents["data_analyst"] {
		return nil
	}
	return []models.AgentTask{AnalystTask(state.UserQuery)}
}

func replanContext(state *models.GraphState) string {
	var b strings.Builder
	b.WriteString("PREVIOUS ATTEMPT CONTEXT:\n")
	if failed := sortedKeys(state.FailedAgents); len(failed) > 0 {
		fmt.Fprintf(&b, "Agents that failed: %s\n", strings.Join(failed, ", "))
	}
	if len(state.CannotHandleAgents) > 0 {
		declined := make([]string, 0, len(state.CannotHandleAgents))
		for _, note := range state.CannotHandleAgents {
			declined = append(declined, note.Agent)
		}
		fmt.Fprintf(&b, "Agents that declined as out of scope: %s\n", strings.Join(declined, ", "))
	}
	if done := sortedKeys(state.AgentFindings); len(done) > 0 {
		fmt.Fprintf(&b, "Agents that already returned findings (do not re-task): %s\n", strings.Join(done, ", "))
	}
	if state.ReplanReason != "" {
		fmt.Fprintf(&b, "Reason for re-planning: %s\n", state.ReplanReason)
	}
	b.WriteString("Prefer agents that have not been tried yet, or data_analyst for custom SQL.")
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
