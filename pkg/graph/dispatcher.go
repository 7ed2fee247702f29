package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ecomops/opsloop/pkg/agent"
	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/models"
)

// Dispatcher fans the battle plan out to the registered agents, retries
// transient failures, and folds the results back into the graph state in a
// deterministic order.
type Dispatcher struct {
	registry *agent.Registry
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

func NewDispatcher(registry *agent.Registry, cfg config.EngineConfig) *Dispatcher {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Dispatcher{
		registry: registry,
		attempts: attempts,
		delay:    cfg.RetryDelay,
		logger:   slog.With("component", "dispatcher"),
	}
}

type dispatchOutcome struct {
	agent  string
	task   models.AgentTask
	result models.AgentResult
}

// Dispatch runs every task in state.BattlePlan concurrently. Results are
// folded serially, sorted by agent name, so reruns of the same plan mutate
// the state identically.
func (d *Dispatcher) Dispatch(ctx context.Context, state *models.GraphState) {
	plan := state.BattlePlan
	if len(plan) == 0 {
		return
	}

	rc := agent.RunContext{
		UserQuery:           state.UserQuery,
		ConversationHistory: state.ConversationHistory,
		MemoryContext:       state.MemoryContext,
		StateSnapshot: map[string]any{
			"agent_findings": state.AgentFindings,
			"replan_count":   state.ReplanCount,
		},
	}

	outcomes := make(chan dispatchOutcome, len(plan))
	var wg sync.WaitGroup
	for _, task := range plan {
		wg.Add(1)
		go func(task models.AgentTask) {
			defer wg.Done()
			outcomes <- dispatchOutcome{
				agent:  task.Agent,
				task:   task,
				result: d.runOne(ctx, task, rc),
			}
		}(task)
	}
	wg.Wait()
	close(outcomes)

	collected := make([]dispatchOutcome, 0, len(plan))
	for oc := range outcomes {
		collected = append(collected, oc)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].agent < collected[j].agent })

	for _, oc := range collected {
		d.fold(state, oc)
	}
}

// runOne executes a single task with the retry budget. Only needs_retry
// results consume additional attempts.
func (d *Dispatcher) runOne(ctx context.Context, task models.AgentTask, rc agent.RunContext) models.AgentResult {
	worker, ok := d.registry.Get(task.Agent)
	if !ok {
		return models.FailureResult("agent %q is not registered", task.Agent)
	}

	var result models.AgentResult
	for attempt := 1; attempt <= d.attempts; attempt++ {
		result = d.safeRun(ctx, worker, task, rc)
		if result.Status != models.StatusNeedsRetry {
			return result
		}
		d.logger.Warn("Agent hit a transient failure",
			"agent", task.Agent, "attempt", attempt, "error", result.Error)
		if attempt == d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return models.FailureResult("%s agent cancelled: %v", task.Agent, ctx.Err())
		case <-time.After(d.delay):
		}
	}
	return models.FailureResult("%s agent failed after %d attempts: %s", task.Agent, d.attempts, result.Error)
}

// safeRun shields the dispatcher from agent panics, converting them into
// retryable results.
func (d *Dispatcher) safeRun(ctx context.Context, worker agent.Agent, task models.AgentTask, rc agent.RunContext) (result models.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Agent panicked", "agent", task.Agent, "panic", r)
			result = models.RetryResult(fmt.Errorf("agent panic: %v", r))
		}
	}()
	return worker.Run(ctx, task, rc)
}

// fold merges one outcome into the state. Historian matches feed the shared
// memory context; recommendations are stamped with the originating agent.
func (d *Dispatcher) fold(state *models.GraphState, oc dispatchOutcome) {
	state.ExecutedAgents[oc.agent] = true

	switch oc.result.Status {
	case models.StatusSuccess:
		if oc.result.Findings != nil {
			state.AgentFindings[oc.agent] = oc.result.Findings
		}
		if len(oc.result.Insights) > 0 {
			state.AgentInsights[oc.agent] = oc.result.Insights
		}
		for _, rec := range oc.result.Recommendations {
			if rec.Agent == "" {
				rec.Agent = oc.agent
			}
			state.Recommendations = append(state.Recommendations, rec)
		}
		if oc.agent == "historian" {
			if hits, ok := oc.result.Findings["matches"].([]models.MemoryHit); ok {
				state.MemoryContext = append(state.MemoryContext, hits...)
			}
		}
		d.logger.Info("Agent completed", "agent", oc.agent,
			"insights", len(oc.result.Insights), "recommendations", len(oc.result.Recommendations))

	case models.StatusCannotHandle:
		state.CannotHandleAgents = append(state.CannotHandleAgents, models.CannotHandleNote{
			Agent:  oc.agent,
			Query:  oc.task.Query(),
			Reason: oc.result.Reason,
		})
		if len(oc.result.Insights) > 0 {
			state.AgentInsights[oc.agent] = oc.result.Insights
		}
		d.logger.Info("Agent declined the task", "agent", oc.agent, "reason", oc.result.Reason)

	default:
		state.FailedAgents[oc.agent] = true
		state.AddWarning("%s agent failed: %s", oc.agent, oc.result.Error)
		d.logger.Error("Agent failed", "agent", oc.agent, "error", oc.result.Error)
	}
}
