package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ecomops/opsloop/pkg/agent"
	"github.com/ecomops/opsloop/pkg/checkpoint"
	"github.com/ecomops/opsloop/pkg/config"
	"github.com/ecomops/opsloop/pkg/llm"
	"github.com/ecomops/opsloop/pkg/models"
	"github.com/ecomops/opsloop/pkg/services"
	"github.com/ecomops/opsloop/pkg/session"
)

// ActionStore persists approval-gated proposals as pending action rows.
type ActionStore interface {
	Create(ctx context.Context, req models.CreatePendingActionRequest) (*models.PendingAction, error)
	ListByIDs(ctx context.Context, ids []int64) ([]models.PendingAction, error)
}

// ActionRunner executes a single approved action against the tool layer.
type ActionRunner interface {
	ExecuteApproved(ctx context.Context, id int64) (*models.ExecutionResult, error)
}

// MemoryRecorder appends finished runs to the episodic memory store.
type MemoryRecorder interface {
	Append(ctx context.Context, incident models.MemoryIncident) (int64, error)
}

// Notifier announces approval gates on the operations channel. A nil
// notifier disables announcements; implementations must be fail-open.
type Notifier interface {
	ApprovalRequested(ctx context.Context, threadID, question string, actions []models.PendingAction)
	RunResumed(ctx context.Context, threadID string, executed, failed int)
}

// Engine drives a question through plan, dispatch, evaluate, replan and
// synthesize, suspending at the approval gate whenever agents proposed
// mutations.
type Engine struct {
	planner     *Planner
	dispatcher  *Dispatcher
	synthesizer *Synthesizer
	checkpoints checkpoint.Store
	actions     ActionStore
	runner      ActionRunner
	memory      MemoryRecorder
	sessions    *session.Manager
	notifier    Notifier
	cfg         config.EngineConfig
	logger      *slog.Logger
}

// NewEngine wires the pipeline stages over a shared agent registry.
// sessions may be nil (a private manager is created); notifier may be nil
// (notifications disabled).
func NewEngine(
	registry *agent.Registry,
	llmClient llm.Client,
	checkpoints checkpoint.Store,
	actions ActionStore,
	runner ActionRunner,
	recorder MemoryRecorder,
	sessions *session.Manager,
	notifier Notifier,
	cfg config.EngineConfig,
) *Engine {
	if sessions == nil {
		sessions = session.NewManager()
	}
	return &Engine{
		planner:     NewPlanner(registry, llmClient),
		dispatcher:  NewDispatcher(registry, cfg),
		synthesizer: NewSynthesizer(llmClient, registry.Names()),
		checkpoints: checkpoints,
		actions:     actions,
		runner:      runner,
		memory:      recorder,
		sessions:    sessions,
		notifier:    notifier,
		cfg:         cfg,
		logger:      slog.With("component", "engine"),
	}
}

// Run answers one question end to end. When the round budget runs out the
// engine synthesizes from whatever it has; when proposals need approval it
// persists them, checkpoints the state and returns with HITLWaiting set.
func (e *Engine) Run(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, &services.ValidationError{Field: "question", Message: "must not be empty"}
	}

	threadID := uuid.NewString()
	release, err := e.sessions.Begin(threadID, session.KindQuery, req.Question)
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", threadID, err)
	}
	defer release()

	if e.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RunTimeout)
		defer cancel()
	}

	state := models.NewGraphState(threadID, req.Question, e.cfg.MaxReplans)
	state.Metadata = req.Metadata
	if req.UserID != "" {
		if state.Metadata == nil {
			state.Metadata = map[string]any{}
		}
		state.Metadata["user_id"] = req.UserID
	}

	e.logger.Info("Run started", "thread_id", threadID, "question", clip(req.Question, 120))

	state.BattlePlan = e.planner.Plan(ctx, state)
	for {
		e.dispatcher.Dispatch(ctx, state)
		if ctx.Err() != nil {
			state.AddWarning("run deadline reached; synthesizing from partial results")
			break
		}
		if !Evaluate(state) {
			break
		}
		e.logger.Info("Replanning", "thread_id", threadID,
			"round", state.ReplanCount+1, "reason", state.ReplanReason)
		tasks := e.planner.Replan(ctx, state)
		if len(tasks) == 0 {
			break
		}
		state.BattlePlan = tasks
	}

	e.synthesizer.Synthesize(ctx, state)
	return e.finish(ctx, state)
}

// finish closes out a run. Proposal rows are inserted before the checkpoint
// is written so a resumed thread always sees its actions; any fault in that
// sequence fails the run rather than losing the gate.
func (e *Engine) finish(ctx context.Context, state *models.GraphState) (*models.QueryResponse, error) {
	if len(state.PendingProposals) == 0 {
		e.recordMemory(ctx, state)
		e.logger.Info("Run completed", "thread_id", state.ThreadID, "replans", state.ReplanCount)
		return e.respond(state, nil), nil
	}

	created := make([]models.PendingAction, 0, len(state.PendingProposals))
	for _, proposal := range state.PendingProposals {
		status := models.ActionPending
		if !proposal.RequiresApproval {
			status = models.ActionApproved
		}
		row, err := e.actions.Create(ctx, models.CreatePendingActionRequest{
			Agent:      proposalAgent(proposal),
			ActionType: proposal.ActionType,
			Payload:    proposal.Payload,
			Reasoning:  proposal.Reasoning,
			Status:     status,
		})
		if err != nil {
			return nil, fmt.Errorf("store pending action %s: %w", proposal.ActionType, err)
		}
		created = append(created, *row)
		state.HITLPendingIDs = append(state.HITLPendingIDs, row.ID)
	}

	if err := e.checkpoints.Put(ctx, state.ThreadID, state); err != nil {
		return nil, fmt.Errorf("checkpoint thread %s: %w", state.ThreadID, err)
	}

	if e.notifier != nil {
		e.notifier.ApprovalRequested(ctx, state.ThreadID, state.UserQuery, created)
	}

	e.logger.Info("Run suspended for approval",
		"thread_id", state.ThreadID, "pending_actions", len(created))
	return e.respond(state, created), nil
}

func proposalAgent(rec models.AgentRecommendation) string {
	if rec.Agent != "" {
		return rec.Agent
	}
	return "system"
}

// Resume continues a suspended thread after the human decision. Approved
// actions are executed one by one; executor faults become warnings on the
// state, never run failures. Only one resume may hold a thread at a time;
// a concurrent attempt gets ErrThreadBusy.
func (e *Engine) Resume(ctx context.Context, req models.ResumeRequest) (*models.QueryResponse, error) {
	release, err := e.sessions.Begin(req.ThreadID, session.KindResume, "")
	if err != nil {
		return nil, fmt.Errorf("thread %s: %w", req.ThreadID, err)
	}
	defer release()

	state, err := e.checkpoints.Get(ctx, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for thread %s: %w", req.ThreadID, err)
	}

	state.HITLApprovedIDs = req.ApprovedActionIDs
	state.HITLRejectedIDs = req.RejectedActionIDs
	if state.ExecutionResults == nil {
		state.ExecutionResults = make(map[int64]*models.ExecutionResult)
	}

	e.logger.Info("Resuming thread", "thread_id", req.ThreadID,
		"approved", len(req.ApprovedActionIDs), "rejected", len(req.RejectedActionIDs))

	for _, id := range req.ApprovedActionIDs {
		result, err := e.runner.ExecuteApproved(ctx, id)
		if err != nil {
			e.logger.Warn("Action execution failed", "action_id", id, "error", err)
			state.AddWarning("action %d execution failed: %v", id, err)
			result = &models.ExecutionResult{
				Success: false,
				Message: fmt.Sprintf("execution failed: %v", err),
				Result:  map[string]any{"error": "execution_error", "details": err.Error()},
			}
		} else if !result.Success {
			state.AddWarning("action %d reported failure: %s", id, result.Message)
		}
		state.ExecutionResults[id] = result
	}

	rows, err := e.actions.ListByIDs(ctx, append(append([]int64{}, req.ApprovedActionIDs...), req.RejectedActionIDs...))
	if err != nil {
		state.AddWarning("list decided actions: %v", err)
	}

	state.HITLPendingIDs = nil
	state.HITLApprovedIDs = nil
	state.HITLRejectedIDs = nil
	state.HITLResumed = true
	state.HITLWait = false

	e.recordMemory(ctx, state)

	if err := e.checkpoints.Put(ctx, state.ThreadID, state); err != nil {
		state.AddWarning("checkpoint final state: %v", err)
	}

	if e.notifier != nil {
		executed, failed := 0, 0
		for _, result := range state.ExecutionResults {
			if result != nil && result.Success {
				executed++
			} else {
				failed++
			}
		}
		e.notifier.RunResumed(ctx, state.ThreadID, executed, failed)
	}

	e.logger.Info("Thread resumed", "thread_id", req.ThreadID, "executed", len(state.ExecutionResults))
	return e.respond(state, rows), nil
}

// recordMemory appends the run to episodic memory when the diagnosis is
// confident enough. Append faults degrade to warnings.
func (e *Engine) recordMemory(ctx context.Context, state *models.GraphState) {
	if state.Diagnosis == nil || state.Diagnosis.Confidence <= e.cfg.MemoryConfidence {
		return
	}

	outcome := models.OutcomeAnalysisShared
	if len(state.PendingProposals) > 0 {
		outcome = models.OutcomePendingApproval
	}
	incident := models.MemoryIncident{
		Summary:   state.UserQuery,
		RootCause: clip(state.Diagnosis.Narrative, 500),
		Outcome:   outcome,
	}

	id, err := e.memory.Append(ctx, incident)
	if err != nil {
		e.logger.Warn("Memory append failed", "error", err)
		state.AddWarning("memory append failed: %v", err)
		return
	}
	e.logger.Debug("Run recorded to memory", "memory_id", id, "outcome", outcome)
}

func (e *Engine) respond(state *models.GraphState, actions []models.PendingAction) *models.QueryResponse {
	state.Diagnostics = buildDiagnostics(state)
	if actions == nil {
		actions = []models.PendingAction{}
	}
	answer := state.FinalAnswer
	if answer == "" && state.Diagnosis != nil {
		answer = state.Diagnosis.Narrative
	}
	return &models.QueryResponse{
		Answer:         answer,
		Diagnostics:    state.Diagnostics,
		PendingActions: actions,
		ThreadID:       state.ThreadID,
		HITLWaiting:    state.HITLWait,
	}
}

func buildDiagnostics(state *models.GraphState) []string {
	var diags []string
	if executed := sortedKeys(state.ExecutedAgents); len(executed) > 0 {
		diags = append(diags, "Agents executed: "+strings.Join(executed, ", "))
	} else {
		diags = append(diags, "Agents executed: none")
	}
	if state.ReplanCount > 0 {
		diags = append(diags, fmt.Sprintf("Replans: %d", state.ReplanCount))
	}
	if state.HITLWait {
		diags = append(diags, "HITL pending actions detected.")
	}
	if state.HITLResumed {
		diags = append(diags, "Resumed after human approval.")
	}
	if len(state.SystemWarnings) > 0 {
		diags = append(diags, fmt.Sprintf("Warnings: %d", len(state.SystemWarnings)))
	}
	return diags
}
