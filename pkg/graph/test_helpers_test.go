package graph

import (
	"context"
	"errors"
	"sync"

	"github.com/ecomops/opsloop/pkg/agent"
	"github.com/ecomops/opsloop/pkg/models"
)

// stubAgent replays canned results in call order, panicking for the first
// `panics` calls, and records every task and run context it received.
type stubAgent struct {
	meta    models.AgentMetadata
	results []models.AgentResult
	panics  int

	mu    sync.Mutex
	calls int
	tasks []models.AgentTask
	rcs   []agent.RunContext
}

func (a *stubAgent) Metadata() models.AgentMetadata { return a.meta }

func (a *stubAgent) Run(_ context.Context, task models.AgentTask, rc agent.RunContext) models.AgentResult {
	a.mu.Lock()
	call := a.calls
	a.calls++
	a.tasks = append(a.tasks, task)
	a.rcs = append(a.rcs, rc)
	a.mu.Unlock()

	if call < a.panics {
		panic("stub agent exploded")
	}
	idx := call - a.panics
	if idx >= len(a.results) {
		idx = len(a.results) - 1
	}
	return a.results[idx]
}

func (a *stubAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func stubMeta(name string, capabilities ...string) models.AgentMetadata {
	caps := make([]models.Capability, 0, len(capabilities))
	for _, c := range capabilities {
		caps = append(caps, models.Capability{Name: c, Description: "stub " + c + " mode"})
	}
	return models.AgentMetadata{
		Name:         name,
		DisplayName:  name,
		Description:  "stub " + name + " agent",
		Capabilities: caps,
	}
}

// cannedLLM replays scripted completions in call order; the last entry
// repeats. A nil script means every call fails.
type cannedLLM struct {
	script []string
	err    error

	mu      sync.Mutex
	systems []string
	users   []string
}

func (f *cannedLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	if f.err != nil {
		return "", f.err
	}
	if len(f.script) == 0 {
		return "", errors.New("no scripted completion")
	}
	idx := len(f.users) - 1
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx], nil
}

func (f *cannedLLM) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings not configured")
}

func failingLLM() *cannedLLM {
	return &cannedLLM{err: errors.New("llm unavailable")}
}

// fakeActionStore assigns incremental IDs and appends "create:<type>" to the
// shared event log on every insert.
type fakeActionStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]models.PendingAction
	events  *[]string
	failErr error
}

func newFakeActionStore(events *[]string) *fakeActionStore {
	return &fakeActionStore{nextID: 1, rows: map[int64]models.PendingAction{}, events: events}
}

func (s *fakeActionStore) Create(_ context.Context, req models.CreatePendingActionRequest) (*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	row := models.PendingAction{
		ID:         s.nextID,
		Agent:      req.Agent,
		ActionType: req.ActionType,
		Payload:    req.Payload,
		Reasoning:  req.Reasoning,
		Status:     req.Status,
	}
	s.rows[row.ID] = row
	s.nextID++
	if s.events != nil {
		*s.events = append(*s.events, "create:"+req.ActionType)
	}
	return &row, nil
}

func (s *fakeActionStore) ListByIDs(_ context.Context, ids []int64) ([]models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PendingAction, 0, len(ids))
	for _, id := range ids {
		if row, ok := s.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// fakeRunner scripts per-action execution outcomes.
type fakeRunner struct {
	mu       sync.Mutex
	results  map[int64]*models.ExecutionResult
	errs     map[int64]error
	executed []int64
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: map[int64]*models.ExecutionResult{}, errs: map[int64]error{}}
}

func (r *fakeRunner) ExecuteApproved(_ context.Context, id int64) (*models.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, id)
	if err := r.errs[id]; err != nil {
		return nil, err
	}
	if result := r.results[id]; result != nil {
		return result, nil
	}
	return &models.ExecutionResult{Success: true, Message: "done"}, nil
}

// fakeRecorder captures appended incidents.
type fakeRecorder struct {
	mu        sync.Mutex
	incidents []models.MemoryIncident
	err       error
}

func (r *fakeRecorder) Append(_ context.Context, incident models.MemoryIncident) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.incidents = append(r.incidents, incident)
	return int64(len(r.incidents)), nil
}

// fakeNotifier records approval notifications and appends "notify:*" markers
// to the shared event log so ordering against checkpoints can be asserted.
type fakeNotifier struct {
	mu       sync.Mutex
	events   *[]string
	requests []approvalRequest
	resumes  []resumeNotice
}

type approvalRequest struct {
	threadID string
	question string
	actions  []models.PendingAction
}

type resumeNotice struct {
	threadID string
	executed int
	failed   int
}

func (n *fakeNotifier) ApprovalRequested(_ context.Context, threadID, question string, actions []models.PendingAction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, approvalRequest{threadID: threadID, question: question, actions: actions})
	if n.events != nil {
		*n.events = append(*n.events, "notify:approval")
	}
}

func (n *fakeNotifier) RunResumed(_ context.Context, threadID string, executed, failed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resumes = append(n.resumes, resumeNotice{threadID: threadID, executed: executed, failed: failed})
	if n.events != nil {
		*n.events = append(*n.events, "notify:resumed")
	}
}
