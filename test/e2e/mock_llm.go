package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ecomops/opsloop/pkg/llm"
)

// Roles a completion call can be attributed to, classified from the system
// prompt. Planner, synthesizer and the data analyst are the only components
// that talk to the model.
const (
	RolePlanner     = "planner"
	RoleSynthesizer = "synthesizer"
	RoleAnalyst     = "analyst"
)

// LLMScriptEntry is one scripted completion.
type LLMScriptEntry struct {
	Text string
	Err  error

	// Block, when non-nil, parks the call until the channel is closed (or
	// the context ends). OnBlock fires once when the call starts waiting.
	Block   chan struct{}
	OnBlock func()
}

// LLMCall records one completion request for assertions.
type LLMCall struct {
	Role   string
	System string
	User   string
}

// ScriptedLLMClient implements llm.Client with a deterministic script.
// Routed entries are consumed per role first; the sequential queue serves
// everything else. An exhausted script returns an error, which the engine
// absorbs through its deterministic fallbacks, so CallCount assertions are
// what catch scripting drift.
type ScriptedLLMClient struct {
	mu         sync.Mutex
	sequential []LLMScriptEntry
	routed     map[string][]LLMScriptEntry
	calls      []LLMCall
}

var _ llm.Client = (*ScriptedLLMClient)(nil)

// NewScriptedLLMClient returns an empty script.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{routed: make(map[string][]LLMScriptEntry)}
}

// AddSequential appends entries served in order to any role without a
// routed script.
func (c *ScriptedLLMClient) AddSequential(entries ...LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequential = append(c.sequential, entries...)
}

// AddRouted appends entries served only to completion calls of the given
// role, ahead of the sequential queue.
func (c *ScriptedLLMClient) AddRouted(role string, entries ...LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routed[role] = append(c.routed[role], entries...)
}

// Complete pops the next scripted entry for the call's role.
func (c *ScriptedLLMClient) Complete(ctx context.Context, system, user string) (string, error) {
	role := classifyRole(system)

	c.mu.Lock()
	c.calls = append(c.calls, LLMCall{Role: role, System: system, User: user})

	var entry LLMScriptEntry
	switch {
	case len(c.routed[role]) > 0:
		entry = c.routed[role][0]
		c.routed[role] = c.routed[role][1:]
	case len(c.sequential) > 0:
		entry = c.sequential[0]
		c.sequential = c.sequential[1:]
	default:
		c.mu.Unlock()
		return "", fmt.Errorf("llm script exhausted (role %s, call %d)", role, len(c.calls))
	}
	c.mu.Unlock()

	if entry.Block != nil {
		if entry.OnBlock != nil {
			entry.OnBlock()
		}
		select {
		case <-entry.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if entry.Err != nil {
		return "", entry.Err
	}
	return entry.Text, nil
}

// CallCount reports how many completions were requested.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Calls returns a snapshot of the recorded completion requests.
func (c *ScriptedLLMClient) Calls() []LLMCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LLMCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// classifyRole attributes a completion to its caller by the opening of the
// system prompt.
func classifyRole(system string) string {
	switch {
	case strings.HasPrefix(system, "You are the planning supervisor"):
		return RolePlanner
	case strings.HasPrefix(system, "You are an AI operations analyst"):
		return RoleSynthesizer
	case strings.HasPrefix(system, "Database Schema (PostgreSQL)"):
		return RoleAnalyst
	default:
		return "unknown"
	}
}

// planJSON renders a single-task plan the planner accepts verbatim.
func planJSON(agentName, objective, mode string, params map[string]any) string {
	var b strings.Builder
	b.WriteString(`[{"agent":"`)
	b.WriteString(agentName)
	b.WriteString(`","objective":"`)
	b.WriteString(objective)
	b.WriteString(`","parameters":{"mode":"`)
	b.WriteString(mode)
	b.WriteString(`"`)
	for key, value := range params {
		fmt.Fprintf(&b, `,%q:%v`, key, jsonScalar(value))
	}
	b.WriteString(`},"priority":1}]`)
	return b.String()
}

func jsonScalar(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
