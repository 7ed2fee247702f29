package agent

import (
	"github.com/ecomops/opsloop/pkg/llm"
	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/memory"
	"github.com/ecomops/opsloop/pkg/models"
)

// Registry holds the runnable agents keyed by name. Registration order is
// preserved so planner prompts and fallback scans stay deterministic.
type Registry struct {
	names  []string
	agents map[string]Agent
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// NewDefaultRegistry wires the six stock agents over the shared tool client,
// LLM, and memory service.
func NewDefaultRegistry(invoker mcp.Invoker, llmClient llm.Client, memorySvc *memory.Service) *Registry {
	r := NewRegistry()
	r.Register(NewSalesAgent(invoker))
	r.Register(NewInventoryAgent(invoker))
	r.Register(NewMarketingAgent(invoker))
	r.Register(NewSupportAgent(invoker))
	r.Register(NewDataAnalystAgent(llmClient))
	r.Register(NewHistorianAgent(memorySvc))
	return r
}

// Register adds or replaces an agent under its metadata name.
func (r *Registry) Register(a Agent) {
	name := a.Metadata().Name
	if _, exists := r.agents[name]; !exists {
		r.names = append(r.names, name)
	}
	r.agents[name] = a
}

// Get resolves an agent by name.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names lists registered agent names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Metadata lists agent self-descriptions in registration order.
func (r *Registry) Metadata() []models.AgentMetadata {
	out := make([]models.AgentMetadata, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.agents[name].Metadata())
	}
	return out
}
