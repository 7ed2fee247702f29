package models

// Capability is one named mode an agent supports, selected via
// parameters.mode on a task.
type Capability struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Parameters     []string `json:"parameters,omitempty"`
	ExampleQueries []string `json:"example_queries,omitempty"`
}

// AgentMetadata is the static self-description of an agent. It is consumed
// only by the planner to compose its system prompt.
type AgentMetadata struct {
	Name                 string       `json:"name"`
	DisplayName          string       `json:"display_name"`
	Description          string       `json:"description"`
	Capabilities         []Capability `json:"capabilities"`
	Keywords             []string     `json:"keywords,omitempty"`
	PriorityBoostPhrases []string     `json:"priority_boost_phrases,omitempty"`
}

// CapabilityNames lists the capability names in declaration order.
func (m AgentMetadata) CapabilityNames() []string {
	names := make([]string, 0, len(m.Capabilities))
	for _, c := range m.Capabilities {
		names = append(names, c.Name)
	}
	return names
}

// HasCapability reports whether name is one of the agent's modes.
func (m AgentMetadata) HasCapability(name string) bool {
	for _, c := range m.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}
