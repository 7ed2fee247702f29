package models

import "fmt"

// Diagnosis is the synthesized conclusion of a run.
type Diagnosis struct {
	Narrative   string   `json:"narrative"`
	KeyFindings []string `json:"key_findings"`
	Confidence  float64  `json:"confidence"` // always in [0, 0.95]
}

// ConversationTurn is one prior exchange supplied by the caller.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GraphState is the full, JSON-serializable state of one engine run.
// It is owned by the engine while the run is live and by the checkpoint
// store while the run is suspended at the approval gate.
type GraphState struct {
	UserQuery           string                      `json:"user_query"`
	ConversationHistory []ConversationTurn          `json:"conversation_history,omitempty"`
	Metadata            map[string]any              `json:"metadata,omitempty"`
	BattlePlan          []AgentTask                 `json:"battle_plan,omitempty"`
	AgentFindings       map[string]map[string]any   `json:"agent_findings,omitempty"`
	AgentInsights       map[string][]string         `json:"agent_insights,omitempty"`
	Recommendations     []AgentRecommendation       `json:"recommendations,omitempty"`
	CannotHandleAgents  []CannotHandleNote          `json:"cannot_handle_agents,omitempty"`
	MemoryContext       []MemoryHit                 `json:"memory_context,omitempty"`
	Diagnosis           *Diagnosis                  `json:"diagnosis,omitempty"`
	PendingProposals    []AgentRecommendation       `json:"pending_action_proposals,omitempty"`
	SystemWarnings      []string                    `json:"system_warnings,omitempty"`
	HITLWait            bool                        `json:"hitl_wait"`
	ThreadID            string                      `json:"thread_id"`
	ReplanCount         int                         `json:"replan_count"`
	MaxReplans          int                         `json:"max_replans"`
	NeedsReplan         bool                        `json:"needs_replan"`
	ReplanReason        string                      `json:"replan_reason,omitempty"`
	RouteToAnalyst      bool                        `json:"route_to_analyst"`
	HITLPendingIDs      []int64                     `json:"hitl_pending_ids,omitempty"`
	HITLApprovedIDs     []int64                     `json:"hitl_approved_ids,omitempty"`
	HITLRejectedIDs     []int64                     `json:"hitl_rejected_ids,omitempty"`
	HITLResumed         bool                        `json:"hitl_resumed"`
	FinalAnswer         string                      `json:"final_answer,omitempty"`
	Diagnostics         []string                    `json:"diagnostics,omitempty"`
	ExecutedAgents      map[string]bool             `json:"executed_agents,omitempty"`
	FailedAgents        map[string]bool             `json:"failed_agents,omitempty"`
	ExecutionResults    map[int64]*ExecutionResult  `json:"execution_results,omitempty"`
}

// NewGraphState builds the initial state for a run.
func NewGraphState(threadID, query string, maxReplans int) *GraphState {
	return &GraphState{
		UserQuery:      query,
		ThreadID:       threadID,
		MaxReplans:     maxReplans,
		AgentFindings:  map[string]map[string]any{},
		AgentInsights:  map[string][]string{},
		ExecutedAgents: map[string]bool{},
		FailedAgents:   map[string]bool{},
	}
}

// AddWarning appends a formatted system warning to the run.
func (s *GraphState) AddWarning(format string, args ...any) {
	s.SystemWarnings = append(s.SystemWarnings, fmt.Sprintf(format, args...))
}

// HasFindings reports whether agent produced any findings in this run.
func (s *GraphState) HasFindings(agent string) bool {
	f, ok := s.AgentFindings[agent]
	return ok && len(f) > 0
}

// AllInsights flattens per-agent insights in stable agent order.
func (s *GraphState) AllInsights(order []string) []string {
	var out []string
	for _, name := range order {
		out = append(out, s.AgentInsights[name]...)
	}
	return out
}
