package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/models"
)

var testAgentOrder = []string{"sales", "inventory", "marketing", "support", "data_analyst", "historian"}

func TestSynthesize_UsesLLMAnswer(t *testing.T) {
	llm := &cannedLLM{script: []string{"Revenue is up 12% week over week."}}
	s := NewSynthesizer(llm, testAgentOrder)

	state := models.NewGraphState("t1", "How is revenue?", 2)
	state.AgentFindings["sales"] = map[string]any{"total_revenue": 1200.0}
	state.AgentInsights["sales"] = []string{"Revenue is healthy.", "Orders grew."}

	s.Synthesize(context.Background(), state)

	require.NotNil(t, state.Diagnosis)
	assert.Equal(t, "Revenue is up 12% week over week.", state.Diagnosis.Narrative)
	assert.Equal(t, "Revenue is up 12% week over week.", state.FinalAnswer)
	assert.Equal(t, []string{"sales: Revenue is healthy.", "sales: Orders grew."}, state.Diagnosis.KeyFindings)
	assert.InDelta(t, 0.7, state.Diagnosis.Confidence, 0.0001)
	assert.False(t, state.HITLWait)
}

func TestSynthesize_FallbackOnLLMFailure(t *testing.T) {
	s := NewSynthesizer(failingLLM(), testAgentOrder)

	state := models.NewGraphState("t1", "How is revenue?", 2)
	state.AgentInsights["sales"] = []string{"Revenue is healthy."}
	state.AddWarning("support agent failed: timeout")

	s.Synthesize(context.Background(), state)

	require.NotNil(t, state.Diagnosis)
	assert.Contains(t, state.FinalAnswer, "Based on the analysis:")
	assert.Contains(t, state.FinalAnswer, "- Revenue is healthy.")
	assert.Contains(t, state.FinalAnswer, "Warnings encountered:")
	assert.Contains(t, state.FinalAnswer, "- support agent failed: timeout")
}

func TestSynthesize_FallbackWithoutInsights(t *testing.T) {
	s := NewSynthesizer(failingLLM(), testAgentOrder)
	state := models.NewGraphState("t1", "How is revenue?", 2)

	s.Synthesize(context.Background(), state)

	assert.Contains(t, state.FinalAnswer, "Investigation completed; awaiting more signals.")
	assert.InDelta(t, 0.5, state.Diagnosis.Confidence, 0.0001)
}

func TestSynthesize_BlankAnswerFallsBack(t *testing.T) {
	llm := &cannedLLM{script: []string{"   \n  "}}
	s := NewSynthesizer(llm, testAgentOrder)
	state := models.NewGraphState("t1", "How is revenue?", 2)
	state.AgentInsights["sales"] = []string{"Revenue is healthy."}

	s.Synthesize(context.Background(), state)

	assert.Contains(t, state.FinalAnswer, "Based on the analysis:")
}

func TestSynthesize_SplitsApprovalProposals(t *testing.T) {
	llm := &cannedLLM{script: []string{"Pause the failing campaign."}}
	s := NewSynthesizer(llm, testAgentOrder)

	state := models.NewGraphState("t1", "Check campaigns.", 2)
	state.Recommendations = []models.AgentRecommendation{
		{ActionType: "pause_campaign", RequiresApproval: true, Agent: "marketing"},
		{ActionType: "investigate_decline", RequiresApproval: false, Agent: "sales"},
		{ActionType: "restock_item", RequiresApproval: true, Agent: "inventory"},
	}

	s.Synthesize(context.Background(), state)

	require.Len(t, state.PendingProposals, 2)
	assert.Equal(t, "pause_campaign", state.PendingProposals[0].ActionType)
	assert.Equal(t, "restock_item", state.PendingProposals[1].ActionType)
	assert.True(t, state.HITLWait)
}

func TestConfidence_Saturates(t *testing.T) {
	assert.InDelta(t, 0.5, confidence(0), 0.0001)
	assert.InDelta(t, 0.8, confidence(3), 0.0001)
	assert.InDelta(t, 0.95, confidence(5), 0.0001)
	assert.InDelta(t, 0.95, confidence(20), 0.0001)
}

func TestBuildSynthesisContext_Sections(t *testing.T) {
	s := NewSynthesizer(failingLLM(), testAgentOrder)

	state := models.NewGraphState("t1", "What is going on?", 2)
	state.AgentFindings["support"] = map[string]any{"total_tickets": float64(9)}
	state.AgentFindings["sales"] = map[string]any{"total_revenue": 55.5}
	state.AgentInsights["sales"] = []string{"Revenue dipped."}
	state.MemoryContext = []models.MemoryHit{{
		MemoryIncident: models.MemoryIncident{
			Summary:   "Stockout during promo",
			RootCause: "No reorder threshold",
			Outcome:   "pending_approval",
		},
		Score: 0.8,
	}}
	state.AddWarning("marketing agent failed: timeout")

	out := s.buildSynthesisContext(state)

	assert.Contains(t, out, "USER QUESTION: What is going on?")
	assert.Contains(t, out, "--- SALES AGENT FINDINGS ---")
	assert.Contains(t, out, "--- SUPPORT AGENT FINDINGS ---")
	assert.Less(t, indexOf(t, out, "--- SALES AGENT FINDINGS ---"), indexOf(t, out, "--- SUPPORT AGENT FINDINGS ---"))
	assert.Contains(t, out, `"total_revenue": 55.5`)
	assert.Contains(t, out, "  - Revenue dipped.")
	assert.Contains(t, out, "HISTORICAL CONTEXT (similar past incidents):")
	assert.Contains(t, out, "Stockout during promo (root cause: No reorder threshold; outcome: pending_approval)")
	assert.Contains(t, out, "WARNINGS:")
	assert.Contains(t, out, "  - marketing agent failed: timeout")
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := strings.Index(haystack, needle)
	require.GreaterOrEqual(t, idx, 0, "expected %q in context", needle)
	return idx
}

func TestOrderedAgents(t *testing.T) {
	m := map[string][]string{
		"zeta":  {"z"},
		"sales": {"s"},
		"alpha": {"a"},
	}

	got := orderedAgents(m, []string{"sales", "inventory"})

	assert.Equal(t, []string{"sales", "alpha", "zeta"}, got)
}
