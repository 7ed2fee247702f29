package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ecomops/opsloop/pkg/llm"
	"github.com/ecomops/opsloop/pkg/models"
)

const synthesisSystemPrompt = `You are an AI operations analyst for an e-commerce business.
Your job is to analyze data from specialist agents and provide clear, actionable insights.

Based on the collected findings and insights, provide:
1. A clear, concise answer to the user's question
2. Key findings summarized in plain language
3. Recommended actions if any issues are detected

Be specific with numbers and percentages. If there is a problem, state the most likely causes explicitly.
If you do not have enough data to answer, say so clearly.`

// Synthesizer turns the accumulated agent output into a final diagnosis and
// stages approval-gated recommendations as pending proposals.
type Synthesizer struct {
	llm    llm.Client
	order  []string
	logger *slog.Logger
}

// NewSynthesizer builds a synthesizer; agentOrder fixes the presentation
// order of per-agent sections so answers are reproducible.
func NewSynthesizer(llmClient llm.Client, agentOrder []string) *Synthesizer {
	return &Synthesizer{llm: llmClient, order: agentOrder, logger: slog.With("component", "synthesizer")}
}

// Synthesize writes the diagnosis, final answer, pending proposals and HITL
// flag onto state. An LLM fault degrades to the deterministic fallback
// answer rather than failing the run.
func (s *Synthesizer) Synthesize(ctx context.Context, state *models.GraphState) {
	answer, err := s.llm.Complete(ctx, synthesisSystemPrompt, s.buildSynthesisContext(state))
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			s.logger.Warn("Synthesis completion failed, using fallback answer", "error", err)
		}
		answer = s.fallbackSynthesis(state)
	}

	keyFindings := s.flattenInsights(state)
	state.Diagnosis = &models.Diagnosis{
		Narrative:   answer,
		KeyFindings: keyFindings,
		Confidence:  confidence(len(keyFindings)),
	}
	state.FinalAnswer = answer

	state.PendingProposals = nil
	for _, rec := range state.Recommendations {
		if rec.RequiresApproval {
			state.PendingProposals = append(state.PendingProposals, rec)
		}
	}
	state.HITLWait = len(state.PendingProposals) > 0
}

// confidence grows with the number of distinct insights and saturates at
// 0.95.
func confidence(insights int) float64 {
	c := 0.5 + 0.1*float64(insights)
	if c > 0.95 {
		return 0.95
	}
	return c
}

func (s *Synthesizer) flattenInsights(state *models.GraphState) []string {
	var flat []string
	for _, name := range orderedAgents(state.AgentInsights, s.order) {
		for _, insight := range state.AgentInsights[name] {
			flat = append(flat, fmt.Sprintf("%s: %s", name, insight))
		}
	}
	return flat
}

// orderedAgents returns m's keys with the preferred names first, stragglers
// sorted after.
func orderedAgents[V any](m map[string]V, preferred []string) []string {
	seen := make(map[string]bool, len(m))
	ordered := make([]string, 0, len(m))
	for _, name := range preferred {
		if _, ok := m[name]; ok && !seen[name] {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range m {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

func (s *Synthesizer) buildSynthesisContext(state *models.GraphState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "USER QUESTION: %s\n", state.UserQuery)

	if len(state.AgentFindings) > 0 {
		b.WriteString("\nCOLLECTED DATA FROM AGENTS:\n")
		for _, name := range orderedAgents(state.AgentFindings, s.order) {
			fmt.Fprintf(&b, "\n--- %s AGENT FINDINGS ---\n", strings.ToUpper(name))
			if data, err := json.MarshalIndent(state.AgentFindings[name], "", "  "); err == nil {
				b.Write(data)
				b.WriteString("\n")
			}
		}
	}

	if len(state.AgentInsights) > 0 {
		b.WriteString("\nAGENT INSIGHTS:\n")
		for _, name := range orderedAgents(state.AgentInsights, s.order) {
			fmt.Fprintf(&b, "\n%s:\n", name)
			for _, insight := range state.AgentInsights[name] {
				fmt.Fprintf(&b, "  - %s\n", insight)
			}
		}
	}

	if len(state.MemoryContext) > 0 {
		b.WriteString("\nHISTORICAL CONTEXT (similar past incidents):\n")
		for _, hit := range state.MemoryContext {
			fmt.Fprintf(&b, "  - %s (root cause: %s; outcome: %s)\n",
				hit.Summary, hit.RootCause, hit.Outcome)
		}
	}

	if len(state.SystemWarnings) > 0 {
		b.WriteString("\nWARNINGS:\n")
		for _, warning := range state.SystemWarnings {
			fmt.Fprintf(&b, "  - %s\n", warning)
		}
	}

	return b.String()
}

// fallbackSynthesis renders a deterministic answer from the raw insights
// when the LLM is unavailable.
func (s *Synthesizer) fallbackSynthesis(state *models.GraphState) string {
	insights := state.AllInsights(orderedAgents(state.AgentInsights, s.order))

	var lines []string
	if len(insights) > 0 {
		lines = append(lines, "Based on the analysis:", "")
		for _, insight := range insights {
			lines = append(lines, "- "+insight)
		}
	} else {
		lines = append(lines, "Investigation completed; awaiting more signals.")
	}

	if len(state.SystemWarnings) > 0 {
		lines = append(lines, "", "Warnings encountered:")
		for _, warning := range state.SystemWarnings {
			lines = append(lines, "- "+warning)
		}
	}
	return strings.Join(lines, "\n")
}
