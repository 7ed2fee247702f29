// Package graph is the orchestration engine: it plans agent tasks for a
// question, dispatches them in parallel, evaluates the combined outcome,
// re-plans within a bounded budget, synthesizes an answer, and suspends
// durably at the approval gate when agents proposed mutations.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ecomops/opsloop/pkg/agent"
	"github.com/ecomops/opsloop/pkg/llm"
	"github.com/ecomops/opsloop/pkg/models"
)

const planningRules = `TASK ASSIGNMENT RULES:
1. Respond with a JSON array only. Each element: {"agent": string, "objective": string, "parameters": object, "priority": number}.
2. parameters must include "mode" (one of the agent's capability names) and may include the capability's documented parameters.
3. priority 1 is dispatched first. Emit at most one task per agent and at most four tasks.
4. Agents are intentionally narrow. Comparison, ranking, regional, channel, or cross-domain questions make a specialist return cannot_handle and get rerouted; assign data_analyst directly when the question is clearly outside every specialist's core capabilities.
5. Add a historian query task when the question asks why something happened or references the past.`

// Planner turns a user question into an ordered battle plan. The LLM path is
// tried first; any planning fault falls back to the deterministic keyword
// rules.
type Planner struct {
	registry *agent.Registry
	llm      llm.Client
	logger   *slog.Logger
}

// NewPlanner builds a planner over the agent registry and LLM client.
func NewPlanner(registry *agent.Registry, llmClient llm.Client) *Planner {
	return &Planner{registry: registry, llm: llmClient, logger: slog.With("component", "planner")}
}

// Plan produces the initial battle plan for state.
func (p *Planner) Plan(ctx context.Context, state *models.GraphState) []models.AgentTask {
	tasks, err := p.planLLM(ctx, state, "")
	if err != nil {
		p.logger.Info("Planner falling back to keyword rules", "reason", err)
		return p.KeywordPlan(state)
	}
	p.logger.Debug("LLM plan accepted", "tasks", len(tasks))
	return tasks
}

func (p *Planner) planLLM(ctx context.Context, state *models.GraphState, extra string) ([]models.AgentTask, error) {
	raw, err := p.llm.Complete(ctx, p.systemPrompt(), planUserPrompt(state, extra))
	if err != nil {
		return nil, fmt.Errorf("plan completion: %w", err)
	}
	tasks, err := p.parsePlan(raw, state.UserQuery)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("plan response yielded no usable tasks")
	}
	return tasks, nil
}

// systemPrompt enumerates every registered agent's self-description plus the
// global assignment rules.
func (p *Planner) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are the planning supervisor of an e-commerce operations assistant.\n")
	b.WriteString("Decompose the user's question into tasks for the specialist agents below.\n\n")
	b.WriteString("AVAILABLE AGENTS:\n")

	for _, meta := range p.registry.Metadata() {
		fmt.Fprintf(&b, "\n### %s (%s)\n%s\n", meta.DisplayName, meta.Name, meta.Description)
		for _, capability := range meta.Capabilities {
			fmt.Fprintf(&b, "- mode %q: %s\n", capability.Name, capability.Description)
			for _, param := range capability.Parameters {
				fmt.Fprintf(&b, "    param %s\n", param)
			}
			for i, example := range capability.ExampleQueries {
				if i == 2 {
					break
				}
				fmt.Fprintf(&b, "    e.g. %q\n", example)
			}
		}
		if len(meta.Keywords) > 0 {
			fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(meta.Keywords, ", "))
		}
	}

	b.WriteString("\n")
	b.WriteString(planningRules)
	return b.String()
}

func planUserPrompt(state *models.GraphState, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "USER QUESTION: %s\n", state.UserQuery)

	if n := len(state.ConversationHistory); n > 0 {
		b.WriteString("\nRECENT CONVERSATION:\n")
		start := n - 3
		if start < 0 {
			start = 0
		}
		for _, turn := range state.ConversationHistory[start:] {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
	}

	if len(state.Metadata) > 0 {
		if data, err := json.Marshal(state.Metadata); err == nil {
			fmt.Fprintf(&b, "\nCALLER METADATA: %s\n", data)
		}
	}

	if extra != "" {
		b.WriteString("\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}

	b.WriteString("\nJSON task array:")
	return b.String()
}

type planEntry struct {
	Agent      string         `json:"agent"`
	Objective  string         `json:"objective"`
	Parameters map[string]any `json:"parameters"`
	Priority   float64        `json:"priority"`
}

// parsePlan decodes the model's task array, dropping unknown agents,
// coercing modes to real capability names and forcing the verbatim query
// onto every task.
func (p *Planner) parsePlan(raw, userQuery string) ([]models.AgentTask, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("plan response carries no JSON array: %s", clip(raw, 120))
	}

	var entries []planEntry
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	tasks := make([]models.AgentTask, 0, len(entries))
	for i, entry := range entries {
		worker, ok := p.registry.Get(entry.Agent)
		if !ok {
			p.logger.Warn("Plan names an unregistered agent, dropping task", "agent", entry.Agent)
			continue
		}

		params := entry.Parameters
		if params == nil {
			params = map[string]any{}
		}
		meta := worker.Metadata()
		if mode, _ := params["mode"].(string); !meta.HasCapability(mode) && len(meta.Capabilities) > 0 {
			params["mode"] = meta.Capabilities[0].Name
		}
		params["query"] = userQuery

		priority := int(entry.Priority)
		if priority <= 0 {
			priority = i + 1
		}
		tasks = append(tasks, models.AgentTask{
			Agent:      entry.Agent,
			Objective:  entry.Objective,
			Parameters: params,
			Priority:   priority,
			ResultSlot: resultSlot(entry.Agent),
		})
	}

	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority < tasks[j].Priority })
	return tasks, nil
}

var topNPattern = regexp.MustCompile(`top\s*(\d+)`)

// KeywordPlan is the deterministic fallback planner: substring rules over
// the lowercased question, accumulated per domain, with a sales health
// check when nothing matches.
func (p *Planner) KeywordPlan(state *models.GraphState) []models.AgentTask {
	query := strings.ToLower(state.UserQuery)
	has := func(substrings ...string) bool {
		for _, s := range substrings {
			if strings.Contains(query, s) {
				return true
			}
		}
		return false
	}

	var tasks []models.AgentTask
	add := func(agentName, objective, mode string, params map[string]any) {
		if params == nil {
			params = map[string]any{}
		}
		params["mode"] = mode
		params["query"] = state.UserQuery
		tasks = append(tasks, models.AgentTask{
			Agent:      agentName,
			Objective:  objective,
			Parameters: params,
			Priority:   len(tasks) + 1,
			ResultSlot: resultSlot(agentName),
		})
	}

	// Top products outranks the general sales check within the sales domain.
	switch {
	case has("top", "best", "highest", "most sold") && has("product", "item", "sku", "selling"):
		limit := 5
		if m := topNPattern.FindStringSubmatch(query); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				limit = n
			}
		}
		add("sales", "Find top selling products.", "top_products",
			map[string]any{"window_days": 7, "limit": limit})
	case has("sale", "revenue", "trend", "income"):
		add("sales", "Analyze revenue trends and detect anomalies.", "summary",
			map[string]any{"window_days": 7, "group_by": "day"})
	}

	if has("stock", "inventory", "restock") {
		if has("low stock", "restock", "running low", "need restock") {
			add("inventory", "Scan for products needing restock.", "low_stock_scan",
				map[string]any{"include_out_of_stock": true, "limit": 20})
		} else {
			add("inventory", "Check stock levels for key products.", "check_stock",
				map[string]any{"product_ids": focusProducts(state.Metadata)})
		}
	}
	if has("campaign", "ad", "roas", "spend") {
		add("marketing", "Evaluate campaign spend efficiency.", "campaign_spend",
			map[string]any{"window_days": 7})
	}
	if has("ticket", "support", "sentiment", "complaint") {
		add("support", "Summarize support sentiment and issue spikes.", "sentiment_analysis",
			map[string]any{"window_days": 7})
	}
	if has("why", "reason", "cause", "explain", "happened") {
		add("historian", "Retrieve similar past incidents for context.", "query",
			map[string]any{"k": 3})
	}

	if len(tasks) == 0 {
		add("sales", "General sales health check.", "summary",
			map[string]any{"window_days": 7, "group_by": "day"})
	}
	return tasks
}

// AnalystTask is the single-task plan used when specialists decline or
// nothing else can serve the question.
func AnalystTask(userQuery string) models.AgentTask {
	return models.AgentTask{
		Agent:     "data_analyst",
		Objective: "Generate custom SQL analysis for: " + userQuery,
		Parameters: map[string]any{
			"mode":  "custom_analysis",
			"query": userQuery,
		},
		Priority:   1,
		ResultSlot: resultSlot("data_analyst"),
	}
}

func resultSlot(agentName string) string {
	if agentName == "historian" {
		return "memory_context"
	}
	return "agent_findings." + agentName
}

func focusProducts(metadata map[string]any) []int {
	switch ids := metadata["focus_product_ids"].(type) {
	case []int:
		if len(ids) > 0 {
			return ids
		}
	case []any:
		out := make([]int, 0, len(ids))
		for _, v := range ids {
			switch n := v.(type) {
			case float64:
				out = append(out, int(n))
			case int:
				out = append(out, n)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []int{1, 2, 3}
}

// clip bounds s to n runes.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
