// Package agent contains the specialist workers the planner can task: sales,
// inventory, marketing, support, the data analyst, and the historian. Agents
// are plain values implementing a two-method capability set; there is no
// inheritance hierarchy. Each agent owns a small fixed set of core modes that
// map 1:1 to tool invocations and declines anything outside them with a
// cannot_handle result so the engine can reroute.
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/models"
)

// RunContext carries the per-run surroundings an agent may consult: the
// verbatim question, the conversation tail, memory hits, and a snapshot of
// what other agents have already produced in this run.
type RunContext struct {
	UserQuery           string
	ConversationHistory []models.ConversationTurn
	MemoryContext       []models.MemoryHit
	StateSnapshot       map[string]any
}

// Agent is one specialist worker.
type Agent interface {
	Metadata() models.AgentMetadata
	Run(ctx context.Context, task models.AgentTask, rc RunContext) models.AgentResult
}

// toolFailure converts a tool-transport error into the matching result
// status. Network-level faults never reached the server and are worth a
// retry; a server-side rejection is deterministic and terminal.
func toolFailure(agentName string, err error) models.AgentResult {
	var mcpErr *mcp.MCPError
	if errors.As(err, &mcpErr) {
		return models.RetryResult(err)
	}
	return models.FailureResult("%s agent: %v", agentName, err)
}

// cannotHandle builds the declination result for queries outside an agent's
// core capabilities, suggesting the data analyst as successor.
func cannotHandle(domain, reason string) models.AgentResult {
	res := models.CannotHandleResult(reason, "data_analyst")
	res.Insights = []string{
		fmt.Sprintf("This %s query requires advanced analytics beyond my core capabilities.", domain),
		"Routing to the data analyst for custom SQL generation with human approval.",
	}
	return res
}

// matchesAny reports whether the lowercased query contains any of the
// substrings.
func matchesAny(query string, substrings []string) bool {
	q := strings.ToLower(query)
	for _, s := range substrings {
		if strings.Contains(q, s) {
			return true
		}
	}
	return false
}

// matchesAnyPattern reports whether any pattern matches the lowercased query.
func matchesAnyPattern(query string, patterns []*regexp.Regexp) bool {
	q := strings.ToLower(query)
	for _, p := range patterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// compilePatterns compiles a pattern list at package init.
func compilePatterns(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// intParam reads an integer task parameter, tolerating the float64 that JSON
// decoding produces.
func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// stringParam reads a string task parameter.
func stringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

// boolParam reads a boolean task parameter.
func boolParam(params map[string]any, key string, def bool) bool {
	if b, ok := params[key].(bool); ok {
		return b
	}
	return def
}

// intsParam reads a list of integers from a task parameter ([]int from the
// keyword planner, []any of float64 from decoded JSON).
func intsParam(params map[string]any, key string) []int {
	switch v := params[key].(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, int(n))
			case int:
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

// numField reads a numeric field from a decoded tool result.
func numField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// strField reads a string field from a decoded tool result.
func strField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// boolField reads a boolean field from a decoded tool result.
func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// listField reads a list-of-objects field from a decoded tool result.
func listField(m map[string]any, key string) []map[string]any {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// mapField reads a nested object field from a decoded tool result.
func mapField(m map[string]any, key string) map[string]any {
	obj, _ := m[key].(map[string]any)
	return obj
}

// truncate shortens s to at most n characters, marking the cut with an
// ellipsis.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
