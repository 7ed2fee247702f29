package graph

import (
	"reflect"
	"strings"

	"github.com/ecomops/opsloop/pkg/models"
)

// Evaluate decides whether the round's results justify another planning
// pass. It returns true when a replan should run and records the reason on
// the state; the replan budget always wins.
func Evaluate(state *models.GraphState) bool {
	if state.ReplanCount >= state.MaxReplans {
		return false
	}

	if len(state.CannotHandleAgents) > 0 && !state.ExecutedAgents["data_analyst"] {
		state.NeedsReplan = true
		state.RouteToAnalyst = true
		state.ReplanReason = "specialist agents declined; routing to data analyst"
		return true
	}

	if len(state.AgentFindings) == 0 {
		state.NeedsReplan = true
		state.ReplanReason = "no agents returned findings"
		return true
	}

	if len(state.BattlePlan) > 0 && state.FailedAgents[state.BattlePlan[0].Agent] {
		state.NeedsReplan = true
		state.ReplanReason = "primary agent failed"
		return true
	}

	if allFindingsEmpty(state.AgentFindings) {
		state.NeedsReplan = true
		state.ReplanReason = "all agents returned empty results"
		return true
	}

	return false
}

func allFindingsEmpty(findings map[string]map[string]any) bool {
	for _, f := range findings {
		if hasSubstance(f) {
			return false
		}
	}
	return true
}

func hasSubstance(m map[string]any) bool {
	for _, v := range m {
		if substantial(v) {
			return true
		}
	}
	return false
}

// substantial reports whether a finding value carries signal: non-blank
// strings, non-zero numbers, true booleans, non-empty collections.
func substantial(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case map[string]any:
		return hasSubstance(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
