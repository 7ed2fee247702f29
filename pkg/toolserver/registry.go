// Package toolserver implements the HTTP tool server: a registry of named
// commerce tools exposed through a single POST /invoke endpoint, backed by
// the tools database schema. Read tools aggregate; write tools mutate and
// report old/new values so the engine can audit what changed.
package toolserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidArguments marks a tool call whose arguments fail validation.
// The invoke handler maps it to HTTP 400 with an invalid_arguments error
// body; anything else a tool returns becomes a 500 query_failed.
var ErrInvalidArguments = errors.New("invalid arguments")

// Handler executes one tool call against already-decoded JSON arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Registry maps tool names to handlers.
type Registry struct {
	tools map[string]Handler
}

// NewRegistry wires the full tool set over the given database. The embedder
// backs the vector-memory tools; pass NewDeterministicEmbedder for an
// offline install.
func NewRegistry(db *sql.DB, embedder Embedder) *Registry {
	r := &Registry{tools: map[string]Handler{}}

	sales := &salesTools{db: db}
	inventory := &inventoryTools{db: db}
	marketing := &marketingTools{db: db}
	support := &supportTools{db: db}
	memory := &memoryTools{db: db, embedder: embedder}
	actions := &actionTools{db: db}
	rawSQL := &sqlTool{db: db}

	r.Register("execute_sql_query", rawSQL.Execute)
	r.Register("get_sales_summary", sales.Summary)
	r.Register("get_top_products", sales.TopProducts)
	r.Register("get_inventory_status", inventory.Status)
	r.Register("get_low_stock_products", inventory.LowStock)
	r.Register("get_campaign_spend", marketing.CampaignSpend)
	r.Register("calculate_roas", marketing.CalculateROAS)
	r.Register("get_support_sentiment", support.Sentiment)
	r.Register("get_ticket_trends", support.TicketTrends)
	r.Register("query_vector_memory", memory.Query)
	r.Register("save_to_memory", memory.Save)
	r.Register("list_incidents", memory.ListIncidents)
	r.Register("update_inventory", actions.UpdateInventory)
	r.Register("update_campaign_status", actions.UpdateCampaignStatus)
	r.Register("update_campaign_budget", actions.UpdateCampaignBudget)
	r.Register("escalate_ticket", actions.EscalateTicket)
	r.Register("close_ticket", actions.CloseTicket)
	r.Register("prioritize_ticket", actions.PrioritizeTicket)

	return r
}

// Register adds or replaces a named tool.
func (r *Registry) Register(name string, h Handler) {
	r.tools[name] = h
}

// Lookup returns the handler for a tool name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.tools[name]
	return h, ok
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// argErr builds a validation error the invoke handler maps to HTTP 400.
func argErr(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, a...))
}

// Argument decoding. Arguments arrive as a JSON object, so numbers are
// float64 on the HTTP path; handlers called directly from Go code may pass
// native ints. The helpers accept both and reject everything else.

func stringArg(args map[string]any, key, fallback string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", argErr("%s must be a string", key)
	}
	return s, nil
}

func intArg(args map[string]any, key string, fallback int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, argErr("%s must be an integer", key)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, argErr("%s must be an integer", key)
	}
}

// boundedIntArg reads an integer and rejects values outside [lo, hi].
func boundedIntArg(args map[string]any, key string, fallback, lo, hi int) (int, error) {
	v, err := intArg(args, key, fallback)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, argErr("%s must be between %d and %d", key, lo, hi)
	}
	return v, nil
}

func floatArg(args map[string]any, key string, fallback float64) (float64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, argErr("%s must be a number", key)
	}
}

func boolArg(args map[string]any, key string, fallback bool) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, argErr("%s must be a boolean", key)
	}
	return b, nil
}

// int64ListArg reads an optional list of ids. An absent or empty list
// returns nil, which callers treat as "no filter".
func int64ListArg(args map[string]any, key string) ([]int64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var out []int64
	switch list := raw.(type) {
	case []any:
		for _, item := range list {
			switch v := item.(type) {
			case float64:
				out = append(out, int64(v))
			case int:
				out = append(out, int64(v))
			case int64:
				out = append(out, v)
			default:
				return nil, argErr("%s must be a list of integers", key)
			}
		}
	case []int:
		for _, v := range list {
			out = append(out, int64(v))
		}
	case []int64:
		out = list
	default:
		return nil, argErr("%s must be a list of integers", key)
	}
	return out, nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
