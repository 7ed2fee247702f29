package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/models"
)

func salesSummaryEnvelope(trend string) map[string]any {
	return toolEnvelope(map[string]any{
		"summary": map[string]any{
			"total_revenue": 12500.50,
			"total_units":   340,
			"total_orders":  125,
		},
		"trend":          []any{},
		"trend_analysis": trend,
		"window_days":    7,
	})
}

func TestSalesAgent_Summary(t *testing.T) {
	inv := &fakeInvoker{envelope: salesSummaryEnvelope("stable")}
	a := NewSalesAgent(inv)

	res := a.Run(context.Background(), taskFor("sales", "how are sales trending?", "summary", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "get_sales_summary", inv.lastTool)
	assert.Equal(t, 7, inv.lastArgs["window_days"])
	assert.Equal(t, "day", inv.lastArgs["group_by"])

	assert.Equal(t, "stable", res.Findings["trend_analysis"])
	assert.Contains(t, res.Insights, "  Total revenue: $12500.50")
	assert.Contains(t, res.Insights, "  Average order value: $100.00")
	assert.Contains(t, res.Insights, "Trend: revenue is stable.")
	assert.Empty(t, res.Recommendations)
}

func TestSalesAgent_Summary_CustomWindow(t *testing.T) {
	inv := &fakeInvoker{envelope: salesSummaryEnvelope("increasing")}
	a := NewSalesAgent(inv)

	res := a.Run(context.Background(),
		taskFor("sales", "revenue for the month", "summary", map[string]any{"window_days": 30, "group_by": "week"}),
		RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, 30, inv.lastArgs["window_days"])
	assert.Equal(t, "week", inv.lastArgs["group_by"])
	assert.Contains(t, res.Insights, "Sales summary for the last 30 days:")
}

func TestSalesAgent_DecreasingTrendRecommendsInvestigation(t *testing.T) {
	inv := &fakeInvoker{envelope: salesSummaryEnvelope("decreasing")}
	a := NewSalesAgent(inv)

	res := a.Run(context.Background(), taskFor("sales", "how are sales?", "summary", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	require.Len(t, res.Recommendations, 1)
	rec := res.Recommendations[0]
	assert.Equal(t, "investigate_decline", rec.ActionType)
	assert.False(t, rec.RequiresApproval)
	assert.Equal(t, "decreasing", rec.Payload["trend"])
}

func TestSalesAgent_ComplexQueryDeclines(t *testing.T) {
	inv := &fakeInvoker{envelope: salesSummaryEnvelope("stable")}
	a := NewSalesAgent(inv)

	for _, query := range []string{
		"Compare sales with last month",
		"Revenue by region please",
		"What caused the drop in mobile channel?",
	} {
		res := a.Run(context.Background(), taskFor("sales", query, "summary", nil), RunContext{})

		assert.Equal(t, models.StatusCannotHandle, res.Status, "query %q", query)
		assert.Equal(t, "data_analyst", res.SuggestedAgent)
	}
	assert.Empty(t, inv.lastTool, "declined queries must not reach the tool server")
}

func TestSalesAgent_TransportFaultRetries(t *testing.T) {
	inv := &fakeInvoker{err: transportErr()}
	a := NewSalesAgent(inv)

	res := a.Run(context.Background(), taskFor("sales", "sales summary", "summary", nil), RunContext{})

	assert.Equal(t, models.StatusNeedsRetry, res.Status)
}

func TestSalesAgent_ServerRejectionFails(t *testing.T) {
	inv := &fakeInvoker{err: serverErr()}
	a := NewSalesAgent(inv)

	res := a.Run(context.Background(), taskFor("sales", "sales summary", "summary", nil), RunContext{})

	assert.Equal(t, models.StatusFailure, res.Status)
}

func TestSalesAgent_TopProducts(t *testing.T) {
	inv := &fakeInvoker{envelope: toolEnvelope(map[string]any{
		"products": []any{
			map[string]any{"product_id": 1, "name": "Gadget", "category": "electronics", "units_sold": 40, "revenue": 3999.60},
			map[string]any{"product_id": 2, "name": "Widget", "category": "tools", "units_sold": 25, "revenue": 1249.75},
		},
		"window_days":                7,
		"total_top_products_revenue": 5249.35,
	})}
	a := NewSalesAgent(inv)

	res := a.Run(context.Background(), taskFor("sales", "what are our best sellers?", "top_products", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "get_top_products", inv.lastTool)
	assert.Equal(t, 5, inv.lastArgs["limit"])

	assert.Contains(t, res.Insights, "Top 2 selling products in the last 7 days:")
	assert.Contains(t, res.Insights, "  1. Gadget (electronics) - $3999.60 revenue, 40 units sold")
	assert.Contains(t, res.Insights, "Total revenue from top 2 products: $5249.35")
	assert.Empty(t, res.Recommendations)
}

func TestSalesAgent_TopProducts_Empty(t *testing.T) {
	inv := &fakeInvoker{envelope: toolEnvelope(map[string]any{
		"products":                   []any{},
		"window_days":                7,
		"total_top_products_revenue": 0,
	})}
	a := NewSalesAgent(inv)

	res := a.Run(context.Background(), taskFor("sales", "best sellers", "top_products", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Contains(t, res.Insights, "No product sales data found for the last 7 days.")
}
