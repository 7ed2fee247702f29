package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomops/opsloop/pkg/models"
)

func sentimentEnvelope(avg, ratio float64, volume int) map[string]any {
	return toolEnvelope(map[string]any{
		"sentiment": map[string]any{
			"avg_sentiment":  avg,
			"negative_ratio": ratio,
			"ticket_volume":  volume,
		},
	})
}

func TestSupportAgent_Sentiment_Healthy(t *testing.T) {
	inv := &fakeInvoker{envelope: sentimentEnvelope(0.72, 0.10, 45)}
	a := NewSupportAgent(inv)

	res := a.Run(context.Background(), taskFor("support", "how is customer sentiment?", "sentiment_analysis", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "get_support_sentiment", inv.lastTool)
	assert.Equal(t, 7, inv.lastArgs["window_days"])

	assert.Contains(t, res.Insights, "Support sentiment analysis (last 7 days):")
	assert.Contains(t, res.Insights, "  Total tickets: 45")
	assert.Contains(t, res.Insights, "  Average sentiment: 0.72")
	assert.Contains(t, res.Insights, "  Negative ratio: 10%")
	assert.Empty(t, res.Recommendations)
}

func TestSupportAgent_Sentiment_CriticalEscalates(t *testing.T) {
	inv := &fakeInvoker{envelope: sentimentEnvelope(0.25, 0.75, 120)}
	a := NewSupportAgent(inv)

	res := a.Run(context.Background(), taskFor("support", "are customers unhappy?", "sentiment_analysis", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Contains(t, res.Insights,
		"CRITICAL: average sentiment is 0.25, customer satisfaction is severely impacted.")
	assert.Contains(t, res.Insights, "Negative ticket ratio of 75% is concerning.")

	require.Len(t, res.Recommendations, 2)
	escalate := res.Recommendations[0]
	assert.Equal(t, "escalate_ticket", escalate.ActionType)
	assert.Equal(t, -1, escalate.Payload["ticket_id"])
	assert.Equal(t, "critical", escalate.Payload["priority"])
	assert.True(t, escalate.RequiresApproval)

	prioritize := res.Recommendations[1]
	assert.Equal(t, "prioritize_ticket", prioritize.ActionType)
	assert.Equal(t, "high", prioritize.Payload["priority"])
}

func TestSupportAgent_Sentiment_WarningWithoutActions(t *testing.T) {
	inv := &fakeInvoker{envelope: sentimentEnvelope(0.35, 0.30, 60)}
	a := NewSupportAgent(inv)

	res := a.Run(context.Background(), taskFor("support", "support health check", "sentiment_analysis", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Contains(t, res.Insights, "WARNING: average sentiment 0.35 indicates high risk.")
	assert.Empty(t, res.Recommendations)
}

func TestSupportAgent_Sentiment_ConcerningRatioWithoutPrioritize(t *testing.T) {
	inv := &fakeInvoker{envelope: sentimentEnvelope(0.45, 0.60, 80)}
	a := NewSupportAgent(inv)

	res := a.Run(context.Background(), taskFor("support", "complaint levels?", "sentiment_analysis", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Contains(t, res.Insights, "Negative ticket ratio of 60% is concerning.")
	assert.Empty(t, res.Recommendations, "prioritize fires only above 70%")
}

func TestSupportAgent_Sentiment_ProductFilter(t *testing.T) {
	inv := &fakeInvoker{envelope: sentimentEnvelope(0.5, 0.2, 10)}
	a := NewSupportAgent(inv)

	res := a.Run(context.Background(),
		taskFor("support", "sentiment for the gadget", "sentiment_analysis",
			map[string]any{"product_id": 42, "window_days": 30}),
		RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, 42, inv.lastArgs["product_id"])
	assert.Equal(t, 30, inv.lastArgs["window_days"])
}

func TestSupportAgent_TicketTrends(t *testing.T) {
	inv := &fakeInvoker{envelope: toolEnvelope(map[string]any{
		"window_days": 14, "group_by": "issue_category", "total_volume": 210,
		"trends": []any{
			map[string]any{
				"key": "shipping_delay", "volume": 80, "previous_volume": 40,
				"change_pct": 100.0, "trend": "increasing", "avg_sentiment": 0.22, "negative_count": 50,
			},
			map[string]any{
				"key": "billing", "volume": 30, "previous_volume": 35,
				"change_pct": -14.3, "trend": "decreasing", "avg_sentiment": 0.55, "negative_count": 5,
			},
		},
		"alerts": []any{"shipping_delay volume doubled vs previous period"},
	})}
	a := NewSupportAgent(inv)

	res := a.Run(context.Background(), taskFor("support", "ticket trends please", "ticket_trends", nil), RunContext{})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "get_ticket_trends", inv.lastTool)
	assert.Equal(t, 14, inv.lastArgs["window_days"])
	assert.Equal(t, "issue_category", inv.lastArgs["group_by"])

	assert.Contains(t, res.Insights, "Ticket trends (last 14 days, grouped by issue_category):")
	assert.Contains(t, res.Insights, "  Total volume: 210")
	assert.Contains(t, res.Insights, "  shipping_delay (increasing): 80 tickets (+100.0%)")
	assert.Contains(t, res.Insights, "    Low sentiment: 0.22")
	assert.Contains(t, res.Insights, "ALERT: shipping_delay volume doubled vs previous period")
	assert.Empty(t, res.Recommendations)
}

func TestSupportAgent_ComplexQueryDeclines(t *testing.T) {
	a := NewSupportAgent(&fakeInvoker{})

	for _, query := range []string{
		"What are the most common issues this week?",
		"What's the average resolution time?",
		"Top complaints by product please",
	} {
		res := a.Run(context.Background(), taskFor("support", query, "sentiment_analysis", nil), RunContext{})

		assert.Equal(t, models.StatusCannotHandle, res.Status, "query %q", query)
		assert.Equal(t, "data_analyst", res.SuggestedAgent)
	}
}

func TestSupportAgent_TransportFaultRetries(t *testing.T) {
	a := NewSupportAgent(&fakeInvoker{err: transportErr()})

	res := a.Run(context.Background(), taskFor("support", "sentiment", "sentiment_analysis", nil), RunContext{})

	assert.Equal(t, models.StatusNeedsRetry, res.Status)
}
