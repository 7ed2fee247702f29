package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/models"
)

// supportComplexPatterns catch ticket questions that need free-text issue
// mining or period comparison rather than the two core tools.
var supportComplexPatterns = compilePatterns([]string{
	`common.*issue`,
	`frequent.*problem`,
	`top.*complaint`,
	`most.*reported`,
	`compare.*complaint`,
	`complaint.*increase`,
	`complaint.*decrease`,
	`yesterday.*vs.*week`,
	`today.*vs.*last`,
	`complaint.*trend.*comparison`,
	`issue.*spike`,
	`issue.*drop`,
	`product.*support.*correlation`,
	`support.*by.*region`,
	`resolution.*time`,
	`agent.*performance`,
})

// SupportAgent analyzes support sentiment and ticket trends.
type SupportAgent struct {
	invoker mcp.Invoker
	logger  *slog.Logger
}

// NewSupportAgent builds the support agent over the shared tool client.
func NewSupportAgent(invoker mcp.Invoker) *SupportAgent {
	return &SupportAgent{invoker: invoker, logger: slog.With("agent", "support")}
}

func (a *SupportAgent) Metadata() models.AgentMetadata {
	return models.AgentMetadata{
		Name:        "support",
		DisplayName: "SUPPORT",
		Description: "Analyzes support sentiment and ticket trends. Complex analytics (common issues, period comparison) should be routed to the data analyst.",
		Capabilities: []models.Capability{
			{
				Name:        "sentiment_analysis",
				Description: "Analyze overall support sentiment and negative ticket ratios",
				Parameters: []string{
					"window_days: time period to analyze (default 7)",
					"product_id: optional product filter",
				},
				ExampleQueries: []string{
					"What's the customer sentiment like?",
					"Are there many complaints?",
				},
			},
			{
				Name:        "ticket_trends",
				Description: "Analyze ticket trends by category, product, or day",
				Parameters: []string{
					"window_days: analysis window (default 14)",
					"group_by: issue_category, product, or day",
					"product_id: optional product filter",
				},
				ExampleQueries: []string{
					"What are the ticket trends?",
					"Show me support volume by category",
				},
			},
		},
		Keywords:             []string{"ticket", "support", "sentiment", "complaint", "customer", "issue", "feedback"},
		PriorityBoostPhrases: []string{"angry customers", "high complaints", "negative sentiment"},
	}
}

func (a *SupportAgent) Run(ctx context.Context, task models.AgentTask, _ RunContext) models.AgentResult {
	if matchesAnyPattern(task.Query(), supportComplexPatterns) {
		return cannotHandle("support",
			"Query requires issue mining or period comparison that needs custom SQL.")
	}

	if task.Mode() == "ticket_trends" {
		return a.ticketTrends(ctx, task.Parameters)
	}
	return a.sentimentAnalysis(ctx, task.Parameters)
}

func (a *SupportAgent) sentimentAnalysis(ctx context.Context, params map[string]any) models.AgentResult {
	windowDays := intParam(params, "window_days", 7)
	args := map[string]any{"window_days": windowDays}
	if id := intParam(params, "product_id", 0); id > 0 {
		args["product_id"] = id
	}

	envelope, err := a.invoker.Invoke(ctx, "get_support_sentiment", args)
	if err != nil {
		a.logger.Error("Support sentiment tool call failed", "error", err)
		return toolFailure("support", err)
	}

	result := mcp.Result(envelope)
	stats := mapField(result, "sentiment")
	avgSentiment := numField(stats, "avg_sentiment")
	negativeRatio := numField(stats, "negative_ratio")

	findings := map[string]any{"sentiment": stats, "window_days": windowDays}

	insights := []string{
		fmt.Sprintf("Support sentiment analysis (last %d days):", windowDays),
		fmt.Sprintf("  Total tickets: %.0f", numField(stats, "ticket_volume")),
		fmt.Sprintf("  Average sentiment: %.2f", avgSentiment),
		fmt.Sprintf("  Negative ratio: %.0f%%", negativeRatio*100),
	}
	var recs []models.AgentRecommendation

	if avgSentiment < 0.3 {
		insights = append(insights,
			fmt.Sprintf("CRITICAL: average sentiment is %.2f, customer satisfaction is severely impacted.", avgSentiment))
		recs = append(recs, models.AgentRecommendation{
			ActionType:       "escalate_ticket",
			Payload:          map[string]any{"ticket_id": -1, "priority": "critical"},
			Reasoning:        fmt.Sprintf("Sentiment critically low (%.2f). Recommend escalating recent tickets.", avgSentiment),
			RequiresApproval: true,
		})
	} else if avgSentiment < 0.4 {
		insights = append(insights,
			fmt.Sprintf("WARNING: average sentiment %.2f indicates high risk.", avgSentiment))
	}

	if negativeRatio > 0.5 {
		insights = append(insights,
			fmt.Sprintf("Negative ticket ratio of %.0f%% is concerning.", negativeRatio*100))
		if negativeRatio > 0.7 {
			recs = append(recs, models.AgentRecommendation{
				ActionType:       "prioritize_ticket",
				Payload:          map[string]any{"ticket_id": -1, "priority": "high"},
				Reasoning:        fmt.Sprintf("Over %.0f%% of tickets are negative. Recommend prioritizing unresolved tickets.", negativeRatio*100),
				RequiresApproval: true,
			})
		}
	}

	return models.SuccessResult(findings, insights, recs)
}

func (a *SupportAgent) ticketTrends(ctx context.Context, params map[string]any) models.AgentResult {
	windowDays := intParam(params, "window_days", 14)
	groupBy := stringParam(params, "group_by", "issue_category")
	args := map[string]any{"window_days": windowDays, "group_by": groupBy}
	if id := intParam(params, "product_id", 0); id > 0 {
		args["product_id"] = id
	}

	envelope, err := a.invoker.Invoke(ctx, "get_ticket_trends", args)
	if err != nil {
		a.logger.Error("Ticket trends tool call failed", "error", err)
		return toolFailure("support", err)
	}

	result := mcp.Result(envelope)
	trends := listField(result, "trends")

	findings := map[string]any{
		"window_days":  numField(result, "window_days"),
		"group_by":     strField(result, "group_by"),
		"total_volume": numField(result, "total_volume"),
		"trends":       trends,
		"alerts":       result["alerts"],
	}

	insights := []string{
		fmt.Sprintf("Ticket trends (last %.0f days, grouped by %s):",
			numField(result, "window_days"), strField(result, "group_by")),
		fmt.Sprintf("  Total volume: %.0f", numField(result, "total_volume")),
	}

	for i, trend := range trends {
		if i >= 10 {
			break
		}
		insights = append(insights, fmt.Sprintf("  %s (%s): %.0f tickets (%+.1f%%)",
			strField(trend, "key"), strField(trend, "trend"),
			numField(trend, "volume"), numField(trend, "change_pct")))
		if sentiment, ok := trend["avg_sentiment"].(float64); ok && sentiment < 0.3 {
			insights = append(insights, fmt.Sprintf("    Low sentiment: %.2f", sentiment))
		}
	}

	if alerts, ok := result["alerts"].([]any); ok {
		for _, alert := range alerts {
			if text, ok := alert.(string); ok {
				insights = append(insights, "ALERT: "+text)
			}
		}
	}

	return models.SuccessResult(findings, insights, nil)
}
