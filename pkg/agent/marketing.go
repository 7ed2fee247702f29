package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/models"
)

// marketingComplexPatterns catch campaign questions that need ranking,
// comparison, or historical analysis rather than the two core tools.
var marketingComplexPatterns = compilePatterns([]string{
	`underperform`,
	`poor.*(campaign|roas)`,
	`zero.*conversion`,
	`compare.*(campaign|performance|period)`,
	`yesterday.*vs.*week`,
	`campaign.*trend`,
	`performance.*drop`,
	`performance.*improve`,
	`campaign.*comparison`,
	`historical.*campaign`,
	`best.*campaign`,
	`worst.*campaign`,
	`rank.*campaign`,
	`top.*performer`,
	`bottom.*performer`,
})

// MarketingAgent evaluates campaign spend and return on ad spend.
type MarketingAgent struct {
	invoker mcp.Invoker
	logger  *slog.Logger
}

// NewMarketingAgent builds the marketing agent over the shared tool client.
func NewMarketingAgent(invoker mcp.Invoker) *MarketingAgent {
	return &MarketingAgent{invoker: invoker, logger: slog.With("agent", "marketing")}
}

func (a *MarketingAgent) Metadata() models.AgentMetadata {
	return models.AgentMetadata{
		Name:        "marketing",
		DisplayName: "MARKETING",
		Description: "Evaluates marketing campaign spend and calculates ROAS. Complex analytics (underperforming, comparisons, rankings) should be routed to the data analyst.",
		Capabilities: []models.Capability{
			{
				Name:        "campaign_spend",
				Description: "Get campaign spend, clicks, and conversion metrics",
				Parameters: []string{
					"campaign_ids: specific campaigns to inspect; omit for all",
					"status: filter by status, 'active' or 'paused'",
				},
				ExampleQueries: []string{
					"How much have we spent on campaigns?",
					"What's our ad spend?",
				},
			},
			{
				Name:        "calculate_roas",
				Description: "Calculate return on ad spend for campaigns",
				Parameters: []string{
					"campaign_id: optional specific campaign",
					"window_days: analysis window (default 7)",
				},
				ExampleQueries: []string{
					"What's our ROAS?",
					"Calculate return on ad spend",
				},
			},
		},
		Keywords:             []string{"campaign", "ad", "marketing", "roas", "spend", "advertising", "budget"},
		PriorityBoostPhrases: []string{"wasted spend", "low roas"},
	}
}

func (a *MarketingAgent) Run(ctx context.Context, task models.AgentTask, _ RunContext) models.AgentResult {
	if matchesAnyPattern(task.Query(), marketingComplexPatterns) {
		return cannotHandle("marketing",
			"Query requires campaign comparison, ranking, or underperformance analysis that needs custom SQL.")
	}

	if task.Mode() == "calculate_roas" {
		return a.calculateROAS(ctx, task.Parameters)
	}
	return a.campaignSpend(ctx, task.Parameters)
}

func (a *MarketingAgent) campaignSpend(ctx context.Context, params map[string]any) models.AgentResult {
	args := map[string]any{}
	if ids := intsParam(params, "campaign_ids"); len(ids) > 0 {
		args["campaign_ids"] = ids
	}
	if status := stringParam(params, "status", ""); status != "" {
		args["status"] = status
	}

	envelope, err := a.invoker.Invoke(ctx, "get_campaign_spend", args)
	if err != nil {
		a.logger.Error("Campaign spend tool call failed", "error", err)
		return toolFailure("marketing", err)
	}

	result := mcp.Result(envelope)
	summary := mapField(result, "summary")
	campaigns := listField(result, "campaigns")

	findings := map[string]any{
		"summary":        summary,
		"campaigns":      campaigns,
		"campaign_count": numField(result, "campaign_count"),
	}

	insights := []string{
		"Campaign spend metrics:",
		fmt.Sprintf("  Total spend: $%.2f", numField(summary, "total_spend")),
		fmt.Sprintf("  Total campaigns: %.0f", numField(result, "campaign_count")),
	}
	var recs []models.AgentRecommendation

	for _, campaign := range campaigns {
		name := strField(campaign, "name")
		if utilization := numField(campaign, "budget_utilization_pct"); utilization > 90 {
			insights = append(insights,
				fmt.Sprintf("Campaign %s is at %.0f%% budget utilization.", name, utilization))
		}

		spend := numField(campaign, "spend")
		if strField(campaign, "status") == "active" && spend > 0 && numField(campaign, "conversions") == 0 {
			insights = append(insights,
				fmt.Sprintf("Campaign %s is spending $%.2f with 0 conversions.", name, spend))
			recs = append(recs, models.AgentRecommendation{
				ActionType:       "pause_campaign",
				Payload:          map[string]any{"campaign_id": int(numField(campaign, "campaign_id"))},
				Reasoning:        "Spend detected with zero conversions.",
				RequiresApproval: true,
			})
		}
	}

	return models.SuccessResult(findings, insights, recs)
}

func (a *MarketingAgent) calculateROAS(ctx context.Context, params map[string]any) models.AgentResult {
	windowDays := intParam(params, "window_days", 7)
	args := map[string]any{"window_days": windowDays}
	if id := intParam(params, "campaign_id", 0); id > 0 {
		args["campaign_id"] = id
	}

	envelope, err := a.invoker.Invoke(ctx, "calculate_roas", args)
	if err != nil {
		a.logger.Error("ROAS tool call failed", "error", err)
		return toolFailure("marketing", err)
	}

	result := mcp.Result(envelope)
	campaigns := listField(result, "campaigns")

	findings := map[string]any{
		"window_days":             numField(result, "window_days"),
		"overall_roas":            numField(result, "overall_roas"),
		"total_spend":             numField(result, "total_spend"),
		"total_estimated_revenue": numField(result, "total_estimated_revenue"),
		"avg_order_value_used":    numField(result, "avg_order_value_used"),
		"campaigns":               campaigns,
	}

	insights := []string{
		fmt.Sprintf("ROAS analysis (last %.0f days):", numField(result, "window_days")),
		fmt.Sprintf("  Overall ROAS: %.2fx", numField(result, "overall_roas")),
		fmt.Sprintf("  Total spend: $%.2f", numField(result, "total_spend")),
		fmt.Sprintf("  Estimated revenue: $%.2f", numField(result, "total_estimated_revenue")),
	}
	var recs []models.AgentRecommendation

	for _, campaign := range campaigns {
		name := strField(campaign, "campaign_name")
		roas := numField(campaign, "roas")
		spend := numField(campaign, "spend")
		performance := strField(campaign, "performance")

		insights = append(insights, fmt.Sprintf("  %s: ROAS %.2fx (%s; $%.2f spend, %.0f conversions)",
			name, roas, performance, spend, numField(campaign, "conversions")))

		if performance == "poor" && strField(campaign, "status") == "active" {
			recs = append(recs, models.AgentRecommendation{
				ActionType:       "pause_campaign",
				Payload:          map[string]any{"campaign_id": int(numField(campaign, "campaign_id"))},
				Reasoning:        fmt.Sprintf("Poor ROAS of %.2fx with $%.2f spend.", roas, spend),
				RequiresApproval: true,
			})
		}
	}

	return models.SuccessResult(findings, insights, recs)
}
