package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/models"
)

// salesComplexMarkers are query fragments the sales agent refuses: period
// comparison, regional and channel breakdowns, and causal attribution all
// need custom SQL.
var salesComplexMarkers = []string{
	"compare",
	"yesterday",
	"last week",
	"vs",
	"versus",
	"region",
	"regional",
	"geography",
	"location",
	"channel",
	"mobile",
	"web",
	"marketplace",
	"contribution",
	"contributed",
	"caused",
	"driving",
}

// SalesAgent reports revenue summaries and best-selling products.
type SalesAgent struct {
	invoker mcp.Invoker
	logger  *slog.Logger
}

// NewSalesAgent builds the sales agent over the shared tool client.
func NewSalesAgent(invoker mcp.Invoker) *SalesAgent {
	return &SalesAgent{invoker: invoker, logger: slog.With("agent", "sales")}
}

func (a *SalesAgent) Metadata() models.AgentMetadata {
	return models.AgentMetadata{
		Name:        "sales",
		DisplayName: "SALES",
		Description: "Analyzes sales performance with 2 core capabilities: sales summary with trends, and top selling products. Complex queries (compare periods, regional, channel analysis) should be routed to the data analyst.",
		Capabilities: []models.Capability{
			{
				Name:        "summary",
				Description: "Get aggregated sales metrics with trend analysis",
				Parameters: []string{
					"window_days: number of days to analyze (default 7)",
					"group_by: grouping, 'day' or 'week' (default 'day')",
				},
				ExampleQueries: []string{
					"How are sales trending this week?",
					"Show me revenue trends for the last 30 days",
				},
			},
			{
				Name:        "top_products",
				Description: "Find best-selling products by revenue",
				Parameters: []string{
					"window_days: time period to analyze (default 7)",
					"limit: number of products to return (default 5)",
				},
				ExampleQueries: []string{
					"What are the top 5 selling products?",
					"Which products made the most money this month?",
				},
			},
		},
		Keywords:             []string{"sale", "revenue", "trend", "top", "product", "best", "money", "earning"},
		PriorityBoostPhrases: []string{"revenue", "sales"},
	}
}

func (a *SalesAgent) Run(ctx context.Context, task models.AgentTask, _ RunContext) models.AgentResult {
	if matchesAny(task.Query(), salesComplexMarkers) {
		return cannotHandle("sales",
			"Query requires comparison, regional, or channel analysis beyond core sales tools.")
	}

	if task.Mode() == "top_products" {
		return a.topProducts(ctx, task.Parameters)
	}
	return a.summary(ctx, task.Parameters)
}

func (a *SalesAgent) summary(ctx context.Context, params map[string]any) models.AgentResult {
	windowDays := intParam(params, "window_days", 7)
	groupBy := stringParam(params, "group_by", "day")

	envelope, err := a.invoker.Invoke(ctx, "get_sales_summary", map[string]any{
		"window_days": windowDays,
		"group_by":    groupBy,
	})
	if err != nil {
		a.logger.Error("Sales summary tool call failed", "error", err)
		return toolFailure("sales", err)
	}

	result := mcp.Result(envelope)
	summary := mapField(result, "summary")
	trendAnalysis := strField(result, "trend_analysis")

	findings := map[string]any{
		"summary":        summary,
		"trend":          result["trend"],
		"trend_analysis": trendAnalysis,
		"window_days":    windowDays,
	}

	var insights []string
	var recs []models.AgentRecommendation

	if len(summary) > 0 {
		totalRevenue := numField(summary, "total_revenue")
		totalOrders := numField(summary, "total_orders")

		insights = append(insights,
			fmt.Sprintf("Sales summary for the last %d days:", windowDays),
			fmt.Sprintf("  Total revenue: $%.2f", totalRevenue),
			fmt.Sprintf("  Total units sold: %.0f", numField(summary, "total_units")),
			fmt.Sprintf("  Total orders: %.0f", totalOrders),
		)
		if totalOrders > 0 {
			insights = append(insights,
				fmt.Sprintf("  Average order value: $%.2f", totalRevenue/totalOrders))
		}
	}

	switch trendAnalysis {
	case "increasing":
		insights = append(insights, "Trend: revenue is increasing compared to the previous period.")
	case "decreasing":
		insights = append(insights, "Trend: revenue is decreasing compared to the previous period.")
		recs = append(recs, models.AgentRecommendation{
			ActionType:       "investigate_decline",
			Payload:          map[string]any{"window_days": windowDays, "trend": trendAnalysis},
			Reasoning:        "Revenue trend is decreasing relative to the previous period.",
			RequiresApproval: false,
		})
	default:
		insights = append(insights, "Trend: revenue is stable.")
	}

	return models.SuccessResult(findings, insights, recs)
}

func (a *SalesAgent) topProducts(ctx context.Context, params map[string]any) models.AgentResult {
	windowDays := intParam(params, "window_days", 7)
	limit := intParam(params, "limit", 5)

	envelope, err := a.invoker.Invoke(ctx, "get_top_products", map[string]any{
		"window_days": windowDays,
		"limit":       limit,
	})
	if err != nil {
		a.logger.Error("Top products tool call failed", "error", err)
		return toolFailure("sales", err)
	}

	result := mcp.Result(envelope)
	products := listField(result, "products")
	totalRevenue := numField(result, "total_top_products_revenue")

	findings := map[string]any{
		"top_products":               products,
		"window_days":                windowDays,
		"limit":                      limit,
		"total_top_products_revenue": totalRevenue,
	}

	var insights []string
	if len(products) == 0 {
		insights = append(insights,
			fmt.Sprintf("No product sales data found for the last %d days.", windowDays))
		return models.SuccessResult(findings, insights, nil)
	}

	insights = append(insights,
		fmt.Sprintf("Top %d selling products in the last %d days:", len(products), windowDays))
	for i, product := range products {
		category := ""
		if c := strField(product, "category"); c != "" {
			category = fmt.Sprintf(" (%s)", c)
		}
		insights = append(insights, fmt.Sprintf("  %d. %s%s - $%.2f revenue, %.0f units sold",
			i+1, strField(product, "name"), category,
			numField(product, "revenue"), numField(product, "units_sold")))
	}
	insights = append(insights,
		fmt.Sprintf("Total revenue from top %d products: $%.2f", len(products), totalRevenue))

	return models.SuccessResult(findings, insights, nil)
}
