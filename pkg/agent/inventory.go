package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecomops/opsloop/pkg/mcp"
	"github.com/ecomops/opsloop/pkg/models"
)

// inventoryComplexPatterns catch stock questions that need joins against
// sales or supplier data rather than a plain stock lookup.
var inventoryComplexPatterns = compilePatterns([]string{
	`sell.*out|sold.*out|run.*out|stockout.*predict`,
	`forecast|predict|projection|estimate.*demand`,
	`days.*(of|until)|weeks.*(of|until)|how long`,
	`supplier|vendor|lead time|reorder point`,
	`turnover|velocity|sell.?through`,
})

// InventoryAgent inspects stock levels and proposes restocks.
type InventoryAgent struct {
	invoker mcp.Invoker
	logger  *slog.Logger
}

// NewInventoryAgent builds the inventory agent over the shared tool client.
func NewInventoryAgent(invoker mcp.Invoker) *InventoryAgent {
	return &InventoryAgent{invoker: invoker, logger: slog.With("agent", "inventory")}
}

func (a *InventoryAgent) Metadata() models.AgentMetadata {
	return models.AgentMetadata{
		Name:        "inventory",
		DisplayName: "INVENTORY",
		Description: "Monitors stock levels with 2 core capabilities: point-in-time stock checks and a low stock scan with restock proposals. Demand forecasting and supplier analysis should be routed to the data analyst.",
		Capabilities: []models.Capability{
			{
				Name:        "check_stock",
				Description: "Check current stock levels, optionally for specific products",
				Parameters: []string{
					"product_ids: products to check; omit for a full scan",
				},
				ExampleQueries: []string{
					"How much stock do we have for product 42?",
					"What is the current inventory status?",
				},
			},
			{
				Name:        "low_stock_scan",
				Description: "Scan for products at or below their low stock threshold and propose restocks",
				Parameters: []string{
					"include_out_of_stock: include products at zero stock (default true)",
					"limit: max products to report (default 20)",
				},
				ExampleQueries: []string{
					"Which products are running low?",
					"Do we need to restock anything?",
				},
			},
		},
		Keywords:             []string{"stock", "inventory", "restock", "low", "warehouse", "supply", "replenish"},
		PriorityBoostPhrases: []string{"out of stock", "low stock"},
	}
}

func (a *InventoryAgent) Run(ctx context.Context, task models.AgentTask, _ RunContext) models.AgentResult {
	if matchesAnyPattern(task.Query(), inventoryComplexPatterns) {
		return cannotHandle("inventory",
			"Query requires demand forecasting or supplier analysis beyond stock lookups.")
	}

	if task.Mode() == "low_stock_scan" {
		return a.lowStockScan(ctx, task.Parameters)
	}
	return a.checkStock(ctx, task.Parameters)
}

func (a *InventoryAgent) checkStock(ctx context.Context, params map[string]any) models.AgentResult {
	args := map[string]any{}
	if ids := intsParam(params, "product_ids"); len(ids) > 0 {
		args["product_ids"] = ids
	}

	envelope, err := a.invoker.Invoke(ctx, "get_inventory_status", args)
	if err != nil {
		a.logger.Error("Inventory status tool call failed", "error", err)
		return toolFailure("inventory", err)
	}

	result := mcp.Result(envelope)
	items := listField(result, "items")

	findings := map[string]any{
		"items":              items,
		"total_count":        numField(result, "total_count"),
		"out_of_stock_count": numField(result, "out_of_stock_count"),
		"low_stock_count":    numField(result, "low_stock_count"),
	}

	var insights []string
	var recs []models.AgentRecommendation

	insights = append(insights, fmt.Sprintf("Checked %d products: %.0f out of stock, %.0f below threshold.",
		len(items), numField(result, "out_of_stock_count"), numField(result, "low_stock_count")))

	for _, item := range items {
		stock := numField(item, "stock_qty")
		threshold := numField(item, "low_stock_threshold")
		buffer := stock - threshold
		if buffer > 0 {
			continue
		}

		name := strField(item, "name")
		if stock == 0 {
			insights = append(insights, fmt.Sprintf("  %s is OUT OF STOCK (threshold %.0f).", name, threshold))
		} else {
			insights = append(insights, fmt.Sprintf("  %s is low: %.0f on hand vs threshold %.0f.",
				name, stock, threshold))
		}

		qty := restockQuantity(-buffer + 10)
		recs = append(recs, models.AgentRecommendation{
			ActionType: "restock_item",
			Payload: map[string]any{
				"product_id":    int(numField(item, "product_id")),
				"product_name":  name,
				"quantity":      qty,
				"current_stock": int(stock),
			},
			Reasoning:        fmt.Sprintf("%s has %.0f units against a threshold of %.0f.", name, stock, threshold),
			RequiresApproval: true,
		})
	}

	return models.SuccessResult(findings, insights, recs)
}

func (a *InventoryAgent) lowStockScan(ctx context.Context, params map[string]any) models.AgentResult {
	includeOOS := boolParam(params, "include_out_of_stock", true)
	limit := intParam(params, "limit", 20)

	envelope, err := a.invoker.Invoke(ctx, "get_low_stock_products", map[string]any{
		"include_out_of_stock": includeOOS,
		"limit":                limit,
	})
	if err != nil {
		a.logger.Error("Low stock scan tool call failed", "error", err)
		return toolFailure("inventory", err)
	}

	result := mcp.Result(envelope)
	products := listField(result, "low_stock_products")

	findings := map[string]any{
		"low_stock_products": products,
		"total_count":        numField(result, "total_count"),
		"out_of_stock_count": numField(result, "out_of_stock_count"),
		"critical_count":     numField(result, "critical_count"),
		"has_critical":       boolField(result, "has_critical"),
	}

	var insights []string
	var recs []models.AgentRecommendation

	if len(products) == 0 {
		insights = append(insights, "All products are above their low stock thresholds.")
		return models.SuccessResult(findings, insights, nil)
	}

	insights = append(insights, fmt.Sprintf("Found %.0f products at or below threshold (%.0f out of stock, %.0f critical).",
		numField(result, "total_count"), numField(result, "out_of_stock_count"), numField(result, "critical_count")))

	for i, product := range products {
		stock := numField(product, "stock_qty")
		threshold := numField(product, "low_stock_threshold")
		name := strField(product, "name")

		// Cap the narrative at the worst ten; recommendations cover all.
		if i < 10 {
			switch strField(product, "status") {
			case "out_of_stock":
				insights = append(insights, fmt.Sprintf("  %s: OUT OF STOCK (threshold %.0f)", name, threshold))
			default:
				insights = append(insights, fmt.Sprintf("  %s: %.0f on hand, threshold %.0f", name, stock, threshold))
			}
		}

		if !boolField(product, "needs_restock") {
			continue
		}
		qty := restockQuantity(threshold - stock + 20)
		recs = append(recs, models.AgentRecommendation{
			ActionType: "restock_item",
			Payload: map[string]any{
				"product_id":    int(numField(product, "product_id")),
				"product_name":  name,
				"quantity":      qty,
				"current_stock": int(stock),
			},
			Reasoning:        fmt.Sprintf("%s has %.0f units against a threshold of %.0f.", name, stock, threshold),
			RequiresApproval: true,
		})
	}

	if boolField(result, "has_critical") {
		insights = append(insights, "Some products are critically low; restock approvals are urgent.")
	}

	return models.SuccessResult(findings, insights, recs)
}

// restockQuantity floors every restock proposal at 50 units.
func restockQuantity(suggested float64) int {
	if suggested < 50 {
		return 50
	}
	return int(suggested)
}
