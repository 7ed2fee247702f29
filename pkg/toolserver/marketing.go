package toolserver

import (
	"context"
	"database/sql"
	"fmt"
)

// marketingTools reports campaign spend and return on ad spend. Revenue per
// conversion is not tracked directly, so ROAS is estimated from the average
// order value over the same window.
type marketingTools struct {
	db *sql.DB
}

// fallbackAOV stands in for the average order value when the window holds
// no orders at all.
const fallbackAOV = 50.0

// CampaignSpend implements get_campaign_spend. Arguments: campaign_ids
// (optional id filter), status (optional "active"/"paused" filter).
// Campaigns come back ordered by spend, highest first.
func (t *marketingTools) CampaignSpend(ctx context.Context, args map[string]any) (any, error) {
	campaignIDs, err := int64ListArg(args, "campaign_ids")
	if err != nil {
		return nil, err
	}
	status, err := stringArg(args, "status", "")
	if err != nil {
		return nil, err
	}
	if status != "" && status != "active" && status != "paused" {
		return nil, argErr("status must be active or paused")
	}

	query := `
		SELECT id, name, budget, spend, clicks, conversions, status
		FROM campaigns`
	params := []any{}
	var where []string
	if len(campaignIDs) > 0 {
		params = append(params, campaignIDs)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(params)))
	}
	if status != "" {
		params = append(params, status)
		where = append(where, fmt.Sprintf("status = $%d", len(params)))
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY spend DESC"

	rows, err := t.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []map[string]any{}
	var totalBudget, totalSpend float64
	var totalClicks, totalConversions int64
	for rows.Next() {
		var (
			id          int64
			name        string
			budget      float64
			spend       float64
			clicks      int64
			conversions int64
			st          string
		)
		if err := rows.Scan(&id, &name, &budget, &spend, &clicks, &conversions, &st); err != nil {
			return nil, fmt.Errorf("scan campaign row: %w", err)
		}

		utilization := 0.0
		if budget > 0 {
			utilization = round1(spend / budget * 100)
		}

		campaigns = append(campaigns, map[string]any{
			"campaign_id":            id,
			"name":                   name,
			"budget":                 round2(budget),
			"spend":                  round2(spend),
			"clicks":                 clicks,
			"conversions":            conversions,
			"status":                 st,
			"budget_utilization_pct": utilization,
		})
		totalBudget += budget
		totalSpend += spend
		totalClicks += clicks
		totalConversions += conversions
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign rows: %w", err)
	}

	return map[string]any{
		"summary": map[string]any{
			"total_budget":      round2(totalBudget),
			"total_spend":       round2(totalSpend),
			"total_clicks":      totalClicks,
			"total_conversions": totalConversions,
		},
		"campaigns":      campaigns,
		"campaign_count": len(campaigns),
	}, nil
}

// CalculateROAS implements calculate_roas. Arguments: campaign_id
// (optional, restricts to one campaign), window_days (1-90, default 7).
// Estimated revenue is conversions times the window's average order value.
func (t *marketingTools) CalculateROAS(ctx context.Context, args map[string]any) (any, error) {
	campaignID, err := intArg(args, "campaign_id", 0)
	if err != nil {
		return nil, err
	}
	windowDays, err := boundedIntArg(args, "window_days", 7, 1, 90)
	if err != nil {
		return nil, err
	}

	var avgOrderValue float64
	err = t.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(revenue), $2)
		FROM orders
		WHERE timestamp >= NOW() - ($1 * INTERVAL '1 day')`,
		windowDays, fallbackAOV).Scan(&avgOrderValue)
	if err != nil {
		return nil, fmt.Errorf("query average order value: %w", err)
	}

	query := `
		SELECT id, name, spend, clicks, conversions, status
		FROM campaigns`
	params := []any{}
	if campaignID > 0 {
		params = append(params, campaignID)
		query += " WHERE id = $1"
	}
	query += " ORDER BY spend DESC"

	rows, err := t.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query campaigns for roas: %w", err)
	}
	defer rows.Close()

	campaigns := []map[string]any{}
	var totalSpend, totalEstimated float64
	for rows.Next() {
		var (
			id          int64
			name        string
			spend       float64
			clicks      int64
			conversions int64
			st          string
		)
		if err := rows.Scan(&id, &name, &spend, &clicks, &conversions, &st); err != nil {
			return nil, fmt.Errorf("scan roas row: %w", err)
		}

		estimated := float64(conversions) * avgOrderValue
		roas := 0.0
		if spend > 0 {
			roas = estimated / spend
		}

		var costPerConversion any
		if conversions > 0 {
			costPerConversion = round2(spend / float64(conversions))
		}
		conversionRate := 0.0
		if clicks > 0 {
			conversionRate = round2(float64(conversions) / float64(clicks) * 100)
		}

		campaigns = append(campaigns, map[string]any{
			"campaign_id":         id,
			"campaign_name":       name,
			"status":              st,
			"spend":               round2(spend),
			"estimated_revenue":   round2(estimated),
			"roas":                round2(roas),
			"performance":         performanceBand(roas),
			"cost_per_conversion": costPerConversion,
			"conversion_rate":     conversionRate,
			"conversions":         conversions,
			"clicks":              clicks,
		})
		totalSpend += spend
		totalEstimated += estimated
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roas rows: %w", err)
	}

	if len(campaigns) == 0 {
		msg := "No campaigns found"
		if campaignID > 0 {
			msg = fmt.Sprintf("Campaign %d not found", campaignID)
		}
		return map[string]any{"error": msg, "roas_data": []map[string]any{}}, nil
	}

	overallROAS := 0.0
	if totalSpend > 0 {
		overallROAS = totalEstimated / totalSpend
	}

	return map[string]any{
		"window_days":             windowDays,
		"avg_order_value_used":    round2(avgOrderValue),
		"overall_roas":            round2(overallROAS),
		"total_spend":             round2(totalSpend),
		"total_estimated_revenue": round2(totalEstimated),
		"campaigns":               campaigns,
	}, nil
}

// performanceBand labels a ROAS multiple. Four means every ad dollar
// returned four in estimated revenue.
func performanceBand(roas float64) string {
	switch {
	case roas >= 4:
		return "excellent"
	case roas >= 2:
		return "good"
	case roas >= 1:
		return "break_even"
	default:
		return "poor"
	}
}
