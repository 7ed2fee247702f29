package toolserver

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// salesTools aggregates the orders table: revenue summaries with trend
// detection and top-seller rankings.
type salesTools struct {
	db *sql.DB
}

// Summary implements get_sales_summary. Arguments: window_days (1-90,
// default 7), group_by ("day" or "week", default "day"). Buckets are newest
// first; the trend compares the most recent complete bucket against the one
// before it.
func (t *salesTools) Summary(ctx context.Context, args map[string]any) (any, error) {
	windowDays, err := boundedIntArg(args, "window_days", 7, 1, 90)
	if err != nil {
		return nil, err
	}
	groupBy, err := stringArg(args, "group_by", "day")
	if err != nil {
		return nil, err
	}
	if groupBy != "day" && groupBy != "week" {
		return nil, argErr("group_by must be day or week")
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT date_trunc($2, timestamp) AS bucket,
		       COALESCE(SUM(revenue), 0) AS revenue,
		       COALESCE(SUM(qty), 0) AS units,
		       COUNT(*) AS order_count
		FROM orders
		WHERE timestamp >= NOW() - ($1 * INTERVAL '1 day')
		GROUP BY bucket
		ORDER BY bucket DESC`,
		windowDays, groupBy)
	if err != nil {
		return nil, fmt.Errorf("query sales buckets: %w", err)
	}
	defer rows.Close()

	var (
		trend       []map[string]any
		totalRev    float64
		totalUnits  int64
		totalOrders int64
	)
	for rows.Next() {
		var (
			bucket  time.Time
			revenue float64
			units   int64
			count   int64
		)
		if err := rows.Scan(&bucket, &revenue, &units, &count); err != nil {
			return nil, fmt.Errorf("scan sales bucket: %w", err)
		}
		trend = append(trend, map[string]any{
			"bucket":      bucket.UTC().Format(time.RFC3339),
			"revenue":     round2(revenue),
			"units":       units,
			"order_count": count,
		})
		totalRev += revenue
		totalUnits += units
		totalOrders += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales buckets: %w", err)
	}
	if trend == nil {
		trend = []map[string]any{}
	}

	avgOrderValue := 0.0
	if totalOrders > 0 {
		avgOrderValue = totalRev / float64(totalOrders)
	}

	return map[string]any{
		"summary": map[string]any{
			"total_revenue":   round2(totalRev),
			"total_units":     totalUnits,
			"total_orders":    totalOrders,
			"avg_order_value": round2(avgOrderValue),
			"window_days":     windowDays,
		},
		"trend":          trend,
		"trend_analysis": analyzeTrend(trend),
	}, nil
}

// analyzeTrend compares the newest bucket with the previous one. Moves
// within ten percent either way count as stable, as does any window with
// fewer than two buckets.
func analyzeTrend(trend []map[string]any) string {
	if len(trend) < 2 {
		return "stable"
	}
	newest, _ := trend[0]["revenue"].(float64)
	previous, _ := trend[1]["revenue"].(float64)
	if previous <= 0 {
		return "stable"
	}
	changePct := (newest - previous) / previous * 100
	switch {
	case changePct > 10:
		return "increasing"
	case changePct < -10:
		return "decreasing"
	default:
		return "stable"
	}
}

// TopProducts implements get_top_products. Arguments: window_days (1-90,
// default 7), limit (1-50, default 5). Products with no orders in the
// window are omitted.
func (t *salesTools) TopProducts(ctx context.Context, args map[string]any) (any, error) {
	windowDays, err := boundedIntArg(args, "window_days", 7, 1, 90)
	if err != nil {
		return nil, err
	}
	limit, err := boundedIntArg(args, "limit", 5, 1, 50)
	if err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.category,
		       COALESCE(SUM(o.qty), 0) AS units_sold,
		       COALESCE(SUM(o.revenue), 0) AS revenue
		FROM products p
		JOIN orders o ON o.product_id = p.id
		WHERE o.timestamp >= NOW() - ($1 * INTERVAL '1 day')
		GROUP BY p.id, p.name, p.category
		ORDER BY revenue DESC
		LIMIT $2`,
		windowDays, limit)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	products := []map[string]any{}
	var totalRevenue float64
	for rows.Next() {
		var (
			id        int64
			name      string
			category  string
			unitsSold int64
			revenue   float64
		)
		if err := rows.Scan(&id, &name, &category, &unitsSold, &revenue); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, map[string]any{
			"product_id": id,
			"name":       name,
			"category":   category,
			"units_sold": unitsSold,
			"revenue":    round2(revenue),
		})
		totalRevenue += revenue
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return map[string]any{
		"products":                   products,
		"window_days":                windowDays,
		"total_top_products_revenue": round2(totalRevenue),
	}, nil
}
