package toolserver

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// supportTools aggregates support_tickets. Sentiment scores range from -1
// (angry) to 1 (delighted); the bands below split that scale.
const (
	negativeSentimentMax = -0.2
	positiveSentimentMin = 0.4
	lowSentimentAlertMax = -0.4
)

type supportTools struct {
	db *sql.DB
}

// Sentiment implements get_support_sentiment. Arguments: window_days (1-90,
// default 7), product_id (optional filter), issue_category (optional
// filter). has_sentiment_issues flips when more than thirty percent of the
// window's tickets are negative.
func (t *supportTools) Sentiment(ctx context.Context, args map[string]any) (any, error) {
	windowDays, err := boundedIntArg(args, "window_days", 7, 1, 90)
	if err != nil {
		return nil, err
	}
	productID, err := intArg(args, "product_id", 0)
	if err != nil {
		return nil, err
	}
	issueCategory, err := stringArg(args, "issue_category", "")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT COUNT(*),
		       COALESCE(AVG(sentiment), 0),
		       COUNT(*) FILTER (WHERE sentiment < $2),
		       COUNT(*) FILTER (WHERE sentiment >= $3)
		FROM support_tickets
		WHERE created_at >= NOW() - ($1 * INTERVAL '1 day')`
	params := []any{windowDays, negativeSentimentMax, positiveSentimentMin}
	if productID > 0 {
		params = append(params, productID)
		query += fmt.Sprintf(" AND product_id = $%d", len(params))
	}
	if issueCategory != "" {
		params = append(params, issueCategory)
		query += fmt.Sprintf(" AND issue_category = $%d", len(params))
	}

	var (
		total    int64
		avg      float64
		negative int64
		positive int64
	)
	if err := t.db.QueryRowContext(ctx, query, params...).Scan(&total, &avg, &negative, &positive); err != nil {
		return nil, fmt.Errorf("query sentiment: %w", err)
	}

	negativeRatio := 0.0
	if total > 0 {
		negativeRatio = float64(negative) / float64(total)
	}

	return map[string]any{
		"window_days": windowDays,
		"sentiment": map[string]any{
			"avg_sentiment":  round2(avg),
			"negative_ratio": round2(negativeRatio),
			"positive_count": positive,
			"neutral_count":  total - negative - positive,
			"negative_count": negative,
			"ticket_volume":  total,
		},
		"has_sentiment_issues": negativeRatio > 0.3,
	}, nil
}

// trendRow accumulates one group's metrics across the two windows.
type trendRow struct {
	key            string
	volume         int64
	previousVolume int64
	avgSentiment   float64
	negativeCount  int64
}

// TicketTrends implements get_ticket_trends. Arguments: window_days (1-90,
// default 14), group_by ("issue_category", "product" or "day"), product_id
// (optional filter). The current window is compared against the equal-length
// window before it; groups seen only in the previous window are dropped.
func (t *supportTools) TicketTrends(ctx context.Context, args map[string]any) (any, error) {
	windowDays, err := boundedIntArg(args, "window_days", 14, 1, 90)
	if err != nil {
		return nil, err
	}
	groupBy, err := stringArg(args, "group_by", "issue_category")
	if err != nil {
		return nil, err
	}
	productID, err := intArg(args, "product_id", 0)
	if err != nil {
		return nil, err
	}

	var keyExpr, join string
	switch groupBy {
	case "issue_category":
		keyExpr = `COALESCE(NULLIF(t.issue_category, ''), 'uncategorized')`
	case "product":
		keyExpr = `COALESCE(p.name, 'unknown')`
		join = ` LEFT JOIN products p ON p.id = t.product_id`
	case "day":
		keyExpr = `to_char(date_trunc('day', t.created_at), 'YYYY-MM-DD')`
	default:
		return nil, argErr("group_by must be one of issue_category, product, day")
	}

	filter := ""
	params := []any{windowDays, negativeSentimentMax}
	if productID > 0 {
		params = append(params, productID)
		filter = fmt.Sprintf(" AND t.product_id = $%d", len(params))
	}

	current := fmt.Sprintf(`
		SELECT %s AS key, COUNT(*), AVG(t.sentiment),
		       COUNT(*) FILTER (WHERE t.sentiment < $2)
		FROM support_tickets t%s
		WHERE t.created_at >= NOW() - ($1 * INTERVAL '1 day')%s
		GROUP BY key`, keyExpr, join, filter)

	rows, err := t.db.QueryContext(ctx, current, params...)
	if err != nil {
		return nil, fmt.Errorf("query current ticket window: %w", err)
	}
	defer rows.Close()

	byKey := map[string]*trendRow{}
	var totalVolume int64
	for rows.Next() {
		r := &trendRow{}
		if err := rows.Scan(&r.key, &r.volume, &r.avgSentiment, &r.negativeCount); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		byKey[r.key] = r
		totalVolume += r.volume
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend rows: %w", err)
	}

	previous := fmt.Sprintf(`
		SELECT %s AS key, COUNT(*)
		FROM support_tickets t%s
		WHERE t.created_at >= NOW() - ($1 * 2 * INTERVAL '1 day')
		  AND t.created_at < NOW() - ($1 * INTERVAL '1 day')%s
		GROUP BY key`, keyExpr, join, filter)

	prevRows, err := t.db.QueryContext(ctx, previous, params...)
	if err != nil {
		return nil, fmt.Errorf("query previous ticket window: %w", err)
	}
	defer prevRows.Close()

	for prevRows.Next() {
		var key string
		var volume int64
		if err := prevRows.Scan(&key, &volume); err != nil {
			return nil, fmt.Errorf("scan previous trend row: %w", err)
		}
		if r, ok := byKey[key]; ok {
			r.previousVolume = volume
		}
	}
	if err := prevRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate previous trend rows: %w", err)
	}

	trends := []map[string]any{}
	alerts := []string{}
	sorted := make([]*trendRow, 0, len(byKey))
	for _, r := range byKey {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].volume != sorted[j].volume {
			return sorted[i].volume > sorted[j].volume
		}
		return sorted[i].key < sorted[j].key
	})

	for _, r := range sorted {
		changePct := 0.0
		switch {
		case r.previousVolume > 0:
			changePct = float64(r.volume-r.previousVolume) / float64(r.previousVolume) * 100
		case r.volume > 0:
			changePct = 100
		}

		trendLabel := "stable"
		switch {
		case changePct > 20:
			trendLabel = "increasing"
		case changePct < -20:
			trendLabel = "decreasing"
		}

		trends = append(trends, map[string]any{
			"key":             r.key,
			"volume":          r.volume,
			"previous_volume": r.previousVolume,
			"change_pct":      round1(changePct),
			"trend":           trendLabel,
			"avg_sentiment":   round2(r.avgSentiment),
			"negative_count":  r.negativeCount,
		})

		if changePct > 50 {
			alerts = append(alerts, fmt.Sprintf("Spike in '%s': +%.0f%% vs previous period", r.key, changePct))
		}
		if r.avgSentiment < lowSentimentAlertMax {
			alerts = append(alerts, fmt.Sprintf("Low sentiment in '%s': %.2f", r.key, r.avgSentiment))
		}
	}

	return map[string]any{
		"window_days":  windowDays,
		"group_by":     groupBy,
		"total_volume": totalVolume,
		"trends":       trends,
		"alerts":       alerts,
		"has_alerts":   len(alerts) > 0,
	}, nil
}
