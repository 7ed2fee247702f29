package toolserver

import (
	"context"
	"database/sql"
	"fmt"
)

// inventoryTools reports stock positions from the products table, joined
// against warehouse inventory for in-transit quantities.
type inventoryTools struct {
	db *sql.DB
}

// Status implements get_inventory_status. Arguments: product_ids (optional
// id filter), limit (1-200, default 50). Rows come back lowest stock first.
func (t *inventoryTools) Status(ctx context.Context, args map[string]any) (any, error) {
	productIDs, err := int64ListArg(args, "product_ids")
	if err != nil {
		return nil, err
	}
	limit, err := boundedIntArg(args, "limit", 50, 1, 200)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, category, stock_qty, low_stock_threshold,
		       CASE WHEN stock_qty = 0 THEN 'out_of_stock'
		            WHEN stock_qty <= low_stock_threshold THEN 'low_stock'
		            ELSE 'in_stock' END AS status
		FROM products`
	params := []any{}
	if len(productIDs) > 0 {
		query += ` WHERE id = ANY($1)`
		params = append(params, productIDs)
	}
	query += fmt.Sprintf(` ORDER BY stock_qty ASC LIMIT $%d`, len(params)+1)
	params = append(params, limit)

	rows, err := t.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query inventory status: %w", err)
	}
	defer rows.Close()

	items := []map[string]any{}
	var outOfStock, lowStock int
	for rows.Next() {
		var (
			id        int64
			name      string
			category  string
			stockQty  int64
			threshold int64
			status    string
		)
		if err := rows.Scan(&id, &name, &category, &stockQty, &threshold, &status); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		items = append(items, map[string]any{
			"product_id":          id,
			"name":                name,
			"category":            category,
			"stock_qty":           stockQty,
			"low_stock_threshold": threshold,
			"status":              status,
		})
		switch status {
		case "out_of_stock":
			outOfStock++
		case "low_stock":
			lowStock++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}

	return map[string]any{
		"items":              items,
		"total_count":        len(items),
		"out_of_stock_count": outOfStock,
		"low_stock_count":    lowStock,
	}, nil
}

// LowStock implements get_low_stock_products. Arguments:
// include_out_of_stock (default true), category (optional filter), limit
// (1-100, default 20). Every returned product sits at or below its
// threshold, ordered by how far below. incoming_qty sums in-transit stock
// across warehouses so agents do not propose restocks already on the way.
func (t *inventoryTools) LowStock(ctx context.Context, args map[string]any) (any, error) {
	includeOOS, err := boolArg(args, "include_out_of_stock", true)
	if err != nil {
		return nil, err
	}
	category, err := stringArg(args, "category", "")
	if err != nil {
		return nil, err
	}
	limit, err := boundedIntArg(args, "limit", 20, 1, 100)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT p.id, p.name, p.category, p.stock_qty, p.low_stock_threshold,
		       (p.stock_qty - p.low_stock_threshold) AS stock_buffer,
		       COALESCE(SUM(i.incoming_qty), 0) AS incoming_qty
		FROM products p
		LEFT JOIN inventory i ON i.product_id = p.id
		WHERE p.stock_qty <= p.low_stock_threshold`
	params := []any{}
	if !includeOOS {
		query += ` AND p.stock_qty > 0`
	}
	if category != "" {
		params = append(params, category)
		query += fmt.Sprintf(` AND p.category = $%d`, len(params))
	}
	query += ` GROUP BY p.id, p.name, p.category, p.stock_qty, p.low_stock_threshold`
	params = append(params, limit)
	query += fmt.Sprintf(` ORDER BY stock_buffer ASC, p.stock_qty ASC LIMIT $%d`, len(params))

	rows, err := t.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query low stock products: %w", err)
	}
	defer rows.Close()

	products := []map[string]any{}
	var outOfStock, critical int
	for rows.Next() {
		var (
			id        int64
			name      string
			cat       string
			stockQty  int64
			threshold int64
			buffer    int64
			incoming  int64
		)
		if err := rows.Scan(&id, &name, &cat, &stockQty, &threshold, &buffer, &incoming); err != nil {
			return nil, fmt.Errorf("scan low stock row: %w", err)
		}

		status := "critical"
		if stockQty == 0 {
			status = "out_of_stock"
			outOfStock++
		} else {
			critical++
		}

		products = append(products, map[string]any{
			"product_id":          id,
			"name":                name,
			"category":            cat,
			"stock_qty":           stockQty,
			"low_stock_threshold": threshold,
			"stock_buffer":        buffer,
			"incoming_qty":        incoming,
			"status":              status,
			"needs_restock":       true,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate low stock rows: %w", err)
	}

	return map[string]any{
		"low_stock_products": products,
		"total_count":        len(products),
		"out_of_stock_count": outOfStock,
		"critical_count":     critical,
		"has_critical":       len(products) > 0,
	}, nil
}
