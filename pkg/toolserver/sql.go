package toolserver

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sqlTool runs approval-gated custom SQL. Statements reach this tool only
// after a human approves the execute_custom_sql action, so the tool accepts
// writes as well as reads but refuses multi-statement batches.
type sqlTool struct {
	db *sql.DB
}

// Execute implements execute_sql_query. Arguments: statement (required),
// params (optional positional values for $1..$n), fetch ("all", "one" or
// "value", default "all"). SELECT and WITH statements return rows; anything
// else is executed and reports the affected row count.
func (t *sqlTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	statement, err := stringArg(args, "statement", "")
	if err != nil {
		return nil, err
	}
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, argErr("statement is required")
	}

	// One statement per call. A trailing semicolon is tolerated; embedded
	// ones mean a batch, which the approval flow never reviews as a unit.
	trimmed := strings.TrimRight(statement, "; \t\n")
	if strings.Contains(trimmed, ";") {
		return nil, argErr("statement must be a single SQL statement")
	}

	fetch, err := stringArg(args, "fetch", "all")
	if err != nil {
		return nil, err
	}
	switch fetch {
	case "all", "one", "value":
	default:
		return nil, argErr("fetch must be one of all, one, value")
	}

	var params []any
	if raw, ok := args["params"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, argErr("params must be a list of values")
		}
		params = list
	}

	if !startsWithQueryKeyword(trimmed) {
		res, err := t.db.ExecContext(ctx, trimmed, params...)
		if err != nil {
			return nil, fmt.Errorf("execute statement: %w", err)
		}
		affected, _ := res.RowsAffected()
		return map[string]any{
			"rows":     []map[string]any{},
			"rowcount": affected,
			"columns":  []string{},
		}, nil
	}

	rows, err := t.db.QueryContext(ctx, trimmed, params...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i], columnTypes[i].DatabaseTypeName())
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	switch fetch {
	case "value":
		if len(results) == 0 || len(columns) == 0 {
			return map[string]any{"value": nil}, nil
		}
		return map[string]any{"value": results[0][columns[0]]}, nil
	case "one":
		if len(results) == 0 {
			return map[string]any{"row": nil}, nil
		}
		return map[string]any{"row": results[0]}, nil
	default:
		if results == nil {
			results = []map[string]any{}
		}
		return map[string]any{
			"rows":     results,
			"rowcount": len(results),
			"columns":  columns,
		}, nil
	}
}

func startsWithQueryKeyword(statement string) bool {
	upper := strings.ToUpper(statement)
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// normalizeValue converts driver scan types into JSON-friendly values. The
// pgx stdlib driver hands NUMERIC columns back as text, so those are parsed
// into float64 based on the column type rather than by sniffing the content.
func normalizeValue(v any, dbType string) any {
	numeric := dbType == "NUMERIC" || dbType == "DECIMAL"
	switch val := v.(type) {
	case []byte:
		s := string(val)
		if numeric {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	case string:
		if numeric {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
