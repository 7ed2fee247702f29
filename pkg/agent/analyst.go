package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ecomops/opsloop/pkg/llm"
	"github.com/ecomops/opsloop/pkg/models"
)

// dbSchemaContext primes SQL generation with the operational schema.
const dbSchemaContext = `Database Schema (PostgreSQL):

1. products
   - id (INT, PK)
   - name (VARCHAR 255)
   - category (VARCHAR 100)
   - price (NUMERIC 10,2)
   - stock_qty (INT) - total stock quantity
   - low_stock_threshold (INT) - threshold for low stock alerts

2. orders
   - id (INT, PK)
   - product_id (INT, FK -> products.id)
   - timestamp (TIMESTAMPTZ)
   - qty (INT) - quantity ordered
   - revenue (NUMERIC 12,2)
   - region (VARCHAR 100)
   - channel (VARCHAR 100)

3. campaigns
   - id (INT, PK)
   - name (VARCHAR 255, UNIQUE)
   - budget (NUMERIC 12,2)
   - spend (NUMERIC 12,2)
   - clicks (INT)
   - conversions (INT)
   - status (VARCHAR 20) - 'active' or 'paused'

4. support_tickets
   - id (INT, PK)
   - product_id (INT, FK -> products.id, nullable)
   - sentiment (FLOAT) - sentiment score
   - issue_category (VARCHAR 100)
   - description (TEXT)
   - created_at (TIMESTAMPTZ)

5. inventory
   - id (INT, PK)
   - product_id (INT, FK -> products.id)
   - warehouse_code (VARCHAR 50) - warehouse identifier
   - on_hand (INT) - quantity physically available
   - reserved (INT) - quantity reserved for orders
   - reorder_point (INT) - threshold to trigger reorder
   - incoming_qty (INT) - quantity in transit
   - last_restocked (TIMESTAMPTZ)

Key relationships:
- orders.product_id -> products.id
- support_tickets.product_id -> products.id
- inventory.product_id -> products.id (one product can have multiple inventory rows per warehouse)`

const sqlGenerationRules = `Rules:
1. Return ONLY the SQL query, no explanations or markdown.
2. Use proper PostgreSQL syntax (e.g., INTERVAL '7 days', NOW(), etc.)
3. Always include a reasonable LIMIT (default 20) to prevent large result sets.
4. Use meaningful column aliases for clarity.
5. Handle NULLs appropriately with COALESCE or NULLIF where needed.
6. For time-based queries without specific dates, default to the last 7 days.
7. If the query cannot be answered with the given schema, respond with exactly: CANNOT_GENERATE`

var (
	sqlFenceOpen    = regexp.MustCompile("^```sql\\s*")
	sqlBareOpen     = regexp.MustCompile("^```\\s*")
	sqlFenceClose   = regexp.MustCompile("\\s*```$")
	sqlLeadsKeyword = regexp.MustCompile(`(?i)^(SELECT|WITH|INSERT|UPDATE|DELETE)`)
)

// DataAnalystAgent turns open-ended questions into SQL proposals. Generated
// statements are never executed directly; every one travels through the
// approval queue as an execute_custom_sql action.
type DataAnalystAgent struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewDataAnalystAgent builds the analyst over the given LLM client.
func NewDataAnalystAgent(client llm.Client) *DataAnalystAgent {
	return &DataAnalystAgent{llm: client, logger: slog.With("agent", "data_analyst")}
}

func (a *DataAnalystAgent) Metadata() models.AgentMetadata {
	return models.AgentMetadata{
		Name:        "data_analyst",
		DisplayName: "DATA_ANALYST",
		Description: "Performs custom SQL queries for complex analysis. Used as a fallback when specialized agents cannot handle the query. All SQL execution requires human approval.",
		Capabilities: []models.Capability{
			{
				Name:        "custom_analysis",
				Description: "Generate and execute custom SQL for complex cross-domain analysis. Requires human approval before execution.",
				Parameters: []string{
					"query: natural language description of the analysis needed",
					"statement: pre-built SQL statement; skips generation when provided",
				},
				ExampleQueries: []string{
					"Compare yesterday's sales with last week by region",
					"Which products are driving the most support tickets?",
					"Show me underperforming campaigns with low conversion rates",
					"Revenue by channel and product category",
				},
			},
		},
		Keywords:             []string{"complex", "custom", "compare", "analyze", "breakdown", "cross-domain", "advanced", "report", "regional", "channel"},
		PriorityBoostPhrases: []string{"complex analysis", "custom report", "compare periods"},
	}
}

func (a *DataAnalystAgent) Run(ctx context.Context, task models.AgentTask, _ RunContext) models.AgentResult {
	statement := stringParam(task.Parameters, "statement", "")
	query := task.Query()
	if query == "" {
		query = stringParam(task.Parameters, "original_query", "")
	}

	if statement == "" {
		generated, err := a.generateSQL(ctx, query)
		if err != nil {
			a.logger.Warn("SQL generation failed", "query", query, "error", err)
			return models.FailureResult(
				"could not generate SQL for this query; provide more details or a specific SQL statement")
		}
		statement = generated
	}

	rec := models.AgentRecommendation{
		ActionType: "execute_custom_sql",
		Payload: map[string]any{
			"statement":      statement,
			"original_query": query,
		},
		Reasoning: fmt.Sprintf("Custom SQL analysis requested: %q. This query requires human approval before execution. SQL: %s",
			query, truncate(statement, 200)),
		RequiresApproval: true,
	}

	findings := map[string]any{
		"generated_sql":  statement,
		"original_query": query,
		"status":         "pending_approval",
		"message":        "Custom SQL query generated. Awaiting human approval before execution.",
	}
	insights := []string{
		"Custom SQL analysis requires human approval before execution.",
		"Query: " + query,
	}

	return models.SuccessResult(findings, insights, []models.AgentRecommendation{rec})
}

// generateSQL asks the LLM for a single PostgreSQL statement answering the
// question. Responses are stripped of markdown fences and must open with a
// SQL keyword.
func (a *DataAnalystAgent) generateSQL(ctx context.Context, query string) (string, error) {
	user := fmt.Sprintf("Generate a PostgreSQL query to answer the following question:\n%q\n\n%s\n\nSQL:",
		query, sqlGenerationRules)

	raw, err := a.llm.Complete(ctx, dbSchemaContext, user)
	if err != nil {
		return "", fmt.Errorf("sql generation: %w", err)
	}

	sql := strings.TrimSpace(raw)
	if strings.Contains(sql, "CANNOT_GENERATE") {
		return "", fmt.Errorf("model declined: query not answerable from the schema")
	}

	sql = sqlFenceOpen.ReplaceAllString(sql, "")
	sql = sqlBareOpen.ReplaceAllString(sql, "")
	sql = sqlFenceClose.ReplaceAllString(sql, "")
	sql = strings.TrimSpace(sql)

	if !sqlLeadsKeyword.MatchString(sql) {
		return "", fmt.Errorf("model returned text that is not SQL: %s", truncate(sql, 100))
	}

	a.logger.Info("Generated SQL for approval", "query", query, "sql", truncate(sql, 100))
	return sql, nil
}
