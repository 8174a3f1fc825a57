package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// UpsertBudget inserts or replaces one (user, category, month) budget row.
func UpsertBudget(ctx context.Context, row *BudgetRow) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("UpsertBudget: bigquery client: %w", err)
	}
	defer client.Close()

	return UpsertBudgetWithClient(ctx, client, row)
}

// UpsertBudgetWithClient inserts or replaces one (user, category, month) budget row
// using the provided BigQuery client.
func UpsertBudgetWithClient(ctx context.Context, client *bigquery.Client, row *BudgetRow) error {
	q := client.Query(`
		MERGE ` + "`" + tableRef(budgetsTable) + "`" + ` T
		USING (SELECT @user_id AS user_id, @category AS category, @month AS month) S
		ON T.user_id = S.user_id AND T.category = S.category AND T.month = S.month
		WHEN MATCHED THEN
			UPDATE SET monthly_limit = @monthly_limit
		WHEN NOT MATCHED THEN
			INSERT (user_id, category, month, monthly_limit, created_ts)
			VALUES (@user_id, @category, @month, @monthly_limit, CURRENT_TIMESTAMP())
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: row.UserID},
		{Name: "category", Value: row.Category},
		{Name: "month", Value: row.Month},
		{Name: "monthly_limit", Value: row.MonthlyLimit},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpsertBudgetWithClient: running merge: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpsertBudgetWithClient: waiting for merge: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("UpsertBudgetWithClient: merge failed: %w", err)
	}

	return nil
}

// ListBudgets retrieves one user's budgets for the given month.
func ListBudgets(ctx context.Context, userID string, month time.Time) ([]*BudgetRow, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("ListBudgets: bigquery client: %w", err)
	}
	defer client.Close()

	return ListBudgetsWithClient(ctx, client, userID, month)
}

// ListBudgetsWithClient retrieves one user's budgets for the given month using the
// provided BigQuery client.
func ListBudgetsWithClient(ctx context.Context, client *bigquery.Client, userID string, month time.Time) ([]*BudgetRow, error) {
	q := client.Query(`
		SELECT
			user_id,
			category,
			month,
			monthly_limit,
			created_ts
		FROM ` + "`" + tableRef(budgetsTable) + "`" + `
		WHERE user_id = @user_id AND month = @month
		ORDER BY category ASC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "month", Value: civil.Date{Year: month.Year(), Month: month.Month(), Day: 1}},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListBudgetsWithClient: reading query: %w", err)
	}

	var rows []*BudgetRow
	for {
		var row BudgetRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListBudgetsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
