package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// InsertTransactions inserts a batch of TransactionRow into finance.transactions.
func InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("InsertTransactions: bigquery client: %w", err)
	}
	defer client.Close()

	return InsertTransactionsWithClient(ctx, client, rows)
}

// InsertTransactionsWithClient inserts a batch of TransactionRow into finance.transactions
// using the provided BigQuery client.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(projectID, datasetID).Table(transactionsTable)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactionsWithClient: inserting rows: %w", err)
	}

	return nil
}

// QueryTransactionsByMonth queries one user's transactions falling in the given calendar month.
func QueryTransactionsByMonth(ctx context.Context, userID string, month time.Time) ([]*TransactionRow, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByMonth: bigquery client: %w", err)
	}
	defer client.Close()

	return QueryTransactionsByMonthWithClient(ctx, client, userID, month)
}

// QueryTransactionsByMonthWithClient queries one user's transactions falling in the
// given calendar month using the provided BigQuery client.
func QueryTransactionsByMonthWithClient(ctx context.Context, client *bigquery.Client, userID string, month time.Time) ([]*TransactionRow, error) {
	q := client.Query(`
		SELECT
			transaction_id,
			user_id,
			transaction_date,
			description,
			amount,
			is_income,
			source,
			category_name,
			category_method,
			category_confidence,
			upload_id,
			created_ts,
			updated_ts
		FROM ` + "`" + tableRef(transactionsTable) + "`" + `
		WHERE user_id = @user_id
		  AND DATE_TRUNC(transaction_date, MONTH) = @month
		ORDER BY transaction_date ASC, transaction_id ASC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "month", Value: civil.Date{Year: month.Year(), Month: month.Month(), Day: 1}},
	}

	return readTransactionRows(ctx, q, "QueryTransactionsByMonthWithClient")
}

// QueryTransactionsByDateRange queries one user's transactions within [start, end].
func QueryTransactionsByDateRange(ctx context.Context, userID string, start, end time.Time) ([]*TransactionRow, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: bigquery client: %w", err)
	}
	defer client.Close()

	return QueryTransactionsByDateRangeWithClient(ctx, client, userID, start, end)
}

// QueryTransactionsByDateRangeWithClient queries one user's transactions within
// [start, end] inclusive using the provided BigQuery client.
func QueryTransactionsByDateRangeWithClient(ctx context.Context, client *bigquery.Client, userID string, start, end time.Time) ([]*TransactionRow, error) {
	q := client.Query(`
		SELECT
			transaction_id,
			user_id,
			transaction_date,
			description,
			amount,
			is_income,
			source,
			category_name,
			category_method,
			category_confidence,
			upload_id,
			created_ts,
			updated_ts
		FROM ` + "`" + tableRef(transactionsTable) + "`" + `
		WHERE user_id = @user_id
		  AND transaction_date BETWEEN @start_date AND @end_date
		ORDER BY transaction_date ASC, transaction_id ASC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: civil.DateOf(start)},
		{Name: "end_date", Value: civil.DateOf(end)},
	}

	return readTransactionRows(ctx, q, "QueryTransactionsByDateRangeWithClient")
}

// UpdateTransactionCategoriesWithClient writes categorization results back onto
// already stored rows, matched by transaction_id.
func UpdateTransactionCategoriesWithClient(ctx context.Context, client *bigquery.Client, userID string, rows []*TransactionRow) error {
	for _, row := range rows {
		q := client.Query(`
			UPDATE ` + "`" + tableRef(transactionsTable) + "`" + `
			SET category_name = @category_name,
			    category_method = @category_method,
			    category_confidence = @category_confidence,
			    updated_ts = CURRENT_TIMESTAMP()
			WHERE user_id = @user_id AND transaction_id = @transaction_id
		`)
		q.Parameters = []bigquery.QueryParameter{
			{Name: "category_name", Value: row.CategoryName.StringVal},
			{Name: "category_method", Value: row.CategoryMethod.StringVal},
			{Name: "category_confidence", Value: row.CategoryConfidence.Float64},
			{Name: "user_id", Value: userID},
			{Name: "transaction_id", Value: row.TransactionID},
		}

		job, err := q.Run(ctx)
		if err != nil {
			return fmt.Errorf("UpdateTransactionCategoriesWithClient: running update for %s: %w", row.TransactionID, err)
		}
		status, err := job.Wait(ctx)
		if err != nil {
			return fmt.Errorf("UpdateTransactionCategoriesWithClient: waiting for update of %s: %w", row.TransactionID, err)
		}
		if err := status.Err(); err != nil {
			return fmt.Errorf("UpdateTransactionCategoriesWithClient: update of %s failed: %w", row.TransactionID, err)
		}
	}

	return nil
}

func readTransactionRows(ctx context.Context, q *bigquery.Query, op string) ([]*TransactionRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: reading query: %w", op, err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iterating: %w", op, err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
