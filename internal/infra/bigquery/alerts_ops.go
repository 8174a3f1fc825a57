package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertAlerts inserts a batch of AlertRow into finance.alerts.
func InsertAlerts(ctx context.Context, rows []*AlertRow) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("InsertAlerts: bigquery client: %w", err)
	}
	defer client.Close()

	return InsertAlertsWithClient(ctx, client, rows)
}

// InsertAlertsWithClient inserts a batch of AlertRow into finance.alerts using the
// provided BigQuery client.
func InsertAlertsWithClient(ctx context.Context, client *bigquery.Client, rows []*AlertRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(projectID, datasetID).Table(alertsTable)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertAlertsWithClient: inserting rows: %w", err)
	}

	return nil
}

// ClaimAlertDedup atomically records a (user, category, trigger, window) dedup key.
// Returns true when this call inserted the key, false when it already existed.
func ClaimAlertDedup(ctx context.Context, userID, category, trigger, window string) (bool, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return false, fmt.Errorf("ClaimAlertDedup: bigquery client: %w", err)
	}
	defer client.Close()

	return ClaimAlertDedupWithClient(ctx, client, userID, category, trigger, window)
}

// ClaimAlertDedupWithClient atomically records a dedup key using the provided BigQuery
// client. The MERGE inserts only when no matching key exists, so concurrent callers
// racing on the same key see exactly one affected row between them.
func ClaimAlertDedupWithClient(ctx context.Context, client *bigquery.Client, userID, category, trigger, window string) (bool, error) {
	q := client.Query(`
		MERGE ` + "`" + tableRef(alertDedupTable) + "`" + ` T
		USING (
			SELECT @user_id AS user_id, @category AS category,
			       @trigger AS trigger, @window_day AS window_day
		) S
		ON T.user_id = S.user_id AND T.category = S.category
		   AND T.trigger = S.trigger AND T.window_day = S.window_day
		WHEN NOT MATCHED THEN
			INSERT (user_id, category, trigger, window_day, claimed_ts)
			VALUES (S.user_id, S.category, S.trigger, S.window_day, CURRENT_TIMESTAMP())
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "category", Value: category},
		{Name: "trigger", Value: trigger},
		{Name: "window_day", Value: window},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return false, fmt.Errorf("ClaimAlertDedupWithClient: running merge: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return false, fmt.Errorf("ClaimAlertDedupWithClient: waiting for merge: %w", err)
	}
	if err := status.Err(); err != nil {
		return false, fmt.Errorf("ClaimAlertDedupWithClient: merge failed: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows > 0, nil
		}
	}

	return false, fmt.Errorf("ClaimAlertDedupWithClient: merge statistics unavailable")
}

// ListAlerts retrieves one user's most recent alerts, newest first.
func ListAlerts(ctx context.Context, userID string, limit int) ([]*AlertRow, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("ListAlerts: bigquery client: %w", err)
	}
	defer client.Close()

	return ListAlertsWithClient(ctx, client, userID, limit)
}

// ListAlertsWithClient retrieves one user's most recent alerts using the provided
// BigQuery client.
func ListAlertsWithClient(ctx context.Context, client *bigquery.Client, userID string, limit int) ([]*AlertRow, error) {
	if limit <= 0 {
		limit = 50
	}

	q := client.Query(`
		SELECT
			alert_id,
			user_id,
			category,
			trigger,
			channel,
			priority,
			message,
			triggered_ts
		FROM ` + "`" + tableRef(alertsTable) + "`" + `
		WHERE user_id = @user_id
		ORDER BY triggered_ts DESC
		LIMIT @row_limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "row_limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAlertsWithClient: reading query: %w", err)
	}

	var rows []*AlertRow
	for {
		var row AlertRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAlertsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
