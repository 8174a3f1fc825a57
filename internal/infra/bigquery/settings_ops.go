package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// GetUserSettings retrieves one user's alert settings. Returns nil when the user
// has never saved settings.
func GetUserSettings(ctx context.Context, userID string) (*UserSettingsRow, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("GetUserSettings: bigquery client: %w", err)
	}
	defer client.Close()

	return GetUserSettingsWithClient(ctx, client, userID)
}

// GetUserSettingsWithClient retrieves one user's alert settings using the provided
// BigQuery client. Returns nil when no row exists.
func GetUserSettingsWithClient(ctx context.Context, client *bigquery.Client, userID string) (*UserSettingsRow, error) {
	q := client.Query(`
		SELECT
			user_id,
			budget_pct,
			overage_threshold,
			sms_enabled,
			email_enabled,
			phone,
			email,
			updated_ts
		FROM ` + "`" + tableRef(settingsTable) + "`" + `
		WHERE user_id = @user_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetUserSettingsWithClient: reading query: %w", err)
	}

	var row UserSettingsRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetUserSettingsWithClient: iterating: %w", err)
	}

	return &row, nil
}

// UpsertUserSettings inserts or replaces one user's alert settings.
func UpsertUserSettings(ctx context.Context, row *UserSettingsRow) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("UpsertUserSettings: bigquery client: %w", err)
	}
	defer client.Close()

	return UpsertUserSettingsWithClient(ctx, client, row)
}

// UpsertUserSettingsWithClient inserts or replaces one user's alert settings using
// the provided BigQuery client.
func UpsertUserSettingsWithClient(ctx context.Context, client *bigquery.Client, row *UserSettingsRow) error {
	q := client.Query(`
		MERGE ` + "`" + tableRef(settingsTable) + "`" + ` T
		USING (SELECT @user_id AS user_id) S
		ON T.user_id = S.user_id
		WHEN MATCHED THEN
			UPDATE SET budget_pct = @budget_pct,
			           overage_threshold = @overage_threshold,
			           sms_enabled = @sms_enabled,
			           email_enabled = @email_enabled,
			           phone = @phone,
			           email = @email,
			           updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN
			INSERT (user_id, budget_pct, overage_threshold, sms_enabled, email_enabled, phone, email, updated_ts)
			VALUES (@user_id, @budget_pct, @overage_threshold, @sms_enabled, @email_enabled, @phone, @email, CURRENT_TIMESTAMP())
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: row.UserID},
		{Name: "budget_pct", Value: row.BudgetPct},
		{Name: "overage_threshold", Value: row.OverageThreshold},
		{Name: "sms_enabled", Value: row.SMSEnabled},
		{Name: "email_enabled", Value: row.EmailEnabled},
		{Name: "phone", Value: row.Phone},
		{Name: "email", Value: row.Email},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpsertUserSettingsWithClient: running merge: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpsertUserSettingsWithClient: waiting for merge: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("UpsertUserSettingsWithClient: merge failed: %w", err)
	}

	return nil
}
