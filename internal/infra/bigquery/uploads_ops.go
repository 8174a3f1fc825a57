package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertUpload records a newly received statement file in finance.uploads.
func InsertUpload(ctx context.Context, row *UploadRow) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("InsertUpload: bigquery client: %w", err)
	}
	defer client.Close()

	return InsertUploadWithClient(ctx, client, row)
}

// InsertUploadWithClient records a newly received statement file using the provided
// BigQuery client.
func InsertUploadWithClient(ctx context.Context, client *bigquery.Client, row *UploadRow) error {
	table := client.DatasetInProject(projectID, datasetID).Table(uploadsTable)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertUploadWithClient: inserting row: %w", err)
	}

	return nil
}

// UpdateUploadStatusWithClient records the outcome of processing one upload.
func UpdateUploadStatusWithClient(ctx context.Context, client *bigquery.Client, uploadID, status string, accepted, rejected int, errMsg string) error {
	q := client.Query(`
		UPDATE ` + "`" + tableRef(uploadsTable) + "`" + `
		SET ingest_status = @ingest_status,
		    accepted_rows = @accepted_rows,
		    rejected_rows = @rejected_rows,
		    error_message = @error_message
		WHERE upload_id = @upload_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ingest_status", Value: status},
		{Name: "accepted_rows", Value: int64(accepted)},
		{Name: "rejected_rows", Value: int64(rejected)},
		{Name: "error_message", Value: errMsg},
		{Name: "upload_id", Value: uploadID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpdateUploadStatusWithClient: running update: %w", err)
	}
	jobStatus, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpdateUploadStatusWithClient: waiting for update: %w", err)
	}
	if err := jobStatus.Err(); err != nil {
		return fmt.Errorf("UpdateUploadStatusWithClient: update failed: %w", err)
	}

	return nil
}

// ListUploadsWithClient retrieves one user's uploads, newest first.
func ListUploadsWithClient(ctx context.Context, client *bigquery.Client, userID string) ([]*UploadRow, error) {
	q := client.Query(`
		SELECT
			upload_id,
			user_id,
			filename,
			gcs_uri,
			accepted_rows,
			rejected_rows,
			ingest_status,
			error_message,
			upload_ts
		FROM ` + "`" + tableRef(uploadsTable) + "`" + `
		WHERE user_id = @user_id
		ORDER BY upload_ts DESC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUploadsWithClient: reading query: %w", err)
	}

	var rows []*UploadRow
	for {
		var row UploadRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListUploadsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
