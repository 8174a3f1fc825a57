package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// UpsertCategoryEmbedding inserts or replaces the stored vector for one category.
func UpsertCategoryEmbedding(ctx context.Context, row *CategoryEmbeddingRow) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("UpsertCategoryEmbedding: bigquery client: %w", err)
	}
	defer client.Close()

	return UpsertCategoryEmbeddingWithClient(ctx, client, row)
}

// UpsertCategoryEmbeddingWithClient inserts or replaces the stored vector for one
// category using the provided BigQuery client.
func UpsertCategoryEmbeddingWithClient(ctx context.Context, client *bigquery.Client, row *CategoryEmbeddingRow) error {
	q := client.Query(`
		MERGE ` + "`" + tableRef(embeddingsTable) + "`" + ` T
		USING (SELECT @category AS category) S
		ON T.category = S.category
		WHEN MATCHED THEN
			UPDATE SET vector = @vector, updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN
			INSERT (category, vector, updated_ts)
			VALUES (@category, @vector, CURRENT_TIMESTAMP())
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category", Value: row.Category},
		{Name: "vector", Value: row.Vector},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("UpsertCategoryEmbeddingWithClient: running merge: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("UpsertCategoryEmbeddingWithClient: waiting for merge: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("UpsertCategoryEmbeddingWithClient: merge failed: %w", err)
	}

	return nil
}

// ListCategoryEmbeddings retrieves every stored category vector.
func ListCategoryEmbeddings(ctx context.Context) ([]*CategoryEmbeddingRow, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("ListCategoryEmbeddings: bigquery client: %w", err)
	}
	defer client.Close()

	return ListCategoryEmbeddingsWithClient(ctx, client)
}

// ListCategoryEmbeddingsWithClient retrieves every stored category vector using the
// provided BigQuery client.
func ListCategoryEmbeddingsWithClient(ctx context.Context, client *bigquery.Client) ([]*CategoryEmbeddingRow, error) {
	q := client.Query(`
		SELECT
			category,
			vector,
			updated_ts
		FROM ` + "`" + tableRef(embeddingsTable) + "`" + `
		ORDER BY category ASC
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategoryEmbeddingsWithClient: reading query: %w", err)
	}

	var rows []*CategoryEmbeddingRow
	for {
		var row CategoryEmbeddingRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategoryEmbeddingsWithClient: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
