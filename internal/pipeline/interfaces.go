package pipeline

import (
	"context"

	"github.com/avolkov/finpulse/internal/categorize"
	"github.com/avolkov/finpulse/internal/domain"
)

// Store is the persistence surface the pipeline needs. The BigQuery Repository
// satisfies it; tests supply an in-memory fake.
type Store interface {
	SaveTransactions(ctx context.Context, txs []domain.Transaction, uploadID string) error
	FinishUpload(ctx context.Context, uploadID, status string, accepted, rejected int, errMsg string) error
	CategoryEmbeddings(ctx context.Context) ([]domain.CategoryEmbedding, error)
	SaveCategoryEmbedding(ctx context.Context, e domain.CategoryEmbedding) error
}

// Fetcher retrieves uploaded statement bytes by GCS URI.
type Fetcher interface {
	Fetch(ctx context.Context, gcsURI string) ([]byte, error)
}

// Categorizer assigns categories to a batch of transactions.
type Categorizer interface {
	Categorize(ctx context.Context, txs []domain.Transaction, categories []domain.CategoryEmbedding) categorize.BatchResult
}
