package handlers

import (
	"context"
	"time"

	"github.com/avolkov/finpulse/internal/alert"
	"github.com/avolkov/finpulse/internal/domain"
	infrabq "github.com/avolkov/finpulse/internal/infra/bigquery"
)

// Store is the persistence surface the HTTP handlers need. The BigQuery
// Repository satisfies it; tests supply an in-memory fake.
type Store interface {
	TransactionsByMonth(ctx context.Context, userID string, month time.Time) ([]domain.Transaction, error)
	TransactionsByDateRange(ctx context.Context, userID string, start, end time.Time) ([]domain.Transaction, error)
	SaveTransactions(ctx context.Context, txs []domain.Transaction, uploadID string) error
	UpdateCategories(ctx context.Context, userID string, txs []domain.Transaction) error

	SaveBudget(ctx context.Context, b domain.Budget) error
	BudgetsByMonth(ctx context.Context, userID string, month time.Time) ([]domain.Budget, error)

	RecentAlerts(ctx context.Context, userID string, limit int) ([]domain.Alert, error)

	Settings(ctx context.Context, userID string) (domain.AlertSettings, error)
	SaveSettings(ctx context.Context, s domain.AlertSettings) error

	RecordUpload(ctx context.Context, row *infrabq.UploadRow) error
	FinishUpload(ctx context.Context, uploadID, status string, accepted, rejected int, errMsg string) error
	Uploads(ctx context.Context, userID string) ([]*infrabq.UploadRow, error)
}

// Categorizer assigns categories to a batch of transactions. The pipeline
// Processor satisfies it.
type Categorizer interface {
	CategorizeBatch(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, float64, error)
}

// AlertChecker evaluates budget standings and dispatches alerts. The alert
// Dispatcher satisfies it.
type AlertChecker interface {
	Check(ctx context.Context, in alert.Input) ([]domain.Alert, error)
}
