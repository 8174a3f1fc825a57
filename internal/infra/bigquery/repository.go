package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/avolkov/finpulse/internal/domain"
)

// Repository bundles all table operations behind a single shared BigQuery client,
// avoiding a new connection per call. It satisfies the narrow store interfaces
// declared by the alert, pipeline, and api packages.
type Repository struct {
	client *bigquery.Client
}

// NewRepository creates a Repository with a shared BigQuery client.
func NewRepository(ctx context.Context) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// SaveTransactions persists parsed transactions, tagging each row with the upload
// that produced it.
func (r *Repository) SaveTransactions(ctx context.Context, txs []domain.Transaction, uploadID string) error {
	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, RowFromTransaction(tx, uploadID))
	}
	return InsertTransactionsWithClient(ctx, r.client, rows)
}

// TransactionsByMonth retrieves one user's transactions for a calendar month.
func (r *Repository) TransactionsByMonth(ctx context.Context, userID string, month time.Time) ([]domain.Transaction, error) {
	rows, err := QueryTransactionsByMonthWithClient(ctx, r.client, userID, month)
	if err != nil {
		return nil, err
	}
	return transactionsFromRows(rows), nil
}

// TransactionsByDateRange retrieves one user's transactions within [start, end].
func (r *Repository) TransactionsByDateRange(ctx context.Context, userID string, start, end time.Time) ([]domain.Transaction, error) {
	rows, err := QueryTransactionsByDateRangeWithClient(ctx, r.client, userID, start, end)
	if err != nil {
		return nil, err
	}
	return transactionsFromRows(rows), nil
}

// UpdateCategories writes categorization results back onto stored transactions.
func (r *Repository) UpdateCategories(ctx context.Context, userID string, txs []domain.Transaction) error {
	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, RowFromTransaction(tx, ""))
	}
	return UpdateTransactionCategoriesWithClient(ctx, r.client, userID, rows)
}

// SaveBudget inserts or replaces one budget row.
func (r *Repository) SaveBudget(ctx context.Context, b domain.Budget) error {
	return UpsertBudgetWithClient(ctx, r.client, RowFromBudget(b))
}

// BudgetsByMonth retrieves one user's budgets for a calendar month.
func (r *Repository) BudgetsByMonth(ctx context.Context, userID string, month time.Time) ([]domain.Budget, error) {
	rows, err := ListBudgetsWithClient(ctx, r.client, userID, month)
	if err != nil {
		return nil, err
	}
	budgets := make([]domain.Budget, 0, len(rows))
	for _, row := range rows {
		budgets = append(budgets, row.Budget())
	}
	return budgets, nil
}

// ClaimDedup delegates to the MERGE-backed dedup claim with the shared client.
func (r *Repository) ClaimDedup(ctx context.Context, userID, category string, trigger domain.TriggerType, window string) (bool, error) {
	return ClaimAlertDedupWithClient(ctx, r.client, userID, category, string(trigger), window)
}

// InsertAlerts persists triggered alerts with the shared client.
func (r *Repository) InsertAlerts(ctx context.Context, alerts []domain.Alert) error {
	rows := make([]*AlertRow, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, RowFromAlert(a))
	}
	return InsertAlertsWithClient(ctx, r.client, rows)
}

// RecentAlerts retrieves one user's most recent alerts.
func (r *Repository) RecentAlerts(ctx context.Context, userID string, limit int) ([]domain.Alert, error) {
	rows, err := ListAlertsWithClient(ctx, r.client, userID, limit)
	if err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, domain.Alert{
			AlertID:     row.AlertID,
			UserID:      row.UserID,
			Category:    row.Category,
			Trigger:     domain.TriggerType(row.Trigger),
			Channel:     domain.Channel(row.Channel),
			Priority:    domain.Priority(row.Priority),
			Message:     row.Message,
			TriggeredAt: row.TriggeredAt,
		})
	}
	return alerts, nil
}

// CategoryEmbeddings retrieves every stored category vector.
func (r *Repository) CategoryEmbeddings(ctx context.Context) ([]domain.CategoryEmbedding, error) {
	rows, err := ListCategoryEmbeddingsWithClient(ctx, r.client)
	if err != nil {
		return nil, err
	}
	embeds := make([]domain.CategoryEmbedding, 0, len(rows))
	for _, row := range rows {
		embeds = append(embeds, domain.CategoryEmbedding{Category: row.Category, Vector: row.Vector})
	}
	return embeds, nil
}

// SaveCategoryEmbedding inserts or replaces the stored vector for one category.
func (r *Repository) SaveCategoryEmbedding(ctx context.Context, e domain.CategoryEmbedding) error {
	return UpsertCategoryEmbeddingWithClient(ctx, r.client, &CategoryEmbeddingRow{
		Category:  e.Category,
		Vector:    e.Vector,
		UpdatedTS: time.Now(),
	})
}

// Settings retrieves one user's alert settings, falling back to defaults when the
// user has never saved any.
func (r *Repository) Settings(ctx context.Context, userID string) (domain.AlertSettings, error) {
	row, err := GetUserSettingsWithClient(ctx, r.client, userID)
	if err != nil {
		return domain.AlertSettings{}, err
	}
	if row == nil {
		return domain.DefaultAlertSettings(userID), nil
	}
	return row.Settings(), nil
}

// SaveSettings inserts or replaces one user's alert settings.
func (r *Repository) SaveSettings(ctx context.Context, s domain.AlertSettings) error {
	return UpsertUserSettingsWithClient(ctx, r.client, &UserSettingsRow{
		UserID:           s.UserID,
		BudgetPct:        s.BudgetPct,
		OverageThreshold: s.OverageThreshold.Rat(),
		SMSEnabled:       s.SMSEnabled,
		EmailEnabled:     s.EmailEnabled,
		Phone:            s.Phone,
		Email:            s.Email,
	})
}

// RecordUpload persists metadata for a received statement file.
func (r *Repository) RecordUpload(ctx context.Context, row *UploadRow) error {
	return InsertUploadWithClient(ctx, r.client, row)
}

// FinishUpload records the outcome of processing one upload.
func (r *Repository) FinishUpload(ctx context.Context, uploadID, status string, accepted, rejected int, errMsg string) error {
	return UpdateUploadStatusWithClient(ctx, r.client, uploadID, status, accepted, rejected, errMsg)
}

// Uploads retrieves one user's uploads, newest first.
func (r *Repository) Uploads(ctx context.Context, userID string) ([]*UploadRow, error) {
	return ListUploadsWithClient(ctx, r.client, userID)
}

func transactionsFromRows(rows []*TransactionRow) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.Transaction())
	}
	return txs
}
