package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/domain"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Description     string     `bigquery:"description"`      // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC, signed
	IsIncome        bool       `bigquery:"is_income"`
	Source          string     `bigquery:"source"` // csv | manual

	CategoryName       bigquery.NullString  `bigquery:"category_name"`       // NULLABLE
	CategoryMethod     bigquery.NullString  `bigquery:"category_method"`     // embedding | llm | default
	CategoryConfidence bigquery.NullFloat64 `bigquery:"category_confidence"` // [0,1]

	UploadID  bigquery.NullString    `bigquery:"upload_id"` // NULLABLE, links to uploads
	CreatedTS time.Time              `bigquery:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"`
}

type BudgetRow struct {
	UserID       string     `bigquery:"user_id"`       // REQUIRED
	Category     string     `bigquery:"category"`      // REQUIRED
	Month        civil.Date `bigquery:"month"`         // first day of month
	MonthlyLimit *big.Rat   `bigquery:"monthly_limit"` // REQUIRED NUMERIC, positive
	CreatedTS    time.Time  `bigquery:"created_ts"`
}

type AlertRow struct {
	AlertID     string    `bigquery:"alert_id"` // REQUIRED
	UserID      string    `bigquery:"user_id"`  // REQUIRED
	Category    string    `bigquery:"category"` // empty for aggregate triggers
	Trigger     string    `bigquery:"trigger"`  // over_budget | projected_overage
	Channel     string    `bigquery:"channel"`  // sms | email
	Priority    string    `bigquery:"priority"`
	Message     string    `bigquery:"message"`
	TriggeredAt time.Time `bigquery:"triggered_ts"`
}

type CategoryEmbeddingRow struct {
	Category  string    `bigquery:"category"` // REQUIRED, vocabulary member
	Vector    []float64 `bigquery:"vector"`   // REPEATED FLOAT64, fixed length
	UpdatedTS time.Time `bigquery:"updated_ts"`
}

type UserSettingsRow struct {
	UserID           string    `bigquery:"user_id"`
	BudgetPct        float64   `bigquery:"budget_pct"`
	OverageThreshold *big.Rat  `bigquery:"overage_threshold"` // NUMERIC
	SMSEnabled       bool      `bigquery:"sms_enabled"`
	EmailEnabled     bool      `bigquery:"email_enabled"`
	Phone            string    `bigquery:"phone"`
	Email            string    `bigquery:"email"`
	UpdatedTS        time.Time `bigquery:"updated_ts"`
}

type UploadRow struct {
	UploadID     string    `bigquery:"upload_id"`
	UserID       string    `bigquery:"user_id"`
	Filename     string    `bigquery:"filename"`
	GCSURI       string    `bigquery:"gcs_uri"`
	AcceptedRows int64     `bigquery:"accepted_rows"`
	RejectedRows int64     `bigquery:"rejected_rows"`
	IngestStatus string    `bigquery:"ingest_status"` // PENDING | SUCCESS | FAILED
	ErrorMessage string    `bigquery:"error_message"`
	UploadTS     time.Time `bigquery:"upload_ts"`
}

// RowFromTransaction maps a domain transaction to its table shape.
func RowFromTransaction(tx domain.Transaction, uploadID string) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   tx.TransactionID,
		UserID:          tx.UserID,
		TransactionDate: civil.DateOf(tx.Date),
		Description:     tx.Description,
		Amount:          tx.Amount.Rat(),
		IsIncome:        tx.IsIncome,
		Source:          string(tx.Source),
		CreatedTS:       time.Now(),
	}
	if tx.Category != "" {
		row.CategoryName = bigquery.NullString{StringVal: tx.Category, Valid: true}
		row.CategoryMethod = bigquery.NullString{StringVal: string(tx.CategoryMethod), Valid: true}
		row.CategoryConfidence = bigquery.NullFloat64{Float64: tx.CategoryConfidence, Valid: true}
	}
	if uploadID != "" {
		row.UploadID = bigquery.NullString{StringVal: uploadID, Valid: true}
	}
	return row
}

// Transaction maps a table row back to the domain type.
func (r *TransactionRow) Transaction() domain.Transaction {
	tx := domain.Transaction{
		TransactionID: r.TransactionID,
		UserID:        r.UserID,
		Date:          r.TransactionDate.In(time.UTC),
		Description:   r.Description,
		IsIncome:      r.IsIncome,
		Source:        domain.Source(r.Source),
	}
	if r.Amount != nil {
		tx.Amount = decimal.NewFromBigRat(r.Amount, 2)
	}
	if r.CategoryName.Valid {
		tx.Category = r.CategoryName.StringVal
	}
	if r.CategoryMethod.Valid {
		tx.CategoryMethod = domain.Method(r.CategoryMethod.StringVal)
	}
	if r.CategoryConfidence.Valid {
		tx.CategoryConfidence = r.CategoryConfidence.Float64
	}
	return tx
}

// Budget maps a budget row to the domain type.
func (r *BudgetRow) Budget() domain.Budget {
	b := domain.Budget{
		UserID:   r.UserID,
		Category: r.Category,
		Month:    r.Month.In(time.UTC),
	}
	if r.MonthlyLimit != nil {
		b.MonthlyLimit = decimal.NewFromBigRat(r.MonthlyLimit, 2)
	}
	return b
}

// RowFromBudget maps a domain budget to its table shape.
func RowFromBudget(b domain.Budget) *BudgetRow {
	return &BudgetRow{
		UserID:       b.UserID,
		Category:     b.Category,
		Month:        civil.DateOf(b.Month),
		MonthlyLimit: b.MonthlyLimit.Rat(),
		CreatedTS:    time.Now(),
	}
}

// RowFromAlert maps a domain alert to its table shape.
func RowFromAlert(a domain.Alert) *AlertRow {
	return &AlertRow{
		AlertID:     a.AlertID,
		UserID:      a.UserID,
		Category:    a.Category,
		Trigger:     string(a.Trigger),
		Channel:     string(a.Channel),
		Priority:    string(a.Priority),
		Message:     a.Message,
		TriggeredAt: a.TriggeredAt,
	}
}

// Settings maps a settings row to the domain type.
func (r *UserSettingsRow) Settings() domain.AlertSettings {
	s := domain.AlertSettings{
		UserID:       r.UserID,
		BudgetPct:    r.BudgetPct,
		SMSEnabled:   r.SMSEnabled,
		EmailEnabled: r.EmailEnabled,
		Phone:        r.Phone,
		Email:        r.Email,
	}
	if r.OverageThreshold != nil {
		s.OverageThreshold = decimal.NewFromBigRat(r.OverageThreshold, 2)
	}
	return s
}
