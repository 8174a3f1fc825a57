package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies where a transaction entered the system.
type Source string

const (
	SourceCSV    Source = "csv"
	SourceManual Source = "manual"
)

// Method records which tier of the classifier produced a category.
type Method string

const (
	MethodEmbedding Method = "embedding"
	MethodLLM       Method = "llm"
	MethodDefault   Method = "default"
)

// Transaction is one normalized statement row. Amount is signed: money out
// is negative, money in is positive.
type Transaction struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`

	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	IsIncome    bool            `json:"is_income"`
	Source      Source          `json:"source"`

	Category           string  `json:"category,omitempty"`
	CategoryMethod     Method  `json:"category_method,omitempty"`
	CategoryConfidence float64 `json:"category_confidence"`
}

// SynthesizeDescription builds a description for rows whose source file had
// no description column. Never returns an empty string.
func SynthesizeDescription(date time.Time, amount decimal.Decimal) string {
	return fmt.Sprintf("Transaction %s %s", date.Format("2006-01-02"), amount.StringFixed(2))
}

// ClassificationResult is the outcome of categorizing one transaction.
type ClassificationResult struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// CategoryEmbedding is the vector owned by one category of the vocabulary.
// It is recomputed only when the category's defining text changes.
type CategoryEmbedding struct {
	Category string
	Vector   []float64
}
