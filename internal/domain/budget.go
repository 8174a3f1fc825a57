package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget is a monthly spending limit for one category. Unique per
// (user, category, month).
type Budget struct {
	UserID       string          `json:"user_id"`
	Category     string          `json:"category"`
	Month        time.Time       `json:"month"` // first day of the month
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
}

// BudgetStatus is the evaluator's verdict for one category in one month.
// Limit is nil when spend exists but no budget row is configured; such a
// category can never be over budget.
type BudgetStatus struct {
	Category   string           `json:"category"`
	Spent      decimal.Decimal  `json:"spent"`
	Limit      *decimal.Decimal `json:"limit"`
	PctUsed    float64          `json:"pct_used"`
	OverBudget bool             `json:"over_budget"`
}

// AlertSettings holds a user's alert preferences. BudgetPct and
// OverageThreshold are independent knobs: the first is a percentage of a
// category limit, the second an absolute currency overage on the projected
// month total.
type AlertSettings struct {
	UserID           string          `json:"user_id"`
	BudgetPct        float64         `json:"budget_pct"`        // over-budget percentage, default 110
	OverageThreshold decimal.Decimal `json:"overage_threshold"` // absolute currency threshold, default 5000
	SMSEnabled       bool            `json:"sms_enabled"`
	EmailEnabled     bool            `json:"email_enabled"`
	Phone            string          `json:"phone"`
	Email            string          `json:"email"`
}

// DefaultAlertSettings returns the settings applied to users who never
// configured their own.
func DefaultAlertSettings(userID string) AlertSettings {
	return AlertSettings{
		UserID:           userID,
		BudgetPct:        110,
		OverageThreshold: decimal.NewFromInt(5000),
		EmailEnabled:     true,
	}
}
