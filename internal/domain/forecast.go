package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ForecastPoint is one predicted day of net spend with its confidence
// interval. Invariant: ConfidenceLower <= PredictedAmount <= ConfidenceUpper.
type ForecastPoint struct {
	Date            time.Time       `json:"date"`
	PredictedAmount decimal.Decimal `json:"predicted_amount"`
	ConfidenceLower decimal.Decimal `json:"confidence_lower"`
	ConfidenceUpper decimal.Decimal `json:"confidence_upper"`
}

// Forecast is the full output of one forecaster run: future points over the
// requested horizon plus the model's fitted values over the historical range
// for chart overlay.
type Forecast struct {
	Category string          `json:"category,omitempty"`
	Points   []ForecastPoint `json:"points"`
	Fitted   []ForecastPoint `json:"fitted"`
}
