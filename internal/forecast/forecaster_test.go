package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/domain"
)

func spendOn(day time.Time, category string, amount float64) domain.Transaction {
	return domain.Transaction{
		Date:        day,
		Category:    category,
		Amount:      decimal.NewFromFloat(-amount),
		Description: "test spend",
	}
}

// history generates days consecutive days of spend starting 2024-03-01.
func history(days int, base float64) []domain.Transaction {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	txs := make([]domain.Transaction, 0, days)
	for i := 0; i < days; i++ {
		// Mild trend plus a weekend bump to give the model something to fit.
		amount := base + float64(i)*2
		if d := start.AddDate(0, 0, i); d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			amount += base / 2
		}
		txs = append(txs, spendOn(start.AddDate(0, 0, i), "Groceries", amount))
	}
	return txs
}

func TestForecast_IntervalContainsEstimate(t *testing.T) {
	f, err := Forecast(history(60, 100), "", 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}

	if len(f.Points) != 30 {
		t.Fatalf("got %d points for a 1-month horizon, want 30", len(f.Points))
	}
	for i, p := range f.Points {
		if p.ConfidenceLower.Cmp(p.PredictedAmount) > 0 {
			t.Errorf("point %d: lower %v > predicted %v", i, p.ConfidenceLower, p.PredictedAmount)
		}
		if p.PredictedAmount.Cmp(p.ConfidenceUpper) > 0 {
			t.Errorf("point %d: predicted %v > upper %v", i, p.PredictedAmount, p.ConfidenceUpper)
		}
		if p.ConfidenceLower.Cmp(p.ConfidenceUpper) == 0 {
			t.Errorf("point %d: zero-width interval", i)
		}
	}
}

func TestForecast_DatesStrictlyIncreasing(t *testing.T) {
	f, err := Forecast(history(30, 50), "", 2)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	if len(f.Points) != 60 {
		t.Fatalf("got %d points for a 2-month horizon, want 60", len(f.Points))
	}
	for i := 1; i < len(f.Points); i++ {
		if !f.Points[i].Date.After(f.Points[i-1].Date) {
			t.Fatalf("dates not strictly increasing at %d: %v then %v",
				i, f.Points[i-1].Date, f.Points[i].Date)
		}
	}
	// Future points start after the historical range.
	last := f.Fitted[len(f.Fitted)-1].Date
	if !f.Points[0].Date.After(last) {
		t.Errorf("first forecast date %v not after last fitted date %v", f.Points[0].Date, last)
	}
}

func TestForecast_FittedCoversHistory(t *testing.T) {
	f, err := Forecast(history(45, 80), "", 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	if len(f.Fitted) != 45 {
		t.Errorf("got %d fitted points for 45 days of history, want 45", len(f.Fitted))
	}
}

func TestForecast_InsufficientHistory(t *testing.T) {
	tests := []struct {
		name string
		txs  []domain.Transaction
	}{
		{"no transactions", nil},
		{"single day", history(1, 100)},
		{"under two weeks", history(10, 100)},
		{
			"income only",
			[]domain.Transaction{{
				Date:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				Amount:   decimal.NewFromInt(50000),
				IsIncome: true,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Forecast(tt.txs, "", 1)
			if !errors.Is(err, ErrInsufficientHistory) {
				t.Errorf("error = %v, want ErrInsufficientHistory", err)
			}
		})
	}
}

func TestForecast_CategoryFilter(t *testing.T) {
	txs := append(history(30, 100), spendOn(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "Dining", 9999))

	_, err := Forecast(txs, "Groceries", 1)
	if err != nil {
		t.Fatalf("Forecast(Groceries) error: %v", err)
	}

	// Dining has a single active day, not enough on its own.
	_, err = Forecast(txs, "Dining", 1)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("Forecast(Dining) error = %v, want ErrInsufficientHistory", err)
	}
}

func TestForecast_StatelessAndIdempotent(t *testing.T) {
	txs := history(40, 75)

	first, err := Forecast(txs, "", 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	second, err := Forecast(txs, "", 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}

	for i := range first.Points {
		if first.Points[i].PredictedAmount.Cmp(second.Points[i].PredictedAmount) != 0 {
			t.Fatalf("point %d differs between identical calls", i)
		}
	}
}

func TestForecast_ConstantSeriesKeepsNonZeroInterval(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var txs []domain.Transaction
	for i := 0; i < 21; i++ {
		txs = append(txs, spendOn(start.AddDate(0, 0, i), "Utilities", 100))
	}

	f, err := Forecast(txs, "", 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	p := f.Points[0]
	if p.ConfidenceLower.Cmp(p.ConfidenceUpper) >= 0 {
		t.Errorf("constant series produced a degenerate interval: [%v, %v]",
			p.ConfidenceLower, p.ConfidenceUpper)
	}
}

func TestProjectedMonthTotal(t *testing.T) {
	f := domain.Forecast{}
	for i := 0; i < 45; i++ {
		f.Points = append(f.Points, domain.ForecastPoint{
			PredictedAmount: decimal.NewFromInt(10),
		})
	}
	total := ProjectedMonthTotal(f)
	if total.Cmp(decimal.NewFromInt(300)) != 0 {
		t.Errorf("ProjectedMonthTotal = %v, want 300 (first 30 days only)", total)
	}
}
