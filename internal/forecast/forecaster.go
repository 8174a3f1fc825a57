package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/domain"
)

// ErrInsufficientHistory is returned when the series is too short or too
// sparse to fit a meaningful model. Callers report it, they do not retry.
var ErrInsufficientHistory = errors.New("forecast: insufficient history")

const (
	// minObservations is the minimum number of daily points (after gap
	// filling) required for a fit.
	minObservations = 14

	// minActiveWeeks is the minimum number of distinct ISO weeks with
	// non-zero activity.
	minActiveWeeks = 2

	// z80 is the normal quantile for a centered 80% interval.
	z80 = 1.2816

	// daysPerMonth converts the caller's horizon to daily steps.
	daysPerMonth = 30
)

// Forecast fits an additive trend + weekday seasonality model on the user's
// historical spend and projects monthsAhead months of daily points. The fit
// is a pure function of the input transactions: no state survives between
// calls, so concurrent requests are independent.
//
// category filters the history to one category; empty means aggregate spend.
func Forecast(txs []domain.Transaction, category string, monthsAhead int) (domain.Forecast, error) {
	if monthsAhead < 1 {
		return domain.Forecast{}, fmt.Errorf("forecast: monthsAhead must be >= 1, got %d", monthsAhead)
	}

	series, start, err := buildDailySeries(txs, category)
	if err != nil {
		return domain.Forecast{}, err
	}

	model := fit(series)
	horizon := monthsAhead * daysPerMonth

	out := domain.Forecast{
		Category: category,
		Fitted:   make([]domain.ForecastPoint, len(series)),
		Points:   make([]domain.ForecastPoint, horizon),
	}
	for t := range series {
		out.Fitted[t] = model.point(start, t)
	}
	for i := 0; i < horizon; i++ {
		out.Points[i] = model.point(start, len(series)+i)
	}
	return out, nil
}

// buildDailySeries aggregates non-income spend (absolute amounts) per day,
// zero-filling gaps between the first and last active day. It returns the
// series and its first date.
func buildDailySeries(txs []domain.Transaction, category string) ([]float64, time.Time, error) {
	byDay := make(map[time.Time]float64)
	for _, tx := range txs {
		if tx.IsIncome {
			continue
		}
		if category != "" && tx.Category != category {
			continue
		}
		day := tx.Date.Truncate(24 * time.Hour)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		amt, _ := tx.Amount.Abs().Float64()
		byDay[day] += amt
	}

	if len(byDay) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: no spend history", ErrInsufficientHistory)
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	activeWeeks := make(map[string]struct{})
	for _, d := range days {
		year, week := d.ISOWeek()
		activeWeeks[fmt.Sprintf("%d-%02d", year, week)] = struct{}{}
	}

	start, end := days[0], days[len(days)-1]
	n := int(end.Sub(start).Hours()/24) + 1
	series := make([]float64, n)
	for d, v := range byDay {
		series[int(d.Sub(start).Hours()/24)] = v
	}

	if n < minObservations || len(activeWeeks) < minActiveWeeks {
		return nil, time.Time{}, fmt.Errorf("%w: %d days across %d active weeks (need %d days, %d weeks)",
			ErrInsufficientHistory, n, len(activeWeeks), minObservations, minActiveWeeks)
	}
	return series, start, nil
}

// model is a fitted additive decomposition: level + slope*t + weekday[t%7],
// with sigma sizing the 80% interval.
type model struct {
	intercept float64
	slope     float64
	weekday   [7]float64 // 7-day cycle aligned to the series start
	sigma     float64
}

// fit runs least squares for the trend, then averages the trend residuals
// per weekday for the seasonal component. sigma is the standard deviation of
// what is left, floored so intervals never collapse to zero width.
func fit(series []float64) model {
	n := len(series)

	// Linear trend by least squares over t = 0..n-1.
	var sumT, sumY, sumTY, sumTT float64
	for t, y := range series {
		ft := float64(t)
		sumT += ft
		sumY += y
		sumTY += ft * y
		sumTT += ft * ft
	}
	fn := float64(n)
	denom := fn*sumTT - sumT*sumT
	var slope float64
	if denom != 0 {
		slope = (fn*sumTY - sumT*sumY) / denom
	}
	intercept := (sumY - slope*sumT) / fn

	// Weekday seasonal index from trend residuals.
	var m model
	m.intercept = intercept
	m.slope = slope

	var wdSum [7]float64
	var wdCount [7]int
	for t, y := range series {
		wd := t % 7
		wdSum[wd] += y - (intercept + slope*float64(t))
		wdCount[wd]++
	}
	for wd := 0; wd < 7; wd++ {
		if wdCount[wd] > 0 {
			m.weekday[wd] = wdSum[wd] / float64(wdCount[wd])
		}
	}

	// Residual spread around the full fit.
	var sq float64
	for t, y := range series {
		r := y - m.fittedAt(t)
		sq += r * r
	}
	sigma := math.Sqrt(sq / fn)

	// Floor keeps the interval meaningful for near-constant series.
	meanLevel := math.Abs(sumY / fn)
	floor := math.Max(0.05*meanLevel, 0.01)
	m.sigma = math.Max(sigma, floor)

	return m
}

func (m model) fittedAt(t int) float64 {
	return m.intercept + m.slope*float64(t) + m.weekday[t%7]
}

// point materializes index t of the fit as a ForecastPoint. The interval is
// symmetric: point ± z80·sigma, so lower <= predicted <= upper always holds.
func (m model) point(start time.Time, t int) domain.ForecastPoint {
	predicted := m.fittedAt(t)
	margin := z80 * m.sigma
	return domain.ForecastPoint{
		Date:            start.AddDate(0, 0, t),
		PredictedAmount: decimal.NewFromFloat(predicted).Round(2),
		ConfidenceLower: decimal.NewFromFloat(predicted - margin).Round(2),
		ConfidenceUpper: decimal.NewFromFloat(predicted + margin).Round(2),
	}
}

// ProjectedMonthTotal sums the first month of predicted daily spend. The
// alert dispatcher compares this against the total configured budget.
func ProjectedMonthTotal(f domain.Forecast) decimal.Decimal {
	total := decimal.Zero
	for i, p := range f.Points {
		if i >= daysPerMonth {
			break
		}
		total = total.Add(p.PredictedAmount)
	}
	return total
}
