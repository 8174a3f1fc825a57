package budget

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/domain"
)

// DefaultAlertThresholdPct is the percentage of a category limit past which
// the category counts as over budget, unless the user configured otherwise.
const DefaultAlertThresholdPct = 110.0

// Evaluate aggregates one month of categorized transactions against the
// user's budget rows for that month. Income transactions are ignored; spend
// is the sum of absolute amounts. A category with spend but no budget row is
// reported with a nil limit and can never be over budget. A budget row with
// zero spend reports PctUsed 0.
//
// OverBudget uses a strictly-greater comparison: spend landing exactly on
// the threshold does not trigger.
func Evaluate(txs []domain.Transaction, budgets []domain.Budget, thresholdPct float64) []domain.BudgetStatus {
	if thresholdPct <= 0 {
		thresholdPct = DefaultAlertThresholdPct
	}

	spent := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.IsIncome {
			continue
		}
		cat := tx.Category
		if cat == "" {
			cat = domain.FallbackCategory
		}
		spent[cat] = spent[cat].Add(tx.Amount.Abs())
	}

	limits := make(map[string]decimal.Decimal, len(budgets))
	for _, b := range budgets {
		limits[b.Category] = b.MonthlyLimit
	}

	categories := make(map[string]struct{}, len(spent)+len(limits))
	for cat := range spent {
		categories[cat] = struct{}{}
	}
	for cat := range limits {
		categories[cat] = struct{}{}
	}

	statuses := make([]domain.BudgetStatus, 0, len(categories))
	for cat := range categories {
		status := domain.BudgetStatus{
			Category: cat,
			Spent:    spent[cat],
		}

		if limit, ok := limits[cat]; ok && limit.IsPositive() {
			l := limit
			status.Limit = &l
			status.PctUsed = pctUsed(status.Spent, limit)
			status.OverBudget = status.PctUsed > thresholdPct
		}

		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Category < statuses[j].Category
	})
	return statuses
}

// TotalLimit sums the configured limits across budget rows.
func TotalLimit(budgets []domain.Budget) decimal.Decimal {
	total := decimal.Zero
	for _, b := range budgets {
		total = total.Add(b.MonthlyLimit)
	}
	return total
}

func pctUsed(spent, limit decimal.Decimal) float64 {
	pct, _ := spent.Div(limit).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
