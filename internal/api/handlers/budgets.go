package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/api/middleware"
	"github.com/avolkov/finpulse/internal/budget"
	"github.com/avolkov/finpulse/internal/domain"
)

// BudgetsHandler handles budget management and evaluation endpoints.
type BudgetsHandler struct {
	store        Store
	thresholdPct float64
	log          zerolog.Logger
}

// NewBudgetsHandler creates a new budgets handler. thresholdPct is the
// percentage of a limit at which a category counts as over budget.
func NewBudgetsHandler(store Store, thresholdPct float64, log zerolog.Logger) *BudgetsHandler {
	if thresholdPct <= 0 {
		thresholdPct = budget.DefaultAlertThresholdPct
	}
	return &BudgetsHandler{
		store:        store,
		thresholdPct: thresholdPct,
		log:          log,
	}
}

// List handles GET /api/budgets.
func (h *BudgetsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	month, err := parseMonth(r.URL.Query().Get("month"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	budgets, err := h.store.BudgetsByMonth(ctx, userID, month)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list budgets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list budgets")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"budgets": budgets,
		"count":   len(budgets),
	})
}

// Upsert handles POST /api/budgets.
func (h *BudgetsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		Category     string `json:"category"`
		Month        string `json:"month"`
		MonthlyLimit string `json:"monthly_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Category == "" {
		middleware.WriteError(w, http.StatusBadRequest, "category is required")
		return
	}

	month, err := parseMonth(req.Month)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := decimal.NewFromString(req.MonthlyLimit)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid monthly_limit")
		return
	}
	if !limit.IsPositive() {
		middleware.WriteError(w, http.StatusBadRequest, "monthly_limit must be positive")
		return
	}

	b := domain.Budget{
		UserID:       userID,
		Category:     req.Category,
		Month:        month,
		MonthlyLimit: limit,
	}
	if err := h.store.SaveBudget(ctx, b); err != nil {
		h.log.Error().Err(err).Msg("Failed to save budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save budget")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, b)
}

// Status handles GET /api/budgets/status. It evaluates the month's spending
// against configured limits.
func (h *BudgetsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	month, err := parseMonth(r.URL.Query().Get("month"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	statuses, err := h.evaluate(r.Context(), userID, month)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to evaluate budgets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to evaluate budgets")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"month":    month.Format("2006-01"),
		"statuses": statuses,
	})
}

// Dashboard handles GET /api/dashboard. It returns the month's spending
// summary, budget standings, and recent alerts in one response.
func (h *BudgetsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	month, err := parseMonth(r.URL.Query().Get("month"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.store.TransactionsByMonth(ctx, userID, month)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load transactions for dashboard")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	budgets, err := h.store.BudgetsByMonth(ctx, userID, month)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load budgets for dashboard")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	alerts, err := h.store.RecentAlerts(ctx, userID, 10)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load alerts for dashboard")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	income := decimal.Zero
	spending := decimal.Zero
	for _, tx := range txs {
		if tx.IsIncome {
			income = income.Add(tx.Amount.Abs())
		} else {
			spending = spending.Add(tx.Amount.Abs())
		}
	}

	statuses := budget.Evaluate(txs, budgets, h.userThresholdPct(ctx, userID))

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"month":             month.Format("2006-01"),
		"total_income":      income,
		"total_spending":    spending,
		"transaction_count": len(txs),
		"budget_statuses":   statuses,
		"recent_alerts":     alerts,
	})
}

func (h *BudgetsHandler) evaluate(ctx context.Context, userID string, month time.Time) ([]domain.BudgetStatus, error) {
	txs, err := h.store.TransactionsByMonth(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	budgets, err := h.store.BudgetsByMonth(ctx, userID, month)
	if err != nil {
		return nil, err
	}

	return budget.Evaluate(txs, budgets, h.userThresholdPct(ctx, userID)), nil
}

// userThresholdPct returns the user's configured over-budget percentage,
// falling back to the server default when settings are unavailable.
func (h *BudgetsHandler) userThresholdPct(ctx context.Context, userID string) float64 {
	settings, err := h.store.Settings(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load alert settings, using default threshold")
		return h.thresholdPct
	}
	if settings.BudgetPct <= 0 {
		return h.thresholdPct
	}
	return settings.BudgetPct
}
