package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/avolkov/finpulse/internal/alert"
	"github.com/avolkov/finpulse/internal/api/middleware"
	"github.com/avolkov/finpulse/internal/budget"
	"github.com/avolkov/finpulse/internal/domain"
	"github.com/avolkov/finpulse/internal/forecast"
)

// AlertsHandler handles alert evaluation and user settings endpoints.
type AlertsHandler struct {
	store   Store
	checker AlertChecker
	log     zerolog.Logger
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(store Store, checker AlertChecker, log zerolog.Logger) *AlertsHandler {
	return &AlertsHandler{
		store:   store,
		checker: checker,
		log:     log,
	}
}

// Check handles POST /api/alerts/check. It evaluates the current month's
// budgets and the spending projection, then dispatches any triggered alerts.
func (h *AlertsHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	month, _ := parseMonth("")
	txs, err := h.store.TransactionsByMonth(ctx, userID, month)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load transactions for alert check")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to evaluate alerts")
		return
	}

	budgets, err := h.store.BudgetsByMonth(ctx, userID, month)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load budgets for alert check")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to evaluate alerts")
		return
	}

	settings, err := h.store.Settings(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load alert settings")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to evaluate alerts")
		return
	}

	statuses := budget.Evaluate(txs, budgets, settings.BudgetPct)

	var fc *domain.Forecast
	now := time.Now().UTC()
	history, err := h.store.TransactionsByDateRange(ctx, userID, now.AddDate(0, 0, -historyDays), now)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load forecast history for alert check")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to evaluate alerts")
		return
	}
	if f, ferr := forecast.Forecast(history, "", 1); ferr == nil {
		fc = &f
	} else if !errors.Is(ferr, forecast.ErrInsufficientHistory) {
		h.log.Error().Err(ferr).Msg("Forecast failed during alert check")
	}

	alerts, err := h.checker.Check(ctx, alert.Input{
		UserID:   userID,
		Statuses: statuses,
		Budgets:  budgets,
		Forecast: fc,
		Settings: settings,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Alert check failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Alert check failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// List handles GET /api/alerts.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	alerts, err := h.store.RecentAlerts(ctx, userID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alerts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetSettings handles GET /api/users/me.
func (h *AlertsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	settings, err := h.store.Settings(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load settings")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/users/me.
func (h *AlertsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		BudgetPct        float64 `json:"budget_pct"`
		OverageThreshold string  `json:"overage_threshold"`
		SMSEnabled       bool    `json:"sms_enabled"`
		EmailEnabled     bool    `json:"email_enabled"`
		Phone            string  `json:"phone"`
		Email            string  `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BudgetPct <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "budget_pct must be positive")
		return
	}

	overage, err := decimal.NewFromString(req.OverageThreshold)
	if err != nil || overage.IsNegative() {
		middleware.WriteError(w, http.StatusBadRequest, "invalid overage_threshold")
		return
	}

	settings := domain.AlertSettings{
		UserID:           userID,
		BudgetPct:        req.BudgetPct,
		OverageThreshold: overage,
		SMSEnabled:       req.SMSEnabled,
		EmailEnabled:     req.EmailEnabled,
		Phone:            req.Phone,
		Email:            req.Email,
	}
	if err := h.store.SaveSettings(ctx, settings); err != nil {
		h.log.Error().Err(err).Msg("Failed to save settings")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, settings)
}
