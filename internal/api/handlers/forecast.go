package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/finpulse/internal/api/middleware"
	"github.com/avolkov/finpulse/internal/forecast"
)

const historyDays = 180

// ForecastHandler handles spending forecast endpoints.
type ForecastHandler struct {
	store Store
	log   zerolog.Logger
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(store Store, log zerolog.Logger) *ForecastHandler {
	return &ForecastHandler{
		store: store,
		log:   log,
	}
}

// Forecast handles POST /api/forecast. It fits a model on the user's recent
// spending history and returns daily predictions with confidence bounds.
func (h *ForecastHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		Category string `json:"category"`
		Months   int    `json:"months"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Months <= 0 {
		req.Months = 1
	}
	if req.Months > 12 {
		middleware.WriteError(w, http.StatusBadRequest, "months must be between 1 and 12")
		return
	}

	now := time.Now().UTC()
	txs, err := h.store.TransactionsByDateRange(ctx, userID, now.AddDate(0, 0, -historyDays), now)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load forecast history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load spending history")
		return
	}

	fc, err := forecast.Forecast(txs, req.Category, req.Months)
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientHistory) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "Not enough spending history to forecast")
			return
		}
		h.log.Error().Err(err).Msg("Forecast failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Forecast failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"category":        fc.Category,
		"months":          req.Months,
		"points":          fc.Points,
		"fitted":          fc.Fitted,
		"projected_month": forecast.ProjectedMonthTotal(fc),
	})
}
