package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avolkov/finpulse/internal/api/middleware"
	"github.com/avolkov/finpulse/internal/domain"
	infrabq "github.com/avolkov/finpulse/internal/infra/bigquery"
	"github.com/avolkov/finpulse/internal/ingest"
	"github.com/avolkov/finpulse/internal/pipeline"
)

// TransactionsHandler handles transaction listing and categorization endpoints.
type TransactionsHandler struct {
	store       Store
	categorizer Categorizer
	log         zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store Store, categorizer Categorizer, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store:       store,
		categorizer: categorizer,
		log:         log,
	}
}

// List handles GET /api/transactions. Supports ?month=YYYY-MM or
// ?start=YYYY-MM-DD&end=YYYY-MM-DD.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)
	query := r.URL.Query()

	var (
		txs []domain.Transaction
		err error
	)

	if startStr := query.Get("start"); startStr != "" {
		start, perr := time.Parse("2006-01-02", startStr)
		if perr != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid start date, expected YYYY-MM-DD")
			return
		}
		end, perr := time.Parse("2006-01-02", query.Get("end"))
		if perr != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid end date, expected YYYY-MM-DD")
			return
		}
		txs, err = h.store.TransactionsByDateRange(ctx, userID, start, end)
	} else {
		month, perr := parseMonth(query.Get("month"))
		if perr != nil {
			middleware.WriteError(w, http.StatusBadRequest, perr.Error())
			return
		}
		txs, err = h.store.TransactionsByMonth(ctx, userID, month)
	}

	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Ingest handles POST /api/ingest. The request body is a raw CSV statement
// that is parsed, categorized and stored synchronously; the response carries
// the per-row accept/reject report.
func (h *TransactionsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Request body is empty")
		return
	}
	if len(data) > maxUploadBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Statement file exceeds 10 MiB")
		return
	}

	result, err := ingest.ParseCSV(userID, bytes.NewReader(data))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	uploadID := uuid.New().String()
	if err := h.store.RecordUpload(ctx, &infrabq.UploadRow{
		UploadID:     uploadID,
		UserID:       userID,
		Filename:     "inline.csv",
		IngestStatus: pipeline.StatusPending,
		UploadTS:     time.Now(),
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to record upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record upload")
		return
	}

	txs, avg, err := h.categorizer.CategorizeBatch(ctx, result.Accepted)
	if err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("Categorization failed during ingest")
		middleware.WriteError(w, http.StatusInternalServerError, "Categorization failed")
		return
	}

	if err := h.store.SaveTransactions(ctx, txs, uploadID); err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to save ingested transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transactions")
		return
	}
	if err := h.store.FinishUpload(ctx, uploadID, pipeline.StatusSuccess, result.AcceptedCount(), result.RejectedCount(), ""); err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to record upload outcome")
	}

	h.log.Info().
		Str("upload_id", uploadID).
		Int("accepted", result.AcceptedCount()).
		Int("rejected", result.RejectedCount()).
		Float64("avg_confidence", avg).
		Msg("Statement ingested synchronously")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"upload_id":      uploadID,
		"accepted":       result.AcceptedCount(),
		"rejected":       result.RejectedCount(),
		"rejects":        result.Rejected,
		"avg_confidence": avg,
		"transactions":   txs,
	})
}

// Categorize handles POST /api/categorize. It re-runs categorization over a
// month of stored transactions and writes the results back.
func (h *TransactionsHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		Month string `json:"month"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	month, err := parseMonth(req.Month)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.store.TransactionsByMonth(ctx, userID, month)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load transactions for categorization")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	if len(txs) == 0 {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"categorized":    0,
			"avg_confidence": 0,
		})
		return
	}

	categorized, avg, err := h.categorizer.CategorizeBatch(ctx, txs)
	if err != nil {
		h.log.Error().Err(err).Msg("Categorization failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Categorization failed")
		return
	}

	if err := h.store.UpdateCategories(ctx, userID, categorized); err != nil {
		h.log.Error().Err(err).Msg("Failed to store categorization results")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store categorization results")
		return
	}

	h.log.Info().
		Int("count", len(categorized)).
		Float64("avg_confidence", avg).
		Msg("Transactions recategorized")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categorized":    len(categorized),
		"avg_confidence": avg,
		"transactions":   categorized,
	})
}
