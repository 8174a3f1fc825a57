package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avolkov/finpulse/internal/api/middleware"
	"github.com/avolkov/finpulse/internal/gcs"
	infrabq "github.com/avolkov/finpulse/internal/infra/bigquery"
	"github.com/avolkov/finpulse/internal/jobs"
	"github.com/avolkov/finpulse/internal/pipeline"
)

const maxUploadBytes = 10 << 20 // 10 MiB

// UploadsHandler handles statement upload and ingestion endpoints.
type UploadsHandler struct {
	store     Store
	storage   gcs.StorageService
	publisher jobs.Publisher
	bucket    string
	log       zerolog.Logger
}

// NewUploadsHandler creates a new uploads handler.
func NewUploadsHandler(store Store, storage gcs.StorageService, publisher jobs.Publisher, bucket string, log zerolog.Logger) *UploadsHandler {
	return &UploadsHandler{
		store:     store,
		storage:   storage,
		publisher: publisher,
		bucket:    bucket,
		log:       log,
	}
}

// UploadCSV handles POST /api/upload/csv. The request body is the raw CSV
// file. The file is stored in GCS, an upload record is created, and an
// ingestion job is enqueued.
func (h *UploadsHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
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

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "statement.csv"
	}
	if idx := strings.Index(filename, "?"); idx > 0 {
		filename = filename[:idx]
	}
	filename = filepath.Base(filename)

	uploadID := uuid.New().String()
	objectName := fmt.Sprintf("uploads/%s/%s/%s-%s", userID, time.Now().Format("2006/01/02"), uploadID, filename)

	gcsURI, err := h.storage.UploadBytes(ctx, h.bucket, objectName, data)
	if err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to store statement in GCS")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store statement file")
		return
	}

	row := &infrabq.UploadRow{
		UploadID:     uploadID,
		UserID:       userID,
		Filename:     filename,
		GCSURI:       gcsURI,
		IngestStatus: pipeline.StatusPending,
		UploadTS:     time.Now(),
	}
	if err := h.store.RecordUpload(ctx, row); err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to record upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to record upload")
		return
	}

	job := &jobs.IngestStatementJob{
		UserID:   userID,
		UploadID: uploadID,
		GCSURI:   gcsURI,
	}
	if err := h.publisher.PublishIngestStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to enqueue ingestion job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	h.log.Info().
		Str("upload_id", uploadID).
		Str("job_id", job.JobID).
		Str("gcs_uri", gcsURI).
		Int("bytes", len(data)).
		Msg("Statement uploaded and ingestion enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"upload_id": uploadID,
		"job_id":    job.JobID,
		"gcs_uri":   gcsURI,
		"status":    string(job.Status),
	})
}

// EnqueueIngest handles POST /api/uploads. It re-enqueues ingestion of a
// statement file already stored in GCS.
func (h *UploadsHandler) EnqueueIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req struct {
		UploadID string `json:"upload_id"`
		GCSURI   string `json:"gcs_uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UploadID == "" || req.GCSURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "upload_id and gcs_uri are required")
		return
	}

	job := &jobs.IngestStatementJob{
		UserID:   userID,
		UploadID: req.UploadID,
		GCSURI:   req.GCSURI,
	}
	if err := h.publisher.PublishIngestStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("upload_id", req.UploadID).Msg("Failed to enqueue ingestion job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"upload_id": req.UploadID,
		"job_id":    job.JobID,
		"status":    string(job.Status),
	})
}

// ListUploads handles GET /api/uploads.
func (h *UploadsHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	uploads, err := h.store.Uploads(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list uploads")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list uploads")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"uploads": uploads,
		"count":   len(uploads),
	})
}
