package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/finpulse/internal/alert"
	"github.com/avolkov/finpulse/internal/api/handlers"
	"github.com/avolkov/finpulse/internal/api/middleware"
	"github.com/avolkov/finpulse/internal/categorize"
	"github.com/avolkov/finpulse/internal/config"
	"github.com/avolkov/finpulse/internal/domain"
	"github.com/avolkov/finpulse/internal/gcs"
	infraBQ "github.com/avolkov/finpulse/internal/infra/bigquery"
	"github.com/avolkov/finpulse/internal/jobs"
	"github.com/avolkov/finpulse/internal/jobs/inmemory"
	"github.com/avolkov/finpulse/internal/logger"
	"github.com/avolkov/finpulse/internal/pipeline"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	infraBQ.Configure(cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)

	ctx := context.Background()

	repo, err := infraBQ.NewRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
	}
	defer repo.Close()

	embedder, err := categorize.NewGeminiEmbedder(ctx, cfg.Models.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create embedder")
	}
	classifier, err := categorize.NewGeminiClassifier(ctx, cfg.Models.ClassifierModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create classifier")
	}

	vocab := domain.NewVocabulary()

	opts := categorize.DefaultOptions()
	opts.SimilarityThreshold = cfg.Pipeline.SimilarityThreshold
	opts.MaxConcurrentEmbeds = cfg.Pipeline.MaxConcurrentEmbeds
	opts.CallTimeout = time.Duration(cfg.Pipeline.CallTimeoutSecs) * time.Second
	resolver := categorize.NewResolver(embedder, classifier, vocab, opts, log)

	storage := gcs.NewStorageService()
	processor := pipeline.NewProcessor(repo, storage, resolver, embedder, vocab, log)

	dispatcher := alert.NewDispatcher(repo, []alert.Sender{
		alert.NewLogSender(domain.ChannelEmail, log),
		alert.NewLogSender(domain.ChannelSMS, log),
	}, log)

	// Job infrastructure with an embedded worker. Multi-instance deployments
	// run cmd/worker instead and keep this queue drained elsewhere.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Worker.QueueSize, cfg.Worker.WorkerCount, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		ingestJob, ok := job.(*jobs.IngestStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", ingestJob.JobID).
			Str("upload_id", ingestJob.UploadID).
			Str("gcs_uri", ingestJob.GCSURI).
			Msg("Processing statement ingestion job")

		summary, err := processor.ProcessStatement(ctx, ingestJob.UserID, ingestJob.UploadID, ingestJob.GCSURI)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", ingestJob.JobID).
				Str("upload_id", ingestJob.UploadID).
				Msg("Statement ingestion failed")
			return err
		}

		log.Info().
			Str("job_id", ingestJob.JobID).
			Int("accepted", summary.Accepted).
			Int("rejected", summary.Rejected).
			Float64("avg_confidence", summary.AvgConfidence).
			Msg("Statement ingestion completed")

		return nil
	}

	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start ingestion workers")
	}
	log.Info().Int("workers", cfg.Worker.WorkerCount).Msg("Ingestion workers started")

	uploadsHandler := handlers.NewUploadsHandler(repo, storage, jobQueue, cfg.Storage.Bucket, log)
	transactionsHandler := handlers.NewTransactionsHandler(repo, processor, log)
	budgetsHandler := handlers.NewBudgetsHandler(repo, cfg.Pipeline.BudgetAlertPct, log)
	forecastHandler := handlers.NewForecastHandler(repo, log)
	alertsHandler := handlers.NewAlertsHandler(repo, dispatcher, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/upload/csv", methodHandler(http.MethodPost, uploadsHandler.UploadCSV))
	mux.HandleFunc("/api/uploads", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			uploadsHandler.ListUploads(w, r)
		case http.MethodPost:
			uploadsHandler.EnqueueIngest(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/ingest", methodHandler(http.MethodPost, transactionsHandler.Ingest))
	mux.HandleFunc("/api/transactions", methodHandler(http.MethodGet, transactionsHandler.List))
	mux.HandleFunc("/api/categorize", methodHandler(http.MethodPost, transactionsHandler.Categorize))

	mux.HandleFunc("/api/budgets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			budgetsHandler.List(w, r)
		case http.MethodPost:
			budgetsHandler.Upsert(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/budgets/status", methodHandler(http.MethodGet, budgetsHandler.Status))
	mux.HandleFunc("/api/dashboard", methodHandler(http.MethodGet, budgetsHandler.Dashboard))

	mux.HandleFunc("/api/forecast", methodHandler(http.MethodPost, forecastHandler.Forecast))

	mux.HandleFunc("/api/alerts", methodHandler(http.MethodGet, alertsHandler.List))
	mux.HandleFunc("/api/alerts/check", methodHandler(http.MethodPost, alertsHandler.Check))

	mux.HandleFunc("/api/users/me", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			alertsHandler.GetSettings(w, r)
		case http.MethodPut:
			alertsHandler.UpdateSettings(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

// methodHandler restricts a route to a single HTTP method.
func methodHandler(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}
