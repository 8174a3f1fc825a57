package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/finpulse/internal/categorize"
	"github.com/avolkov/finpulse/internal/config"
	"github.com/avolkov/finpulse/internal/domain"
	"github.com/avolkov/finpulse/internal/gcs"
	infraBQ "github.com/avolkov/finpulse/internal/infra/bigquery"
	"github.com/avolkov/finpulse/internal/jobs"
	"github.com/avolkov/finpulse/internal/jobs/inmemory"
	jobsqlite "github.com/avolkov/finpulse/internal/jobs/sqlite"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// The standalone worker keeps job state in SQLite so it survives
	// restarts, unlike the API's embedded in-memory worker.
	jobStore, err := jobsqlite.Open(cfg.Worker.JobDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job store")
	}
	defer jobStore.Close()

	jobQueue := inmemory.NewQueue(cfg.Worker.QueueSize, cfg.Worker.WorkerCount, jobStore)

	handler := func(ctx context.Context, job jobs.Job) error {
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

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int("workers", cfg.Worker.WorkerCount).Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
