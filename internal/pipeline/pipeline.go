// Package pipeline orchestrates statement ingestion: fetch the uploaded file,
// parse it into transactions, categorize them, and persist the results.
package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/avolkov/finpulse/internal/categorize"
	"github.com/avolkov/finpulse/internal/domain"
	"github.com/avolkov/finpulse/internal/ingest"
)

// Summary reports the outcome of processing one uploaded statement.
type Summary struct {
	UploadID      string  `json:"upload_id"`
	Accepted      int     `json:"accepted"`
	Rejected      int     `json:"rejected"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Processor runs the ingestion pipeline for uploaded statements.
type Processor struct {
	store       Store
	fetcher     Fetcher
	categorizer Categorizer
	embedder    categorize.Embedder
	vocab       *domain.Vocabulary
	log         zerolog.Logger
}

// NewProcessor creates a Processor with its dependencies injected.
func NewProcessor(store Store, fetcher Fetcher, categorizer Categorizer, embedder categorize.Embedder, vocab *domain.Vocabulary, log zerolog.Logger) *Processor {
	return &Processor{
		store:       store,
		fetcher:     fetcher,
		categorizer: categorizer,
		embedder:    embedder,
		vocab:       vocab,
		log:         log,
	}
}

// ProcessStatement ingests a single uploaded bank statement. A parse failure
// marks the upload FAILED and is returned to the caller so the job layer can
// decide on retries. Individual bad rows do not fail the batch.
func (p *Processor) ProcessStatement(ctx context.Context, userID, uploadID, gcsURI string) (*Summary, error) {
	data, err := p.fetcher.Fetch(ctx, gcsURI)
	if err != nil {
		p.fail(ctx, uploadID, err)
		return nil, fmt.Errorf("ProcessStatement: fetching %s: %w", gcsURI, err)
	}

	result, err := ingest.ParseCSV(userID, bytes.NewReader(data))
	if err != nil {
		p.fail(ctx, uploadID, err)
		return nil, fmt.Errorf("ProcessStatement: parsing statement: %w", err)
	}

	p.log.Info().
		Str("upload_id", uploadID).
		Int("accepted", result.AcceptedCount()).
		Int("rejected", result.RejectedCount()).
		Msg("statement parsed")

	txs, avg, err := p.CategorizeBatch(ctx, result.Accepted)
	if err != nil {
		p.fail(ctx, uploadID, err)
		return nil, fmt.Errorf("ProcessStatement: categorizing: %w", err)
	}

	if err := p.store.SaveTransactions(ctx, txs, uploadID); err != nil {
		p.fail(ctx, uploadID, err)
		return nil, fmt.Errorf("ProcessStatement: saving transactions: %w", err)
	}

	if err := p.store.FinishUpload(ctx, uploadID, StatusSuccess, result.AcceptedCount(), result.RejectedCount(), ""); err != nil {
		return nil, fmt.Errorf("ProcessStatement: recording upload outcome: %w", err)
	}

	return &Summary{
		UploadID:      uploadID,
		Accepted:      result.AcceptedCount(),
		Rejected:      result.RejectedCount(),
		AvgConfidence: avg,
	}, nil
}

// CategorizeBatch assigns categories to the given transactions and returns them
// with classification fields filled in, plus the batch average confidence.
func (p *Processor) CategorizeBatch(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, float64, error) {
	if len(txs) == 0 {
		return txs, 0, nil
	}

	// An embedding-service outage must not fail the batch: with no vectors
	// the resolver still runs its LLM and default tiers.
	embeds, err := p.EnsureCategoryEmbeddings(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("category embeddings unavailable, relying on fallback classification")
	}

	batch := p.categorizer.Categorize(ctx, txs, embeds)

	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	for i := range out {
		if i >= len(batch.Results) {
			break
		}
		out[i].Category = batch.Results[i].Category
		out[i].CategoryMethod = batch.Results[i].Method
		out[i].CategoryConfidence = batch.Results[i].Confidence
	}

	return out, batch.AvgConfidence, nil
}

// EnsureCategoryEmbeddings returns the stored vocabulary vectors, embedding
// and persisting any categories that do not have one yet. Bootstrap failures
// are returned alongside whatever vectors are already available so callers
// can keep classifying on the fallback tiers; missing vectors are retried on
// the next batch.
func (p *Processor) EnsureCategoryEmbeddings(ctx context.Context) ([]domain.CategoryEmbedding, error) {
	stored, err := p.store.CategoryEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("EnsureCategoryEmbeddings: listing stored vectors: %w", err)
	}

	have := make(map[string]bool, len(stored))
	for _, e := range stored {
		have[e.Category] = true
	}

	for _, name := range p.vocab.Names() {
		if have[name] {
			continue
		}
		vec, err := p.embedder.Embed(ctx, name)
		if err != nil {
			// The provider is down; stop hammering it for the rest of
			// the vocabulary.
			return stored, fmt.Errorf("EnsureCategoryEmbeddings: embedding %q: %w", name, err)
		}
		e := domain.CategoryEmbedding{Category: name, Vector: vec}
		if err := p.store.SaveCategoryEmbedding(ctx, e); err != nil {
			return stored, fmt.Errorf("EnsureCategoryEmbeddings: saving vector for %q: %w", name, err)
		}
		stored = append(stored, e)
	}

	return stored, nil
}

func (p *Processor) fail(ctx context.Context, uploadID string, cause error) {
	if err := p.store.FinishUpload(ctx, uploadID, StatusFailed, 0, 0, cause.Error()); err != nil {
		p.log.Error().Err(err).Str("upload_id", uploadID).Msg("failed to record upload failure")
	}
}
