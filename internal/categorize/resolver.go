package categorize

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/finpulse/internal/domain"
)

// Embedder turns a text into a fixed-length vector. Implementations may fail
// or time out; the resolver degrades instead of propagating.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Classifier is the language-model fallback. It must answer with exactly one
// category from allowed for each description, preserving order.
type Classifier interface {
	Classify(ctx context.Context, descriptions []string, allowed []string) ([]string, error)
}

// Options tune the two-tier dispatch.
type Options struct {
	// SimilarityThreshold is the minimum cosine similarity for accepting an
	// embedding match directly.
	SimilarityThreshold float64

	// LLMConfidence is the fixed calibrated confidence recorded for fallback
	// answers, since the model returns no numeric score.
	LLMConfidence float64

	// MaxConcurrentEmbeds bounds parallel embedding lookups to respect
	// provider rate limits.
	MaxConcurrentEmbeds int

	// CallTimeout bounds each external call.
	CallTimeout time.Duration
}

// DefaultOptions returns the tuning used in production.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.85,
		LLMConfidence:       0.6,
		MaxConcurrentEmbeds: 8,
		CallTimeout:         30 * time.Second,
	}
}

// BatchResult is one ClassificationResult per input transaction, order
// preserved, plus the average confidence across the batch.
type BatchResult struct {
	Results       []domain.ClassificationResult `json:"results"`
	AvgConfidence float64                       `json:"avg_confidence"`
}

// Resolver assigns categories with vector similarity first and a single
// batched language-model call for whatever stays ambiguous. It never fails a
// batch: transactions that defeat both tiers land in the fallback category
// with method=default and confidence 0.
type Resolver struct {
	embedder   Embedder
	classifier Classifier
	vocab      *domain.Vocabulary
	opts       Options
	log        zerolog.Logger

	mu    sync.Mutex
	cache map[string][]float64
}

// NewResolver wires a resolver. Both tiers are required; use the fakes in the
// tests for offline runs.
func NewResolver(embedder Embedder, classifier Classifier, vocab *domain.Vocabulary, opts Options, log zerolog.Logger) *Resolver {
	return &Resolver{
		embedder:   embedder,
		classifier: classifier,
		vocab:      vocab,
		opts:       opts,
		log:        log,
		cache:      make(map[string][]float64),
	}
}

// Categorize resolves one category per transaction against the current
// category embedding set. Results are positionally aligned with txs.
func (r *Resolver) Categorize(ctx context.Context, txs []domain.Transaction, categories []domain.CategoryEmbedding) BatchResult {
	results := make([]domain.ClassificationResult, len(txs))
	for i := range results {
		results[i] = domain.ClassificationResult{
			Category:   domain.FallbackCategory,
			Confidence: 0,
			Method:     domain.MethodDefault,
		}
	}

	vectors := r.embedAll(ctx, txs)

	var ambiguous []int
	for i := range txs {
		vec := vectors[i]
		if vec == nil {
			// Embedding failed; the LLM still gets a shot.
			ambiguous = append(ambiguous, i)
			continue
		}

		category, sim := bestMatch(vec, categories)
		if category != "" && sim >= r.opts.SimilarityThreshold {
			results[i] = domain.ClassificationResult{
				Category:   category,
				Confidence: sim,
				Method:     domain.MethodEmbedding,
			}
			continue
		}
		ambiguous = append(ambiguous, i)
	}

	r.resolveAmbiguous(ctx, txs, ambiguous, results)

	return BatchResult{Results: results, AvgConfidence: avgConfidence(results)}
}

// embedAll fetches embeddings concurrently under the parallelism cap. A nil
// slot means that description could not be embedded.
func (r *Resolver) embedAll(ctx context.Context, txs []domain.Transaction) [][]float64 {
	vectors := make([][]float64, len(txs))
	sem := make(chan struct{}, r.opts.MaxConcurrentEmbeds)
	var wg sync.WaitGroup

	for i, tx := range txs {
		key := cacheKey(tx.Description)
		if vec, ok := r.cached(key); ok {
			vectors[i] = vec
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, text, key string) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
			defer cancel()

			vec, err := r.embedder.Embed(callCtx, text)
			if err != nil {
				r.log.Warn().Err(err).Str("description", text).Msg("Embedding lookup failed")
				return
			}
			vectors[i] = vec
			r.store(key, vec)
		}(i, tx.Description, key)
	}
	wg.Wait()
	return vectors
}

// resolveAmbiguous sends every still-unresolved transaction to the language
// model in one call. Any failure leaves the prefilled default result in place.
func (r *Resolver) resolveAmbiguous(ctx context.Context, txs []domain.Transaction, ambiguous []int, results []domain.ClassificationResult) {
	if len(ambiguous) == 0 {
		return
	}

	descriptions := make([]string, len(ambiguous))
	for j, i := range ambiguous {
		descriptions[j] = txs[i].Description
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	answers, err := r.classifier.Classify(callCtx, descriptions, r.vocab.Names())
	if err != nil {
		r.log.Warn().Err(err).Int("count", len(ambiguous)).Msg("LLM fallback failed, using default category")
		return
	}
	if len(answers) != len(ambiguous) {
		r.log.Warn().
			Int("want", len(ambiguous)).
			Int("got", len(answers)).
			Msg("LLM fallback returned wrong answer count, using default category")
		return
	}

	for j, i := range ambiguous {
		canonical, ok := r.vocab.Canonical(answers[j])
		if !ok {
			r.log.Warn().Str("answer", answers[j]).Msg("LLM answered outside the vocabulary")
			continue
		}
		results[i] = domain.ClassificationResult{
			Category:   canonical,
			Confidence: r.opts.LLMConfidence,
			Method:     domain.MethodLLM,
		}
	}
}

func (r *Resolver) cached(key string) ([]float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.cache[key]
	return vec, ok
}

func (r *Resolver) store(key string, vec []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = vec
}

func cacheKey(description string) string {
	return strings.ToLower(strings.Join(strings.Fields(description), " "))
}

// bestMatch returns the category with the highest cosine similarity to vec.
func bestMatch(vec []float64, categories []domain.CategoryEmbedding) (string, float64) {
	best, bestSim := "", math.Inf(-1)
	for _, c := range categories {
		sim := CosineSimilarity(vec, c.Vector)
		if sim > bestSim {
			best, bestSim = c.Category, sim
		}
	}
	if best == "" {
		return "", 0
	}
	return best, bestSim
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 for
// mismatched or zero-length vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func avgConfidence(results []domain.ClassificationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}
