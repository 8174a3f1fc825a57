package categorize

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/avolkov/finpulse/internal/domain"
)

// fakeEmbedder maps descriptions to canned vectors.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   atomic.Int64
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	vec, ok := f.vectors[text]
	if !ok {
		return []float64{0, 0, 1}, nil
	}
	return vec, nil
}

// fakeClassifier returns canned answers or an error.
type fakeClassifier struct {
	answers []string
	err     error
	gotDesc []string
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, descriptions []string, allowed []string) ([]string, error) {
	f.calls++
	f.gotDesc = descriptions
	if f.err != nil {
		return nil, f.err
	}
	return f.answers, nil
}

func testCategories() []domain.CategoryEmbedding {
	return []domain.CategoryEmbedding{
		{Category: "Groceries", Vector: []float64{1, 0, 0}},
		{Category: "Dining", Vector: []float64{0, 1, 0}},
	}
}

func newTestResolver(e Embedder, c Classifier) *Resolver {
	return NewResolver(e, c, domain.NewVocabulary(), DefaultOptions(), zerolog.Nop())
}

func txBatch(descriptions ...string) []domain.Transaction {
	txs := make([]domain.Transaction, len(descriptions))
	for i, d := range descriptions {
		txs[i] = domain.Transaction{Description: d}
	}
	return txs
}

func TestCategorize_EmbeddingMatchAboveThreshold(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"BIGBAZAAR GROCERY": {0.99, 0.1, 0},
	}}
	classifier := &fakeClassifier{}
	r := newTestResolver(embedder, classifier)

	res := r.Categorize(context.Background(), txBatch("BIGBAZAAR GROCERY"), testCategories())

	if len(res.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(res.Results))
	}
	got := res.Results[0]
	if got.Category != "Groceries" {
		t.Errorf("category = %q, want Groceries", got.Category)
	}
	if got.Method != domain.MethodEmbedding {
		t.Errorf("method = %q, want embedding", got.Method)
	}
	if got.Confidence < 0.85 || got.Confidence > 1 {
		t.Errorf("confidence = %v, want in [0.85, 1]", got.Confidence)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier called %d times for an unambiguous batch", classifier.calls)
	}
}

func TestCategorize_LowSimilarityInvokesLLMFallback(t *testing.T) {
	// Similarity against both categories is well below 0.85.
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"MYSTERY VENDOR 42": {0.5, 0.5, 0.7},
	}}
	classifier := &fakeClassifier{answers: []string{"Shopping"}}
	r := newTestResolver(embedder, classifier)

	res := r.Categorize(context.Background(), txBatch("MYSTERY VENDOR 42"), testCategories())

	if classifier.calls != 1 {
		t.Fatalf("classifier calls = %d, want 1", classifier.calls)
	}
	got := res.Results[0]
	if got.Category != "Shopping" || got.Method != domain.MethodLLM {
		t.Errorf("got %+v, want Shopping via llm", got)
	}
	if got.Confidence != 0.6 {
		t.Errorf("confidence = %v, want the fixed 0.6", got.Confidence)
	}
}

func TestCategorize_AmbiguousBatchedIntoSingleCall(t *testing.T) {
	embedder := &fakeEmbedder{} // default vector matches nothing well
	classifier := &fakeClassifier{answers: []string{"Dining", "Transport", "Utilities"}}
	r := newTestResolver(embedder, classifier)

	res := r.Categorize(context.Background(),
		txBatch("SWIGGY ORDER", "UBER TRIP", "POWER BILL"), testCategories())

	if classifier.calls != 1 {
		t.Fatalf("classifier calls = %d, want exactly 1 for the whole batch", classifier.calls)
	}
	if len(classifier.gotDesc) != 3 {
		t.Fatalf("classifier saw %d descriptions, want 3", len(classifier.gotDesc))
	}
	want := []string{"Dining", "Transport", "Utilities"}
	for i, w := range want {
		if res.Results[i].Category != w {
			t.Errorf("result[%d] = %q, want %q (order must be preserved)", i, res.Results[i].Category, w)
		}
	}
}

func TestCategorize_FallbackFailureDefaultsToOther(t *testing.T) {
	embedder := &fakeEmbedder{}
	classifier := &fakeClassifier{err: errors.New("timeout")}
	r := newTestResolver(embedder, classifier)

	res := r.Categorize(context.Background(), txBatch("UNKNOWN"), testCategories())

	got := res.Results[0]
	if got.Category != domain.FallbackCategory {
		t.Errorf("category = %q, want %q", got.Category, domain.FallbackCategory)
	}
	if got.Method != domain.MethodDefault || got.Confidence != 0 {
		t.Errorf("got %+v, want method=default confidence=0", got)
	}
}

func TestCategorize_OutOfVocabularyAnswerDefaults(t *testing.T) {
	embedder := &fakeEmbedder{}
	classifier := &fakeClassifier{answers: []string{"Cryptocurrency"}}
	r := newTestResolver(embedder, classifier)

	res := r.Categorize(context.Background(), txBatch("COINBASE"), testCategories())

	if res.Results[0].Category != domain.FallbackCategory {
		t.Errorf("out-of-vocabulary answer resolved to %q, want %q",
			res.Results[0].Category, domain.FallbackCategory)
	}
}

func TestCategorize_EmbedderFailureStillClassifies(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("rate limited")}
	classifier := &fakeClassifier{answers: []string{"Health"}}
	r := newTestResolver(embedder, classifier)

	res := r.Categorize(context.Background(), txBatch("APOLLO PHARMACY"), testCategories())

	if res.Results[0].Category != "Health" {
		t.Errorf("category = %q, want Health via the fallback", res.Results[0].Category)
	}
}

func TestCategorize_EmbeddingCacheReused(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"NETFLIX.COM": {0, 1, 0},
	}}
	classifier := &fakeClassifier{}
	r := newTestResolver(embedder, classifier)

	cats := testCategories()
	r.Categorize(context.Background(), txBatch("NETFLIX.COM"), cats)
	first := embedder.calls.Load()
	r.Categorize(context.Background(), txBatch("NETFLIX.COM"), cats)

	if embedder.calls.Load() != first {
		t.Errorf("embedder called again for a cached description")
	}
}

func TestCategorize_ConfidenceAlwaysInRange(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"A": {1, 0, 0}, "B": {0.2, 0.3, 0.9},
	}}
	classifier := &fakeClassifier{answers: []string{"Savings"}}
	r := newTestResolver(embedder, classifier)

	res := r.Categorize(context.Background(), txBatch("A", "B"), testCategories())
	for i, got := range res.Results {
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Errorf("result[%d] confidence %v outside [0,1]", i, got.Confidence)
		}
		if got.Category == "" {
			t.Errorf("result[%d] has empty category", i)
		}
	}
	if res.AvgConfidence <= 0 {
		t.Errorf("avg confidence = %v, want > 0", res.AvgConfidence)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1}, []float64{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `["Dining"]`, `["Dining"]`},
		{"fenced", "```json\n[\"Dining\"]\n```", `["Dining"]`},
		{"bare fence", "```\n[\"Dining\"]\n```", `["Dining"]`},
		{"chatty", "Here you go:\n[\"Dining\"]\nHope that helps!", `["Dining"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.in); got != tt.want {
				t.Errorf("cleanModelJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
