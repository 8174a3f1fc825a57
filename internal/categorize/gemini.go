package categorize

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

const (
	// DefaultEmbeddingModel is the Gemini embedding model.
	DefaultEmbeddingModel = "gemini-embedding-001"

	// DefaultClassifierModel is the Gemini model used for the fallback
	// classification call.
	DefaultClassifierModel = "gemini-2.5-flash"
)

// GeminiEmbedder implements Embedder backed by the Gemini embedding API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates an embedder. Credentials come from the
// environment (GEMINI_API_KEY or application default credentials).
func NewGeminiEmbedder(ctx context.Context, model string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiEmbedder: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Embed returns the embedding vector for text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("Embed: embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("Embed: empty embedding response")
	}

	values := resp.Embeddings[0].Values
	vec := make([]float64, len(values))
	for i, v := range values {
		vec[i] = float64(v)
	}
	return vec, nil
}

// GeminiClassifier implements Classifier with one GenerateContent call per
// batch of ambiguous descriptions.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates the fallback classifier.
func NewGeminiClassifier(ctx context.Context, model string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClassifier: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultClassifierModel
	}
	return &GeminiClassifier{client: client, model: model}, nil
}

// Classify asks the model to label every description with exactly one
// category from allowed and parses the strict-JSON answer.
func (c *GeminiClassifier) Classify(ctx context.Context, descriptions []string, allowed []string) ([]string, error) {
	prompt := buildClassifyPrompt(descriptions, allowed)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Classify: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("Classify: empty response from model")
	}

	clean := cleanModelJSON(rawText)

	var answers []string
	if err := json.Unmarshal([]byte(clean), &answers); err != nil {
		return nil, fmt.Errorf("Classify: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}
	if len(answers) != len(descriptions) {
		return nil, fmt.Errorf("Classify: got %d answers for %d descriptions", len(answers), len(descriptions))
	}
	return answers, nil
}
