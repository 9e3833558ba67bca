package services

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// Gemini embedding task types.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Known Gemini embedding model dimensions.
var geminiModelDimensions = map[string]int{
	"text-embedding-004":   768,
	"embedding-001":        768,
	"gemini-embedding-001": 3072,
}

// NewGeminiClient creates a Gemini API client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY is required", ErrMissingCredential)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// GeminiEmbedder embeds text with a hosted Gemini embedding model.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	batchSize int

	mu   sync.RWMutex
	dims int
}

// NewGeminiEmbedder returns an embedder for model, sending at most batchSize
// texts per request.
func NewGeminiEmbedder(client *genai.Client, model string, batchSize int) *GeminiEmbedder {
	if model == "" {
		model = "text-embedding-004"
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &GeminiEmbedder{
		client:    client,
		model:     model,
		batchSize: batchSize,
		dims:      geminiModelDimensions[model],
	}
}

// Name returns "gemini".
func (e *GeminiEmbedder) Name() string { return "gemini" }

// Dimensions returns the model's vector size.
func (e *GeminiEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// Warmup sends one query embedding to verify the key and the model.
func (e *GeminiEmbedder) Warmup(ctx context.Context) error {
	if e.client == nil {
		return fmt.Errorf("gemini client not initialized")
	}
	_, err := e.EmbedQuery(ctx, "warmup")
	return err
}

// Embed embeds documents.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, taskRetrievalDocument)
}

// EmbedQuery embeds a search query.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.batchSize, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.Text(t)...)
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			TaskType: task,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedding failed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			results = append(results, emb.Values)
		}
	}

	if len(results) > 0 {
		e.mu.Lock()
		if e.dims == 0 {
			e.dims = len(results[0])
		}
		e.mu.Unlock()
	}
	return results, nil
}

var _ EmbeddingProvider = (*GeminiEmbedder)(nil)
var _ QueryEmbedder = (*GeminiEmbedder)(nil)
