package services

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Known OpenAI embedding model dimensions.
var openAIModelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// OpenAIEmbedder talks to any OpenAI-compatible /v1/embeddings endpoint,
// including local servers such as LM Studio or vLLM.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
	dims      int
}

// NewOpenAIEmbedder returns an embedder. baseURL may be empty for api.openai.com.
func NewOpenAIEmbedder(apiKey, baseURL, model string, batchSize int) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		batchSize: batchSize,
		dims:      openAIModelDimensions[model],
	}
}

// Name returns "openai".
func (p *OpenAIEmbedder) Name() string { return "openai" }

// Dimensions returns the model's vector size, learned from responses for unknown models.
func (p *OpenAIEmbedder) Dimensions() int { return p.dims }

// Warmup tests the API connection.
func (p *OpenAIEmbedder) Warmup(ctx context.Context) error {
	_, err := p.Embed(ctx, []string{"warmup"})
	return err
}

// Embed generates embeddings in batches.
func (p *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+p.batchSize, len(texts))

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[i:end],
			Model: openai.EmbeddingModel(p.model),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding failed: %w", err)
		}
		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), end-i)
		}

		for _, data := range resp.Data {
			if data.Index < 0 || data.Index >= end-i {
				return nil, fmt.Errorf("openai returned out-of-range index %d", data.Index)
			}
			results[i+data.Index] = data.Embedding
		}
	}

	if p.dims == 0 && len(results[0]) > 0 {
		p.dims = len(results[0])
	}
	return results, nil
}

var _ EmbeddingProvider = (*OpenAIEmbedder)(nil)
