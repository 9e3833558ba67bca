package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragpipe/docqa/models"
)

// OllamaEmbedder generates embeddings with a locally running Ollama.
type OllamaEmbedder struct {
	httpClient *http.Client
	endpoint   string
	model      string
	dims       int
}

// NewOllamaEmbedder returns an embedder for model served at endpoint
// (e.g. http://localhost:11434). client may be nil.
func NewOllamaEmbedder(client *http.Client, endpoint, model string) *OllamaEmbedder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text:v1.5"
	}
	return &OllamaEmbedder{
		httpClient: client,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		model:      model,
	}
}

// Name returns "ollama".
func (o *OllamaEmbedder) Name() string { return "ollama" }

// Dimensions returns the vector size learned from the last response.
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

// Warmup embeds a probe text, loading the model and learning its dimension.
func (o *OllamaEmbedder) Warmup(ctx context.Context) error {
	_, err := o.embedOne(ctx, "warmup")
	return err
}

// Embed embeds texts one request at a time; the endpoint takes a single prompt.
func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		v, err := o.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("could not embed text %d: %w", i, err)
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (o *OllamaEmbedder) embedOne(ctx context.Context, textToEmbed string) ([]float32, error) {
	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model:  o.model,
		Prompt: textToEmbed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama api returned non-200 status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if ollamaResp.Error != "" {
		return nil, fmt.Errorf("ollama: %s", ollamaResp.Error)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %s", o.model)
	}
	if o.dims == 0 {
		o.dims = len(ollamaResp.Embedding)
	}
	return ollamaResp.Embedding, nil
}

var _ EmbeddingProvider = (*OllamaEmbedder)(nil)
