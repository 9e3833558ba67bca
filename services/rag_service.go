package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/tmc/langchaingo/prompts"
	"google.golang.org/genai"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error)
}

// Generator produces an answer to query from contextText.
type Generator interface {
	Generate(ctx context.Context, contextText, query string) (string, error)
}

// StoreRetriever embeds the query and searches a vector store.
type StoreRetriever struct {
	embedder QueryEmbedder
	store    VectorStore
}

// NewStoreRetriever returns a retriever. embedder must be the one that
// embedded the indexed chunks.
func NewStoreRetriever(embedder QueryEmbedder, store VectorStore) *StoreRetriever {
	return &StoreRetriever{embedder: embedder, store: store}
}

// Retrieve returns up to k chunks ordered by descending score.
func (r *StoreRetriever) Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}
	results, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s store: %w", r.store.Name(), err)
	}
	return results, nil
}

// GeminiGenerator answers with a Gemini chat model.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	prompt      prompts.PromptTemplate
}

// NewGeminiGenerator returns a generator for model. An empty model means gemini-2.5-flash.
func NewGeminiGenerator(client *genai.Client, model string, temperature float32) *GeminiGenerator {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiGenerator{
		client:      client,
		model:       model,
		temperature: temperature,
		prompt:      NewStuffPrompt(),
	}
}

// Model returns the chat model name.
func (g *GeminiGenerator) Model() string { return g.model }

// Generate renders the prompt and sends it in a single request.
func (g *GeminiGenerator) Generate(ctx context.Context, contextText, query string) (string, error) {
	prompt, err := RenderStuffPrompt(g.prompt, contextText, query)
	if err != nil {
		return "", err
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: GetSystemPrompt(),
		Temperature:       genai.Ptr(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	return responseText(result), nil
}

// responseText joins the text parts of the first candidate.
func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return ""
	}
	content := result.Candidates[0].Content
	if content == nil {
		return ""
	}
	var responseText strings.Builder
	for _, p := range content.Parts {
		if p != nil && p.Text != "" {
			responseText.WriteString(p.Text)
		}
	}
	return responseText.String()
}

// NewStuffPrompt returns the template that takes "context" and "question".
func NewStuffPrompt() prompts.PromptTemplate {
	return prompts.NewPromptTemplate(stuffPromptTemplate, []string{"context", "question"})
}

// RenderStuffPrompt fills the template.
func RenderStuffPrompt(tmpl prompts.PromptTemplate, contextText, query string) (string, error) {
	out, err := tmpl.Format(map[string]any{
		"context":  contextText,
		"question": query,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return out, nil
}

// StuffContext joins chunk texts, separated by blank lines, in ranking order.
func StuffContext(chunks []models.ScoredChunk) string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return strings.Join(texts, "\n\n")
}

// RAGService answers queries by retrieving chunks and generating from them.
type RAGService struct {
	retriever Retriever
	generator Generator
	topK      int
	logger    hclog.Logger
}

// NewRAGService wires the two steps. topK <= 0 means DefaultTopK.
func NewRAGService(retriever Retriever, generator Generator, topK int, logger hclog.Logger) *RAGService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RAGService{
		retriever: retriever,
		generator: generator,
		topK:      topK,
		logger:    logging.OrNull(logger),
	}
}

// Answer retrieves the top chunks for query and generates an answer from
// them. There is no retry and no partial answer.
func (r *RAGService) Answer(ctx context.Context, query string) (*models.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidConfig)
	}

	r.logger.Debug("retrieving chunks", "query", query, "top_k", r.topK)
	sources, err := r.retriever.Retrieve(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no chunks retrieved for query %q", query)
	}
	r.logger.Info("retrieved chunks", "count", len(sources))

	text, err := r.generator.Generate(ctx, StuffContext(sources), query)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyAnswer
	}

	answer := &models.Answer{
		Query:   query,
		Text:    text,
		Sources: sources,
	}
	if m, ok := r.generator.(interface{ Model() string }); ok {
		answer.Model = m.Model()
	}
	return answer, nil
}
