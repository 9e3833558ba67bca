package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/ragpipe/docqa/config"
	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
	"github.com/ragpipe/docqa/services"
)

// runSource runs the whole pipeline for one source and prints the answer.
func runSource(cmd *cobra.Command, source string) error {
	cfg, err := loadConfig(cmd, source)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := buildPipeline(ctx, cfg, source, logger)
	if err != nil {
		return err
	}

	answer, err := pipeline.Run(ctx, cfg.Query)
	if err != nil {
		return err
	}
	printAnswer(cmd.OutOrStdout(), answer)
	return nil
}

func buildPipeline(ctx context.Context, cfg *config.Config, source string, logger hclog.Logger) (*services.Pipeline, error) {
	geminiClient, err := services.NewGeminiClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return nil, err
	}

	var (
		loader  services.Loader
		chunker *services.Chunker
	)
	switch source {
	case config.SourceGitHub:
		loader, err = services.NewGitHubLoader(services.GitHubLoaderConfig{
			Repo:       cfg.GitHub.Repo,
			Branch:     cfg.GitHub.Branch,
			Token:      cfg.GitHub.Token,
			APIURL:     cfg.GitHub.APIURL,
			FileFilter: services.ExtensionFilter(cfg.GitHub.Extensions...),
		}, logger.Named("github"))
		if err != nil {
			return nil, err
		}
		chunker, err = services.NewChunker(cfg.GitHub.ChunkSize, cfg.GitHub.ChunkOverlap, logger.Named("chunker"))
	case config.SourcePDF:
		loader, err = services.NewPDFLoader(config.ExpandPath(cfg.PDF.Path), cfg.PDF.Engine, cfg.PDF.UnidocLicenseKey, logger.Named("pdf"))
		if err != nil {
			return nil, err
		}
		chunker, err = services.NewChunker(cfg.PDF.ChunkSize, cfg.PDF.ChunkOverlap, logger.Named("chunker"))
	default:
		return nil, fmt.Errorf("%w: unknown source %q", config.ErrInvalidConfig, source)
	}
	if err != nil {
		return nil, err
	}

	embeddings, err := newEmbeddingService(cfg, geminiClient, logger.Named("embeddings"))
	if err != nil {
		return nil, err
	}

	store, err := newVectorStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &services.Pipeline{
		Loader:     loader,
		Chunker:    chunker,
		Embeddings: embeddings,
		Store:      store,
		Generator:  services.NewGeminiGenerator(geminiClient, cfg.Gemini.ChatModel, cfg.Gemini.Temperature),
		TopK:       cfg.VectorStore.TopK,
		Logger:     logger,
	}, nil
}

// newEmbeddingService builds the primary provider and, unless it is "none"
// or the same as the primary, the fallback.
func newEmbeddingService(cfg *config.Config, geminiClient *genai.Client, logger hclog.Logger) (*services.EmbeddingService, error) {
	primary, err := newEmbeddingProvider(cfg.Embedding.Provider, cfg, geminiClient)
	if err != nil {
		return nil, err
	}

	var fallback services.EmbeddingProvider
	if name := cfg.Embedding.Fallback; name != "" && name != "none" && name != cfg.Embedding.Provider {
		fallback, err = newEmbeddingProvider(name, cfg, geminiClient)
		if err != nil {
			return nil, err
		}
	}
	return services.NewEmbeddingService(primary, fallback, cfg.Embedding.Dimensions, logger), nil
}

// newEmbeddingProvider builds one provider by name. The gemini provider shares
// the generator's client.
func newEmbeddingProvider(name string, cfg *config.Config, geminiClient *genai.Client) (services.EmbeddingProvider, error) {
	switch name {
	case "gemini":
		return services.NewGeminiEmbedder(geminiClient, cfg.Embedding.Model, cfg.Embedding.BatchSize), nil
	case "ollama":
		return services.NewOllamaEmbedder(nil, cfg.Embedding.Ollama.Endpoint, cfg.Embedding.Ollama.Model), nil
	case "openai":
		return services.NewOpenAIEmbedder(cfg.Embedding.OpenAI.APIKey, cfg.Embedding.OpenAI.BaseURL,
			cfg.Embedding.OpenAI.Model, cfg.Embedding.BatchSize), nil
	case "hash":
		return services.NewHashEmbedder(cfg.Embedding.Hash.Dimensions), nil
	}
	return nil, fmt.Errorf("%w: embedding provider %q", config.ErrInvalidConfig, name)
}

func newVectorStore(cfg *config.Config, logger hclog.Logger) (services.VectorStore, error) {
	switch cfg.VectorStore.Provider {
	case "memory":
		return services.NewMemoryStore(), nil
	case "chroma":
		return services.NewChromaStore(cfg.VectorStore.Chroma.URL, cfg.VectorStore.Chroma.CollectionPrefix, logger)
	}
	return nil, fmt.Errorf("%w: vector store %q", config.ErrInvalidConfig, cfg.VectorStore.Provider)
}

func printAnswer(w io.Writer, answer *models.Answer) {
	fmt.Fprintln(w, "Answer:")
	fmt.Fprintln(w, answer.Text)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, s := range answer.Sources {
		ref := s.Source()
		if page, ok := pageNumber(s.Metadata["page"]); ok {
			ref = fmt.Sprintf("%s (page %d)", ref, page)
		}
		fmt.Fprintf(w, "  [%d] %s  score=%.3f\n", i+1, ref, s.Score)
	}
}

// pageNumber converts the 0-based page metadata to a 1-based page number.
// Chroma returns numbers as float64.
func pageNumber(v any) (int, bool) {
	switch p := v.(type) {
	case int:
		return p + 1, true
	case int64:
		return int(p) + 1, true
	case float64:
		return int(p) + 1, true
	}
	return 0, false
}
