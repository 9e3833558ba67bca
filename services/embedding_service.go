package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

// EmbeddingProvider turns texts into fixed-size vectors.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g. "gemini", "ollama").
	Name() string

	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size, or 0 if not known before the first call.
	Dimensions() int

	// Warmup checks that the provider is usable, e.g. credentials and reachability.
	Warmup(ctx context.Context) error
}

// QueryEmbedder is implemented by providers that embed search queries
// differently from documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingService picks between a primary and a fallback provider and checks
// the dimensionality of everything it returns.
type EmbeddingService struct {
	primary      EmbeddingProvider
	fallback     EmbeddingProvider
	expectedDims int
	logger       hclog.Logger

	active EmbeddingProvider
}

// NewEmbeddingService wires the providers. fallback may be nil. expectedDims,
// when positive, is the dimension the selected provider must produce.
func NewEmbeddingService(primary, fallback EmbeddingProvider, expectedDims int, logger hclog.Logger) *EmbeddingService {
	return &EmbeddingService{
		primary:      primary,
		fallback:     fallback,
		expectedDims: expectedDims,
		logger:       logging.OrNull(logger),
	}
}

// Init selects the provider. The primary is tried first; if its warmup fails
// the fallback gets exactly one attempt. Calling Init again is a no-op.
func (s *EmbeddingService) Init(ctx context.Context) error {
	if s.active != nil {
		return nil
	}
	if s.primary == nil {
		return fmt.Errorf("%w: no primary embedding provider configured", ErrEmbeddingUnavailable)
	}

	selected := s.primary
	if err := s.primary.Warmup(ctx); err != nil {
		if s.fallback == nil {
			return fmt.Errorf("%w: %s: %v", ErrEmbeddingUnavailable, s.primary.Name(), err)
		}
		s.logger.Warn("error initializing primary embeddings, falling back",
			"primary", s.primary.Name(), "fallback", s.fallback.Name(), "error", err)

		if ferr := s.fallback.Warmup(ctx); ferr != nil {
			return fmt.Errorf("%w: %s: %v; %s: %v", ErrEmbeddingUnavailable,
				s.primary.Name(), err, s.fallback.Name(), ferr)
		}
		selected = s.fallback
	}

	if s.expectedDims > 0 && selected.Dimensions() != s.expectedDims {
		return fmt.Errorf("%w: %s produces %d dimensions, %d required",
			ErrDimensionMismatch, selected.Name(), selected.Dimensions(), s.expectedDims)
	}

	s.active = selected
	s.logger.Info("embedding provider ready", "provider", selected.Name(), "dimensions", selected.Dimensions())
	return nil
}

// Name returns the selected provider's name, or the primary's before Init.
func (s *EmbeddingService) Name() string {
	if s.active != nil {
		return s.active.Name()
	}
	if s.primary != nil {
		return s.primary.Name()
	}
	return "none"
}

// Dimensions returns the selected provider's vector size, or 0 before Init.
func (s *EmbeddingService) Dimensions() int {
	if s.active == nil {
		return 0
	}
	return s.active.Dimensions()
}

// Warmup is Init, so the service itself satisfies EmbeddingProvider.
func (s *EmbeddingService) Warmup(ctx context.Context) error {
	return s.Init(ctx)
}

// Embed embeds texts with the selected provider.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := s.active.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.active.Name(), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			ErrEmbeddingFailed, s.active.Name(), len(vectors), len(texts))
	}
	if err := checkDimensions(vectors, s.active.Dimensions()); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a search query with the selected provider.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	var vector []float32
	if qe, ok := s.active.(QueryEmbedder); ok {
		v, err := qe.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.active.Name(), err)
		}
		vector = v
	} else {
		vectors, err := s.active.Embed(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.active.Name(), err)
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("%w: %s returned %d vectors for one query", ErrEmbeddingFailed, s.active.Name(), len(vectors))
		}
		vector = vectors[0]
	}

	if err := checkDimensions([][]float32{vector}, s.active.Dimensions()); err != nil {
		return nil, err
	}
	return vector, nil
}

// checkDimensions verifies every vector has dims entries. With dims == 0 the
// first vector sets the expectation.
func checkDimensions(vectors [][]float32, dims int) error {
	for i, v := range vectors {
		if dims == 0 {
			dims = len(v)
		}
		if len(v) == 0 || len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return nil
}

// CreateEmbeddings embeds the text of every chunk. Failures are logged and
// returned as nil.
func CreateEmbeddings(ctx context.Context, embedder EmbeddingProvider, chunks []models.Chunk, logger hclog.Logger) [][]float32 {
	logger = logging.OrNull(logger)
	if len(chunks) == 0 {
		logger.Error("error creating embeddings", "error", "no chunks to embed")
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrDimensionMismatch) {
			logger.Error("embedding dimensions are inconsistent", "provider", embedder.Name(), "error", err)
		} else {
			logger.Error("error creating embeddings", "provider", embedder.Name(), "error", err)
		}
		return nil
	}
	logger.Info("embedded chunks", "provider", embedder.Name(), "vectors", len(vectors))
	return vectors
}
