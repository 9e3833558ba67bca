package services

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 4

// VectorStore indexes chunk vectors for nearest-neighbour search.
type VectorStore interface {
	// Name returns the backend name (e.g. "memory", "chroma").
	Name() string

	// Add indexes chunks[i] under vectors[i].
	Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error

	// Search returns up to k chunks ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error)

	// Count returns the number of indexed chunks.
	Count(ctx context.Context) (int, error)

	// Close releases the index. The store is unusable afterwards.
	Close(ctx context.Context) error
}

// BuildVectorStore indexes chunks into store and returns it. Any failure,
// including empty input or mismatched lengths, is logged and returns nil.
func BuildVectorStore(ctx context.Context, store VectorStore, chunks []models.Chunk, vectors [][]float32, logger hclog.Logger) VectorStore {
	logger = logging.OrNull(logger)

	if err := validatePairs(chunks, vectors); err != nil {
		logger.Error("error creating vector store", "store", store.Name(), "error", err)
		return nil
	}
	if err := store.Add(ctx, chunks, vectors); err != nil {
		logger.Error("error creating vector store", "store", store.Name(), "error", err)
		return nil
	}

	count, err := store.Count(ctx)
	if err != nil {
		logger.Error("error creating vector store", "store", store.Name(), "error", err)
		return nil
	}
	logger.Info("vector store ready", "store", store.Name(), "chunks", count)
	return store
}

func validatePairs(chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: nothing to index", ErrStoreFailed)
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks but %d vectors", ErrStoreFailed, len(chunks), len(vectors))
	}
	return checkDimensions(vectors, 0)
}
