package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ragpipe/docqa/models"
)

// MemoryStore is a process-local, brute-force cosine index. Nothing is persisted.
type MemoryStore struct {
	mu      sync.RWMutex
	dims    int
	chunks  []models.Chunk
	vectors [][]float32
}

// NewMemoryStore returns an empty store. The first Add fixes its dimension.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Name returns "memory".
func (s *MemoryStore) Name() string { return "memory" }

// Add indexes the pairs. Either every pair is added or none is.
func (s *MemoryStore) Add(_ context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if err := validatePairs(chunks, vectors); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dims
	if dims == 0 {
		dims = len(vectors[0])
	}
	if err := checkDimensions(vectors, dims); err != nil {
		return err
	}

	for i := range chunks {
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		s.chunks = append(s.chunks, chunks[i])
		s.vectors = append(s.vectors, v)
	}
	s.dims = dims
	return nil
}

// Search ranks every chunk by cosine similarity to vector. Equal scores keep
// insertion order. k <= 0 means DefaultTopK.
func (s *MemoryStore) Search(_ context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), s.dims)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	results := make([]models.ScoredChunk, len(s.chunks))
	for i := range s.chunks {
		results[i] = models.ScoredChunk{
			Chunk: s.chunks[i],
			Score: cosineSimilarity(vector, s.vectors[i]),
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of indexed chunks.
func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Close drops the index.
func (s *MemoryStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.vectors = nil
	s.dims = 0
	return nil
}

// cosineSimilarity returns a value in [-1, 1]; 0 when either vector is zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ VectorStore = (*MemoryStore)(nil)
