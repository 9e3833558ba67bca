package services

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline embedder using signed feature hashing of
// lower-cased word tokens. Texts sharing words get similar vectors. It needs
// no model or network, so it serves as a last-resort fallback and in tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a hash embedder producing dims-sized vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Name returns "hash".
func (e *HashEmbedder) Name() string { return "hash" }

// Dimensions returns the configured vector size.
func (e *HashEmbedder) Dimensions() int { return e.dims }

// Warmup always succeeds.
func (e *HashEmbedder) Warmup(context.Context) error { return nil }

// Embed returns one L2-normalised vector per text. Text without any word
// characters maps to the zero vector.
func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = e.embed(t)
	}
	return vectors, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	l2normalize(vec)
	return vec
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

var _ EmbeddingProvider = (*HashEmbedder)(nil)
