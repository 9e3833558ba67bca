package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe/docqa/models"
)

func TestEmbeddingService_UsesPrimary(t *testing.T) {
	primary := &fakeProvider{name: "gemini", dims: 4}
	fallback := &fakeProvider{name: "ollama", dims: 4}
	svc := NewEmbeddingService(primary, fallback, 0, nil)

	require.NoError(t, svc.Init(context.Background()))
	assert.Equal(t, "gemini", svc.Name())
	assert.Equal(t, 4, svc.Dimensions())
	assert.Equal(t, 0, fallback.warmups)
}

func TestEmbeddingService_FallsBackOnce(t *testing.T) {
	logger, logs := captureLogger()
	primary := &fakeProvider{name: "gemini", dims: 4, warmupErr: errors.New("invalid api key")}
	fallback := &fakeProvider{name: "ollama", dims: 6}
	svc := NewEmbeddingService(primary, fallback, 0, logger)

	require.NoError(t, svc.Init(context.Background()))
	require.NoError(t, svc.Init(context.Background()))

	assert.Equal(t, "ollama", svc.Name())
	assert.Equal(t, 6, svc.Dimensions())
	assert.Equal(t, 1, primary.warmups)
	assert.Equal(t, 1, fallback.warmups)
	assert.Contains(t, logs.String(), "error initializing primary embeddings, falling back")
	assert.Contains(t, logs.String(), "invalid api key")

	vectors, err := svc.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[1], 6)
	assert.Equal(t, 0, primary.calls)
}

func TestEmbeddingService_Unavailable(t *testing.T) {
	tests := []struct {
		name     string
		primary  EmbeddingProvider
		fallback EmbeddingProvider
	}{
		{
			name:    "no primary",
			primary: nil,
		},
		{
			name:    "primary fails without fallback",
			primary: &fakeProvider{name: "gemini", dims: 4, warmupErr: errors.New("down")},
		},
		{
			name:     "both fail",
			primary:  &fakeProvider{name: "gemini", dims: 4, warmupErr: errors.New("down")},
			fallback: &fakeProvider{name: "ollama", dims: 4, warmupErr: errors.New("connection refused")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewEmbeddingService(tt.primary, tt.fallback, 0, nil)
			err := svc.Init(context.Background())
			assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

			_, err = svc.Embed(context.Background(), []string{"x"})
			assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
		})
	}
}

func TestEmbeddingService_ExpectedDimensions(t *testing.T) {
	svc := NewEmbeddingService(&fakeProvider{name: "hash", dims: 8}, nil, 16, nil)
	assert.ErrorIs(t, svc.Init(context.Background()), ErrDimensionMismatch)

	svc = NewEmbeddingService(&fakeProvider{name: "hash", dims: 16}, nil, 16, nil)
	assert.NoError(t, svc.Init(context.Background()))
}

func TestEmbeddingService_EmbedChecksResults(t *testing.T) {
	ctx := context.Background()

	short := NewEmbeddingService(&fakeProvider{name: "p", dims: 3, dropLast: true}, nil, 0, nil)
	_, err := short.Embed(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	ragged := NewEmbeddingService(&fakeProvider{name: "p", dims: 3, ragged: true}, nil, 0, nil)
	_, err = ragged.Embed(ctx, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	failing := NewEmbeddingService(&fakeProvider{name: "p", dims: 3, embedErr: errors.New("quota")}, nil, 0, nil)
	_, err = failing.Embed(ctx, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")

	ok := NewEmbeddingService(&fakeProvider{name: "p", dims: 3}, nil, 0, nil)
	vectors, err := ok.Embed(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbeddingService_EmbedQuery(t *testing.T) {
	ctx := context.Background()

	plain := NewEmbeddingService(&fakeProvider{name: "p", dims: 3}, nil, 0, nil)
	v, err := plain.EmbedQuery(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 0, 0}, v)

	withQuery := NewEmbeddingService(&queryProvider{fakeProvider{name: "q", dims: 3}}, nil, 0, nil)
	v, err = withQuery.EmbedQuery(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 0, 0}, v)
}

func TestCreateEmbeddings(t *testing.T) {
	ctx := context.Background()
	chunks := []models.Chunk{{Text: "one"}, {Text: "three"}}

	svc := NewEmbeddingService(&fakeProvider{name: "p", dims: 2}, nil, 0, nil)
	vectors := CreateEmbeddings(ctx, svc, chunks, nil)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(3), vectors[0][0])
	assert.Equal(t, float32(5), vectors[1][0])

	logger, logs := captureLogger()
	assert.Nil(t, CreateEmbeddings(ctx, svc, nil, logger))
	assert.Contains(t, logs.String(), "error creating embeddings")

	logger, logs = captureLogger()
	failing := NewEmbeddingService(&fakeProvider{name: "p", dims: 2, embedErr: errors.New("timeout")}, nil, 0, nil)
	assert.Nil(t, CreateEmbeddings(ctx, failing, chunks, logger))
	assert.Contains(t, logs.String(), "timeout")

	logger, logs = captureLogger()
	ragged := NewEmbeddingService(&fakeProvider{name: "p", dims: 2, ragged: true}, nil, 0, nil)
	assert.Nil(t, CreateEmbeddings(ctx, ragged, chunks, logger))
	assert.Contains(t, logs.String(), "embedding dimensions are inconsistent")
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, checkDimensions([][]float32{{1, 2}, {3, 4}}, 0))
	assert.NoError(t, checkDimensions([][]float32{{1, 2}}, 2))
	assert.ErrorIs(t, checkDimensions([][]float32{{1, 2}, {3}}, 0), ErrDimensionMismatch)
	assert.ErrorIs(t, checkDimensions([][]float32{{1, 2}}, 3), ErrDimensionMismatch)
	assert.ErrorIs(t, checkDimensions([][]float32{{}}, 0), ErrDimensionMismatch)
}
