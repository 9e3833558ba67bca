package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe/docqa/models"
)

const chromaCollectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

// fakeChroma serves the v2 endpoints one run touches: pre-flight, create,
// add, query and delete.
type fakeChroma struct {
	mu        sync.Mutex
	created   []string
	addedIDs  []string
	addedDims int
	query     map[string]any
	deleted   []string
	queryErr  bool
}

func (f *fakeChroma) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/pre-flight-checks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"max_batch_size": 1000})
	})
	mux.HandleFunc(chromaCollectionsPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req struct {
			Name        string `json:"name"`
			GetOrCreate bool   `json:"get_or_create"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.GetOrCreate)

		f.mu.Lock()
		f.created = append(f.created, req.Name)
		f.mu.Unlock()

		writeJSON(w, map[string]any{
			"id":       "col-1",
			"name":     req.Name,
			"tenant":   "default_tenant",
			"database": "default_database",
		})
	})
	mux.HandleFunc(chromaCollectionsPath+"/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, chromaCollectionsPath+"/")
		switch {
		case r.Method == http.MethodDelete:
			f.mu.Lock()
			f.deleted = append(f.deleted, rest)
			f.mu.Unlock()
			writeJSON(w, map[string]any{})
		case rest == "col-1/add":
			var req struct {
				IDs        []string    `json:"ids"`
				Embeddings [][]float32 `json:"embeddings"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.mu.Lock()
			f.addedIDs = append(f.addedIDs, req.IDs...)
			if len(req.Embeddings) > 0 {
				f.addedDims = len(req.Embeddings[0])
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, true)
		case rest == "col-1/query":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.mu.Lock()
			f.query = req
			failed := f.queryErr
			f.mu.Unlock()
			if failed {
				http.Error(w, `{"error":"InternalError","message":"index unavailable"}`, http.StatusInternalServerError)
				return
			}
			// Nearest first, as the server returns them.
			writeJSON(w, map[string]any{
				"ids":       [][]string{{"c1", "c0", "c2"}},
				"documents": [][]string{{"chunk 1", "chunk 0", "chunk 2"}},
				"metadatas": [][]map[string]any{{
					{"source": "doc.md", "page": 1, chunkIndexKey: 1},
					{"source": "doc.md", "page": 0, chunkIndexKey: 0},
					{"source": "doc.md", "page": 2, chunkIndexKey: 2},
				}},
				"distances": [][]float64{{0, 1, 3}},
			})
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func newTestChromaStore(t *testing.T, fake *fakeChroma) *ChromaStore {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	store, err := NewChromaStore(srv.URL, "handbook", nil)
	require.NoError(t, err)
	return store
}

func TestChromaStore_AddSearchClose(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChroma{}
	store := newTestChromaStore(t, fake)

	require.NoError(t, store.Add(ctx, testChunks(3), angleVectors(3)))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := store.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []string{"c1", "c0", "c2"}, []string{results[0].ID, results[1].ID, results[2].ID})
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.5, results[1].Score, 1e-9)
	assert.InDelta(t, 0.25, results[2].Score, 1e-9)

	assert.Equal(t, "chunk 1", results[0].Text)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, "doc.md", results[0].Source())
	assert.NotContains(t, results[0].Metadata, chunkIndexKey)

	require.NoError(t, store.Close(ctx))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	fake.mu.Lock()
	defer fake.mu.Unlock()

	require.Len(t, fake.created, 1)
	assert.True(t, strings.HasPrefix(fake.created[0], "handbook-"))
	assert.Equal(t, []string{"c0", "c1", "c2"}, fake.addedIDs)
	assert.Equal(t, 2, fake.addedDims)

	// k is capped at the number of indexed chunks.
	assert.EqualValues(t, 3, fake.query["n_results"])
	assert.ElementsMatch(t, []any{"documents", "metadatas", "distances"}, fake.query["include"])

	assert.Equal(t, fake.created, fake.deleted)
}

func TestChromaStore_Errors(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChroma{queryErr: true}
	store := newTestChromaStore(t, fake)

	assert.ErrorIs(t, store.Add(ctx, testChunks(2), angleVectors(3)), ErrStoreFailed)
	assert.ErrorIs(t, store.Add(ctx, testChunks(2), [][]float32{{1, 0}, {1}}), ErrDimensionMismatch)

	require.NoError(t, store.Add(ctx, testChunks(2), angleVectors(2)))
	assert.ErrorIs(t, store.Add(ctx, testChunks(1), [][]float32{{1, 0, 0}}), ErrDimensionMismatch)

	_, err := store.Search(ctx, []float32{1, 0, 0}, 4)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.Search(ctx, []float32{1, 0}, 4)
	assert.ErrorIs(t, err, ErrStoreFailed)

	require.NoError(t, store.Close(ctx))
}

func TestChromaStore_CloseWithoutAdd(t *testing.T) {
	fake := &fakeChroma{}
	store := newTestChromaStore(t, fake)

	require.NoError(t, store.Close(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.created)
	assert.Empty(t, fake.deleted)
}

func TestChromaMetadataRoundTrip(t *testing.T) {
	s := &ChromaStore{logger: hclog.NewNullLogger()}
	chunk := models.Chunk{
		Index: 7,
		Metadata: map[string]any{
			"source":      "handbook.pdf",
			"page":        2,
			"score_hint":  0.5,
			"draft":       true,
			"tags":        []string{"a", "b"},
			"chunk_index": 0,
		},
	}

	meta := s.fromChromaMetadata(toChromaMetadata(chunk))

	assert.Equal(t, "handbook.pdf", meta["source"])
	assert.EqualValues(t, 2, meta["page"])
	assert.EqualValues(t, 0.5, meta["score_hint"])
	assert.Equal(t, true, meta["draft"])
	assert.Equal(t, "[a b]", meta["tags"])
	assert.EqualValues(t, 7, meta[chunkIndexKey])
}

func TestChromaStore_EmptySearch(t *testing.T) {
	s := &ChromaStore{logger: hclog.NewNullLogger()}
	results, err := s.Search(context.Background(), []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, "chroma", s.Name())
}
