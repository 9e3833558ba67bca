package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

type fakeLoader struct {
	name     string
	docs     []models.Document
	err      error
	panicMsg string
}

func (f *fakeLoader) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeLoader) Load(context.Context) ([]models.Document, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.docs, f.err
}

// fakeProvider returns vectors whose first entry is the text length.
type fakeProvider struct {
	name      string
	dims      int
	warmupErr error
	embedErr  error
	// dropLast makes Embed return one vector too few.
	dropLast bool
	// ragged makes the second vector one entry longer.
	ragged bool

	mu      sync.Mutex
	warmups int
	calls   int
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Dimensions() int { return f.dims }

func (f *fakeProvider) Warmup(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warmups++
	return f.warmupErr
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, 0, len(texts))
	for i, t := range texts {
		n := f.dims
		if f.ragged && i == 1 {
			n++
		}
		v := make([]float32, n)
		v[0] = float32(len(t))
		out = append(out, v)
	}
	if f.dropLast && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// queryProvider marks query vectors so tests can tell EmbedQuery was used.
type queryProvider struct {
	fakeProvider
}

func (q *queryProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, q.dims)
	v[0] = -1
	return v, nil
}

type fakeGenerator struct {
	answer string
	err    error
	model  string

	gotContext string
	gotQuery   string
}

func (g *fakeGenerator) Generate(_ context.Context, contextText, query string) (string, error) {
	g.gotContext = contextText
	g.gotQuery = query
	return g.answer, g.err
}

type modelGenerator struct {
	fakeGenerator
}

func (g *modelGenerator) Model() string { return g.model }

type fakeRetriever struct {
	results []models.ScoredChunk
	err     error
	gotK    int
}

func (r *fakeRetriever) Retrieve(_ context.Context, _ string, k int) ([]models.ScoredChunk, error) {
	r.gotK = k
	return r.results, r.err
}

// recordingStore wraps a store and records what reached it.
type recordingStore struct {
	VectorStore
	added  int
	dims   int
	closed bool
}

func (s *recordingStore) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	s.added += len(chunks)
	if len(vectors) > 0 {
		s.dims = len(vectors[0])
	}
	return s.VectorStore.Add(ctx, chunks, vectors)
}

func (s *recordingStore) Close(ctx context.Context) error {
	s.closed = true
	return s.VectorStore.Close(ctx)
}

func captureLogger() (hclog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewWithOutput(&buf, "debug", "text"), &buf
}

// pageDocs returns n short PDF-like page documents on different topics.
func pageDocs(n int) []models.Document {
	topics := []string{
		"The lighthouse keeper logs every passing ship in a leather journal.",
		"Tides rise twice a day because of the pull of the moon.",
		"Fog horns warn sailors when the beam cannot be seen.",
		"Supply boats bring oil, bread and letters once a month.",
		"In winter storms the keeper climbs the tower every hour.",
	}
	docs := make([]models.Document, n)
	for i := range docs {
		docs[i] = models.Document{
			Content: fmt.Sprintf("Page %d. %s", i+1, topics[i%len(topics)]),
			Metadata: map[string]any{
				"source":      "handbook.pdf",
				"page":        i,
				"total_pages": n,
			},
		}
	}
	return docs
}
