package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

// Pipeline runs load, split, embed, index and answer for one query.
type Pipeline struct {
	Loader     Loader
	Chunker    *Chunker
	Embeddings *EmbeddingService
	Store      VectorStore
	Generator  Generator
	TopK       int
	Logger     hclog.Logger
}

// Run answers query over the loader's documents. Each stage failure is
// logged and returned wrapped in that stage's sentinel error. The store is
// closed before Run returns.
func (p *Pipeline) Run(ctx context.Context, query string) (*models.Answer, error) {
	logger := logging.OrNull(p.Logger)

	if err := p.validate(query); err != nil {
		return nil, err
	}

	defer func() {
		if err := p.Store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("error closing vector store", "store", p.Store.Name(), "error", err)
		}
	}()

	start := time.Now()
	logger.Info("starting run", "source", p.Loader.Name(), "query", query)

	docs := LoadDocuments(ctx, p.Loader, logger)
	if docs == nil {
		return nil, fmt.Errorf("%w from %s", ErrNoDocuments, p.Loader.Name())
	}

	chunks, err := p.Chunker.Split(docs)
	if err != nil {
		logger.Error("error splitting documents", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNoChunks, err)
	}
	if len(chunks) == 0 {
		logger.Error("error splitting documents", "error", "every document was blank")
		return nil, ErrNoChunks
	}

	if err := p.Embeddings.Init(ctx); err != nil {
		logger.Error("error initializing embeddings", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	vectors := CreateEmbeddings(ctx, p.Embeddings, chunks, logger)
	if vectors == nil {
		return nil, ErrEmbeddingFailed
	}

	index := BuildVectorStore(ctx, p.Store, chunks, vectors, logger)
	if index == nil {
		return nil, ErrStoreFailed
	}

	rag := NewRAGService(NewStoreRetriever(p.Embeddings, index), p.Generator, p.TopK, logger)
	answer, err := rag.Answer(ctx, query)
	if err != nil {
		logger.Error("error answering query", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAnswerFailed, err)
	}

	logger.Info("run finished",
		"documents", len(docs),
		"chunks", len(chunks),
		"sources", len(answer.Sources),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return answer, nil
}

func (p *Pipeline) validate(query string) error {
	switch {
	case p.Loader == nil:
		return fmt.Errorf("%w: pipeline has no loader", ErrInvalidConfig)
	case p.Chunker == nil:
		return fmt.Errorf("%w: pipeline has no chunker", ErrInvalidConfig)
	case p.Embeddings == nil:
		return fmt.Errorf("%w: pipeline has no embedding service", ErrInvalidConfig)
	case p.Store == nil:
		return fmt.Errorf("%w: pipeline has no vector store", ErrInvalidConfig)
	case p.Generator == nil:
		return fmt.Errorf("%w: pipeline has no generator", ErrInvalidConfig)
	case strings.TrimSpace(query) == "":
		return fmt.Errorf("%w: query must not be empty", ErrInvalidConfig)
	}
	return nil
}
