package services

import (
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

// Chunker splits documents into overlapping chunks of at most size runes.
type Chunker struct {
	size     int
	overlap  int
	splitter textsplitter.RecursiveCharacter
	logger   hclog.Logger
}

// NewChunker returns a chunker. overlap must be smaller than size.
func NewChunker(size, overlap int, logger hclog.Logger) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
		logger: logging.OrNull(logger),
	}, nil
}

// Split chunks docs in order. Each chunk copies its document's metadata and
// adds chunk_index, the position of the chunk within that document. Blank
// documents produce no chunks.
func (c *Chunker) Split(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for i, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			c.logger.Debug("skipping blank document", "source", doc.Source(), "document", i)
			continue
		}

		texts, err := c.splitter.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("could not split document %d (%s): %w", i, doc.Source(), err)
		}

		for j, text := range texts {
			meta := maps.Clone(doc.Metadata)
			if meta == nil {
				meta = make(map[string]any, 1)
			}
			meta["chunk_index"] = j

			idx := len(chunks)
			chunks = append(chunks, models.Chunk{
				ID:       chunkID(doc.Source(), i, j),
				Text:     text,
				Index:    idx,
				Metadata: meta,
			})
		}
	}
	c.logger.Info("split documents", "documents", len(docs), "chunks", len(chunks),
		"chunk_size", c.size, "chunk_overlap", c.overlap)
	return chunks, nil
}

// chunkID is a name-based UUID so repeated runs over the same input agree.
func chunkID(source string, doc, chunk int) string {
	name := fmt.Sprintf("%s#%d#%d", source, doc, chunk)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
