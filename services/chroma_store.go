package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

const chunkIndexKey = "chunk_order"

// includeDistances has no named constant in the client.
const includeDistances chromago.Include = "distances"

// ChromaStore keeps one run's chunks in a dedicated Chroma collection. The
// collection name is unique per store and the collection is dropped on Close.
type ChromaStore struct {
	client         chromago.Client
	collectionName string
	logger         hclog.Logger

	mu         sync.Mutex
	collection chromago.Collection
	dims       int
	count      int
}

// NewChromaStore connects to the Chroma server at baseURL. The collection is
// created lazily on the first Add.
func NewChromaStore(baseURL, prefix string, logger hclog.Logger) (*ChromaStore, error) {
	if prefix == "" {
		prefix = "docqa"
	}
	opts := []chromago.ClientOption{}
	if baseURL != "" {
		opts = append(opts, chromago.WithBaseURL(baseURL))
	}
	client, err := chromago.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create chroma client: %v", ErrStoreFailed, err)
	}
	return &ChromaStore{
		client:         client,
		collectionName: fmt.Sprintf("%s-%s", prefix, uuid.NewString()),
		logger:         logging.OrNull(logger).Named("chroma"),
	}, nil
}

// Name returns "chroma".
func (s *ChromaStore) Name() string { return "chroma" }

func (s *ChromaStore) getOrCreateCollection(ctx context.Context) (chromago.Collection, error) {
	if s.collection != nil {
		return s.collection, nil
	}
	s.logger.Debug("creating collection", "collection", s.collectionName)

	// Vectors are always supplied, so the embedding function is never called.
	// Without one the client would fetch its default ONNX model.
	collection, err := s.client.GetOrCreateCollection(
		ctx,
		s.collectionName,
		chromago.WithEmbeddingFunctionCreate(embeddings.NewConsistentHashEmbeddingFunction()),
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "docqa ephemeral index"),
				chromago.NewStringAttribute("created_by", "docqa"),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	s.collection = collection
	return collection, nil
}

// Add writes all pairs in a single request.
func (s *ChromaStore) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
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

	collection, err := s.getOrCreateCollection(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to create collection %s: %v", ErrStoreFailed, s.collectionName, err)
	}

	ids := make([]chromago.DocumentID, len(chunks))
	texts := make([]string, len(chunks))
	embs := make([]embeddings.Embedding, len(chunks))
	metas := make([]chromago.DocumentMetadata, len(chunks))
	for i, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = chromago.DocumentID(id)
		texts[i] = c.Text
		embs[i] = embeddings.NewEmbeddingFromFloat32(vectors[i])
		metas[i] = toChromaMetadata(c)
	}

	err = collection.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to add %d chunks to chromadb: %v", ErrStoreFailed, len(chunks), err)
	}

	s.dims = dims
	s.count += len(chunks)
	s.logger.Debug("added chunks", "collection", s.collectionName, "count", len(chunks))
	return nil
}

// Search queries the collection. Chroma reports L2 distances, mapped to
// scores as 1/(1+d) so larger is closer.
func (s *ChromaStore) Search(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	s.mu.Lock()
	collection, dims, count := s.collection, s.dims, s.count
	s.mu.Unlock()

	if collection == nil || count == 0 {
		return nil, nil
	}
	if len(vector) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), dims)
	}
	if k <= 0 {
		k = DefaultTopK
	}
	k = min(k, count)

	results, err := collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, includeDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query chromadb: %v", ErrStoreFailed, err)
	}

	documentGroups := results.GetDocumentsGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}
	idGroups := results.GetIDGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()

	scored := make([]models.ScoredChunk, 0, len(documentGroups[0]))
	for i, doc := range documentGroups[0] {
		chunk := models.Chunk{Text: doc.ContentString()}
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			chunk.ID = string(idGroups[0][i])
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) {
			chunk.Metadata = s.fromChromaMetadata(metadataGroups[0][i])
			if idx, ok := chunk.Metadata[chunkIndexKey].(float64); ok {
				chunk.Index = int(idx)
				delete(chunk.Metadata, chunkIndexKey)
			}
		}

		var score float64
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			score = 1 / (1 + float64(distanceGroups[0][i]))
		}
		scored = append(scored, models.ScoredChunk{Chunk: chunk, Score: score})
	}

	// Chroma already orders by distance; keep that order for equal scores.
	slices.SortStableFunc(scored, func(a, b models.ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return scored, nil
}

// Count returns how many chunks this store has added.
func (s *ChromaStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

// Close deletes the collection and closes the client.
func (s *ChromaStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.collection != nil {
		if err := s.client.DeleteCollection(ctx, s.collectionName); err != nil {
			s.logger.Warn("failed to delete collection", "collection", s.collectionName, "error", err)
			firstErr = fmt.Errorf("%w: failed to delete collection %s: %v", ErrStoreFailed, s.collectionName, err)
		}
		s.collection = nil
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("failed to close chroma client", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	s.count = 0
	s.dims = 0
	return firstErr
}

// toChromaMetadata flattens chunk metadata to the scalar types Chroma accepts.
func toChromaMetadata(c models.Chunk) chromago.DocumentMetadata {
	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	attrs := make([]*chromago.MetaAttribute, 0, len(keys)+1)
	for _, k := range keys {
		switch v := c.Metadata[k].(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(k, v))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(v)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(k, v))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(k, v))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(k, v))
		case nil:
		default:
			attrs = append(attrs, chromago.NewStringAttribute(k, fmt.Sprint(v)))
		}
	}
	attrs = append(attrs, chromago.NewIntAttribute(chunkIndexKey, int64(c.Index)))
	return chromago.NewDocumentMetadata(attrs...)
}

// fromChromaMetadata converts Chroma metadata back to a plain map. The
// metadata type has no exported accessor for all values, so it goes through JSON.
func (s *ChromaStore) fromChromaMetadata(meta chromago.DocumentMetadata) map[string]any {
	metadataMap := make(map[string]any)
	if meta == nil {
		return metadataMap
	}
	jsonBytes, err := json.Marshal(meta)
	if err != nil {
		s.logger.Warn("could not marshal metadata for document", "error", err)
		return metadataMap
	}
	if err := json.Unmarshal(jsonBytes, &metadataMap); err != nil {
		s.logger.Warn("could not unmarshal metadata for document", "error", err)
		return make(map[string]any)
	}
	return metadataMap
}

var _ VectorStore = (*ChromaStore)(nil)
