package models

// Document is the raw content of one source file or PDF page together with
// where it came from.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source returns the "source" metadata entry, or "" when it is missing.
func (d Document) Source() string {
	if s, ok := d.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

// Chunk is a bounded slice of a Document's text. It inherits the parent's
// metadata plus its chunk_index.
type Chunk struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Index    int            `json:"index"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ScoredChunk is a Chunk returned by a similarity search. Higher scores are
// closer matches.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Source returns the inherited "source" metadata entry.
func (c Chunk) Source() string {
	if s, ok := c.Metadata["source"].(string); ok {
		return s
	}
	return ""
}
