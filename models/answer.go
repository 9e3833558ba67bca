package models

// Answer is the generated response to a Query and the chunks it was grounded on.
type Answer struct {
	Query   string        `json:"query"`
	Text    string        `json:"answer"`
	Model   string        `json:"model,omitempty"`
	Sources []ScoredChunk `json:"source_docs,omitempty"`
}
