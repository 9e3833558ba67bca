package models

// OllamaEmbedRequest is the body of a POST /api/embeddings call to a local Ollama.
type OllamaEmbedRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

// OllamaEmbedResponse carries either the embedding or Ollama's error message.
type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}
