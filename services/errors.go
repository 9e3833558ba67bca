package services

import (
	"errors"

	"github.com/ragpipe/docqa/config"
)

// Configuration errors are shared with the config package so callers can
// match either with errors.Is.
var (
	ErrInvalidConfig     = config.ErrInvalidConfig
	ErrMissingCredential = config.ErrMissingCredential
)

// Stage errors. Pipeline.Run returns the one matching the stage that stopped the run.
var (
	// ErrNoDocuments is returned when the source yielded nothing to index.
	ErrNoDocuments = errors.New("no documents loaded")

	// ErrNoChunks is returned when every loaded document was blank.
	ErrNoChunks = errors.New("no chunks produced")

	// ErrEmbeddingUnavailable is returned when neither the primary nor the
	// fallback embedding provider could be initialized.
	ErrEmbeddingUnavailable = errors.New("no embedding provider available")

	// ErrEmbeddingFailed is returned when chunk embedding failed.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrDimensionMismatch is returned when vectors of different sizes meet.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStoreFailed is returned when the vector index could not be built.
	ErrStoreFailed = errors.New("vector store construction failed")

	// ErrAnswerFailed is returned when retrieval or generation failed.
	ErrAnswerFailed = errors.New("question answering failed")

	// ErrEmptyAnswer is returned when the chat model produced no text.
	ErrEmptyAnswer = errors.New("model returned an empty answer")
)
