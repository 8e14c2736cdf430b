// Package embed turns note text into unit-length vectors.
//
// An Embedder is the raw capability (a local hash model, Ollama or an
// OpenAI-compatible API). Provider wraps one and never fails: callers get
// either a normalized vector of the configured dimensions or nothing.
package embed

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=mocks/mock_embedder.go -package=mocks github.com/Aman-CERP/amannotes/internal/embed Embedder

import (
	"context"
	"time"
)

const (
	// DefaultDimensions is the vector size used when none is configured.
	DefaultDimensions = 256

	// DefaultBatchSize is the number of texts sent per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize caps configured batch sizes.
	MaxBatchSize = 256

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding size.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
