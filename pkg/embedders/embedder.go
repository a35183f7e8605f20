// Package embedders provides the embedding port used by retrieval.
// Callers never construct embeddings themselves; the retrieval port owns an
// Embedder and feeds every query and document through it.
package embedders

import "context"

// Embedder converts text into a dense vector.
type Embedder interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector dimension this embedder produces.
	Dimension() int

	// ModelName returns the underlying model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
