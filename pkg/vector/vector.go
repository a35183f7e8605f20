// Package vector abstracts the similarity index behind the retrieval port.
//
// Two backends are provided: chromem (embedded, zero external services) and
// Qdrant (external, gRPC). Both store pre-computed vectors; embedding is the
// retrieval port's job.
package vector

import "context"

// Result is one scored document returned from a search.
type Result struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
	Score    float32
}

// Provider is the capability set a vector backend must implement.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Upsert adds or updates a document with its vector embedding.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search finds the topK most similar vectors.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter combines similarity with metadata equality filtering.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Fetch returns a single document by ID, or nil when absent.
	Fetch(ctx context.Context, collection string, id string) (*Result, error)

	// Delete removes a document by ID.
	Delete(ctx context.Context, collection string, id string) error

	// CreateCollection creates a collection with the given dimension.
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error

	// Name returns the provider name.
	Name() string

	// Close releases resources.
	Close() error
}
