// Package embeddings turns text into vectors for the vector store.
package embeddings

import "context"

// Embedder maps text to a fixed-length vector. The length must match the
// dimensions the vector store was created with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}
