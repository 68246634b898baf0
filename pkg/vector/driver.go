// Package vector provides interfaces and implementations for vector storage.
//
// Every driver is configured for cosine distance and reports
// Score = 1 - cosine_distance, so higher scores are more similar and the
// range is [-1, 1] regardless of backend.
package vector

import "context"

// Document represents a stored item with its embedding and metadata.
type Document struct {
	// ID is a unique identifier for the document.
	ID string

	// Content is the text that was embedded.
	Content string

	// Metadata holds exact-match filterable attributes such as
	// conversation_id, role, user_id or source.
	Metadata map[string]string

	// Embedding is the vector representation of Content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the cosine similarity to the query (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding whose
	// metadata matches every key/value pair in filter. A nil filter matches
	// everything. Results are ordered by descending Score.
	Query(ctx context.Context, embedding []float32, topK int, filter map[string]string) ([]QueryResult, error)

	// Get retrieves documents by their IDs.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// Matches reports whether metadata contains every pair in filter.
func Matches(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
