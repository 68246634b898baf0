// Package storage persists conversation records.
package storage

import (
	"context"

	"github.com/papercomputeco/parley/pkg/conversation"
)

// Driver defines the interface for persisting and retrieving conversation
// records in a storage backend.
type Driver interface {
	// Load returns the record for id. A conversation that was never stored
	// yields an empty record and a nil error; errors are reserved for I/O
	// failures.
	Load(ctx context.Context, id string) (*conversation.Record, error)

	// Save replaces the stored record with rec as a single atomic operation.
	// On failure the previously stored record is left untouched.
	Save(ctx context.Context, rec *conversation.Record) error

	// List returns the ids of every stored conversation.
	List(ctx context.Context) ([]string, error)

	// Close closes the store and releases any resources.
	Close() error
}
