// Package inmemory provides a map-backed conversation store for tests and
// ephemeral sessions.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu guards records
	mu sync.RWMutex

	// records is keyed by conversation id
	records map[string]*conversation.Record
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string]*conversation.Record),
	}
}

// Load returns a copy of the stored record or an empty record.
func (d *Driver) Load(_ context.Context, id string) (*conversation.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[id]
	if !ok {
		return conversation.New(id), nil
	}
	return rec.Clone(), nil
}

// Save replaces the stored record.
func (d *Driver) Save(_ context.Context, rec *conversation.Record) error {
	if rec == nil {
		return errors.New("cannot store nil record")
	}
	if rec.ID == "" {
		return storage.NewError("save", "", storage.ErrEmptyID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.records[rec.ID] = rec.Clone()
	return nil
}

// List returns the stored ids in lexical order.
func (d *Driver) List(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.records))
	for id := range d.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}
