package storage

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
)

// Store is the conversation store used by the orchestrator. It layers a
// read-through cache over a Driver; the cache only ever holds what the
// driver has acknowledged.
//
// Store does not serialize writers for the same id. Callers that append to
// a conversation concurrently must hold a per-conversation lock.
type Store struct {
	driver Driver
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*conversation.Record
}

// NewStore wraps driver. A nil logger discards output.
func NewStore(driver Driver, log *slog.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		driver: driver,
		logger: log,
		cache:  make(map[string]*conversation.Record),
	}
}

// Load returns a copy of the record for id, empty when none exists.
func (s *Store) Load(ctx context.Context, id string) (*conversation.Record, error) {
	if id == "" {
		return nil, NewError("load", id, ErrEmptyID)
	}

	s.mu.RLock()
	cached, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	rec, err := s.driver.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	s.remember(rec)
	return rec.Clone(), nil
}

// Create durably writes an empty record for id.
func (s *Store) Create(ctx context.Context, id string) error {
	rec := conversation.New(id)
	if err := s.driver.Save(ctx, rec); err != nil {
		return err
	}

	s.remember(rec)
	s.logger.Debug("created conversation", "conversation_id", id)
	return nil
}

// AppendAndPersist appends a completed turn to the record for id and writes
// the whole record atomically. On failure neither the stored record nor the
// cache changes.
func (s *Store) AppendAndPersist(ctx context.Context, id, human, ai string) (*conversation.Record, error) {
	rec, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.Append(human, ai)
	if err := s.driver.Save(ctx, rec); err != nil {
		return nil, err
	}

	s.remember(rec)
	s.logger.Debug("persisted turn",
		"conversation_id", id,
		"turns", rec.Len(),
	)
	return rec.Clone(), nil
}

// List returns the ids of every stored conversation.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.driver.List(ctx)
}

// Forget drops id from the cache so the next Load reads the driver.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

// Close closes the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// remember caches a private copy of rec. The id is cloned because callers
// may pass strings backed by reused buffers.
func (s *Store) remember(rec *conversation.Record) {
	cached := rec.Clone()
	cached.ID = strings.Clone(rec.ID)

	s.mu.Lock()
	s.cache[cached.ID] = cached
	s.mu.Unlock()
}
