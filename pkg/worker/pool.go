// Package worker runs the background work that follows a persisted turn:
// indexing both messages into the vector store and publishing a turn event.
//
// The pool keeps this work off the reply path; a slow embedder or broker
// never delays a generate call.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/orchestrator"
	"github.com/papercomputeco/parley/pkg/retrieval"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// Indexer adds a persisted turn to the retrieval index.
type Indexer interface {
	IndexTurn(ctx context.Context, t retrieval.Turn) error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Indexer is optional; turns are not indexed without it.
	Indexer Indexer

	// Publisher is optional; no events are emitted without it.
	Publisher eventstream.Publisher

	// Source is stamped on every published event.
	Source eventstream.EventSource

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds the work done for one turn (defaults to 30s).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes persisted turns asynchronously. It implements
// orchestrator.Observer.
type Pool struct {
	config *Config
	queue  chan orchestrator.PersistedTurn
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ orchestrator.Observer = (*Pool)(nil)

// NewPool creates a Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan orchestrator.PersistedTurn, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// TurnPersisted enqueues the turn without blocking.
func (p *Pool) TurnPersisted(turn orchestrator.PersistedTurn) {
	p.Enqueue(turn)
}

// Enqueue submits a turn for processing. It returns false when the queue is
// full or the pool is closed, in which case the turn is dropped.
func (p *Pool) Enqueue(turn orchestrator.PersistedTurn) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "conversation_id", turn.ConversationID)
		return false
	}

	select {
	case p.queue <- turn:
		p.logger.Debug("job queued",
			"conversation_id", turn.ConversationID,
			"seq", turn.Seq,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"conversation_id", turn.ConversationID,
			"seq", turn.Seq,
		)
		return false
	}
}

// Close stops accepting turns and waits for queued ones to drain. The
// publisher is owned by the caller.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for turn := range p.queue {
		p.processJob(turn)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob indexes and publishes one turn. Failures are logged; the turn is
// already durable so nothing is retried.
func (p *Pool) processJob(turn orchestrator.PersistedTurn) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	if p.config.Indexer != nil {
		err := p.config.Indexer.IndexTurn(ctx, retrieval.Turn{
			ConversationID: turn.ConversationID,
			UserID:         turn.UserID,
			Seq:            turn.Seq,
			Human:          turn.Human,
			AI:             turn.AI,
		})
		if err != nil {
			p.logger.Warn("failed to index turn",
				"conversation_id", turn.ConversationID,
				"seq", turn.Seq,
				"error", err,
			)
		} else {
			p.logger.Debug("turn indexed",
				"conversation_id", turn.ConversationID,
				"seq", turn.Seq,
			)
		}
	}

	if p.config.Publisher != nil {
		event := eventstream.NewTurnPersistedEvent(p.config.Source, eventstream.TurnPayload{
			ConversationID: turn.ConversationID,
			UserID:         turn.UserID,
			Seq:            turn.Seq,
			Human:          turn.Human,
			AI:             turn.AI,
			PersistedAt:    turn.PersistedAt,
		})
		if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
			p.logger.Warn("failed to publish turn event",
				"conversation_id", turn.ConversationID,
				"event_id", event.EventID,
				"error", err,
			)
		}
	}
}
