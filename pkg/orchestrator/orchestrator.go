// Package orchestrator runs one conversational turn end to end: resolve the
// conversation, load its history, retrieve context, assemble the prompt,
// invoke the model and durably record the exchange.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/prompt"
	"github.com/papercomputeco/parley/pkg/retrieval"
	"github.com/papercomputeco/parley/pkg/storage"
)

// Model is the language model the orchestrator drives. *gateway.Gateway
// implements it.
type Model interface {
	Ensure(ctx context.Context) error
	Invoke(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Retriever finds passages for a query. It never fails; *retrieval.Gateway
// implements it.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filter map[string]string) []retrieval.Passage
}

// PersistedTurn describes a turn that has been durably recorded.
type PersistedTurn struct {
	ConversationID string
	UserID         string
	Seq            int
	Human          string
	AI             string
	PersistedAt    time.Time
}

// Observer is told about every persisted turn. It must not block.
type Observer interface {
	TurnPersisted(turn PersistedTurn)
}

// Result is the outcome of a successful Generate.
type Result struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// Config wires an Orchestrator.
type Config struct {
	Store *storage.Store
	Model Model

	// Retriever is optional; without it prompts carry no retrieved context.
	Retriever Retriever
	TopK      int

	Assembler prompt.Assembler

	// Observer is optional.
	Observer Observer

	Logger *slog.Logger
}

// State is the lifecycle state of an Orchestrator.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Orchestrator is safe for concurrent use. Calls for the same conversation
// are serialized from history load through persist; calls for different
// conversations run in parallel.
type Orchestrator struct {
	store     *storage.Store
	model     Model
	retriever Retriever
	topK      int
	assembler prompt.Assembler
	observer  Observer
	logger    *slog.Logger

	locks *keyedLock

	mu    sync.RWMutex
	state State
}

// New creates an Orchestrator. The model is constructed lazily on the first
// Generate or by Init.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator requires a conversation store")
	}
	if cfg.Model == nil {
		return nil, errors.New("orchestrator requires a model")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Orchestrator{
		store:     cfg.Store,
		model:     cfg.Model,
		retriever: cfg.Retriever,
		topK:      cfg.TopK,
		assembler: cfg.Assembler,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		locks:     newKeyedLock(),
		state:     StateUninitialized,
	}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Init constructs the model if needed. A failure leaves the orchestrator
// uninitialized and may be retried.
func (o *Orchestrator) Init(ctx context.Context) error {
	o.mu.RLock()
	state := o.state
	o.mu.RUnlock()

	switch state {
	case StateClosed:
		return ErrClosed
	case StateReady:
		return nil
	}

	if err := o.model.Ensure(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	if o.state == StateUninitialized {
		o.state = StateReady
	}
	o.mu.Unlock()
	return nil
}

type generateOptions struct {
	userID      string
	query       string
	filter      map[string]string
	noRetrieval bool
}

// GenerateOption adjusts a single Generate call.
type GenerateOption func(*generateOptions)

// WithUserID tags the persisted turn with the caller's user id.
func WithUserID(id string) GenerateOption {
	return func(o *generateOptions) { o.userID = id }
}

// WithQuery overrides the retrieval query, which defaults to the prompt.
func WithQuery(q string) GenerateOption {
	return func(o *generateOptions) { o.query = q }
}

// WithFilter restricts retrieval to passages whose metadata matches filter.
func WithFilter(filter map[string]string) GenerateOption {
	return func(o *generateOptions) { o.filter = filter }
}

// WithoutRetrieval skips retrieval for this call.
func WithoutRetrieval() GenerateOption {
	return func(o *generateOptions) { o.noRetrieval = true }
}

// Generate runs one turn. An empty conversationID mints a new conversation
// and durably records it before the model is called; an unknown id starts a
// new conversation under that id. On any failure the result is nil and the
// error is a *GenerationError; no turn is recorded unless the model replied.
//
// Cancelling ctx abandons the call up to the model reply. Once persisting
// starts it runs to completion.
func (o *Orchestrator) Generate(ctx context.Context, promptText, conversationID string, opts ...GenerateOption) (*Result, error) {
	var options generateOptions
	for _, opt := range opts {
		opt(&options)
	}

	if err := o.Init(ctx); err != nil {
		return nil, fail(StageInitializing, conversationID, err)
	}

	id := conversationID
	minted := id == ""
	if minted {
		id = conversation.NewID()
	}

	unlock, err := o.locks.Lock(ctx, id)
	if err != nil {
		return nil, fail(StageResolvingID, id, err)
	}
	defer unlock()

	if minted {
		if err := o.store.Create(ctx, id); err != nil {
			return nil, fail(StageResolvingID, id, err)
		}
		o.logger.Info("started conversation", "conversation_id", id)
	}

	rec, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, fail(StageLoadingHistory, id, err)
	}

	var passages []retrieval.Passage
	if o.retriever != nil && !options.noRetrieval && o.topK > 0 {
		query := options.query
		if query == "" {
			query = promptText
		}
		passages = o.retriever.Search(ctx, query, o.topK, options.filter)
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(StageAssembling, id, err)
	}
	assembled := o.assembler.Build(rec.Turns, passages, promptText)

	o.logger.Debug("invoking model",
		"conversation_id", id,
		"history_turns", rec.Len(),
		"passages", len(passages),
		"prompt_chars", len(assembled),
	)

	reply, err := o.model.Invoke(ctx, assembled)
	if err != nil {
		o.logger.Warn("model invocation failed", "conversation_id", id, "error", err)
		return nil, fail(StageInvokingModel, id, err)
	}

	saved, err := o.store.AppendAndPersist(context.WithoutCancel(ctx), id, promptText, reply)
	if err != nil {
		o.logger.Error("failed to persist turn", "conversation_id", id, "error", err)
		return nil, fail(StagePersisting, id, err)
	}

	if o.observer != nil {
		o.observer.TurnPersisted(PersistedTurn{
			ConversationID: id,
			UserID:         options.userID,
			Seq:            saved.Len() - 1,
			Human:          promptText,
			AI:             reply,
			PersistedAt:    time.Now(),
		})
	}

	return &Result{Response: reply, ConversationID: id}, nil
}

// History returns the stored record for id, empty when none exists.
func (o *Orchestrator) History(ctx context.Context, id string) (*conversation.Record, error) {
	return o.store.Load(ctx, id)
}

// Conversations lists every stored conversation id.
func (o *Orchestrator) Conversations(ctx context.Context) ([]string, error) {
	return o.store.List(ctx)
}

// Close releases the model. In-flight calls are not interrupted; later
// calls fail with ErrClosed. The store is owned by the caller.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.state == StateClosed {
		o.mu.Unlock()
		return nil
	}
	o.state = StateClosed
	o.mu.Unlock()

	return o.model.Close()
}
