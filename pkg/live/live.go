// Package live turns a stream of viewer chat messages into replies. Each
// viewer keeps one conversation for the life of the dispatcher, messages are
// answered by a bounded set of workers, and a failed generation yields a
// short apology instead of silence.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/llm/gateway"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/orchestrator"
	"github.com/papercomputeco/parley/pkg/prompt"
	"github.com/papercomputeco/parley/pkg/retrieval"
)

const (
	// BusyReply is sent when the model has nothing to say.
	BusyReply = "抱歉，我现在有点忙，稍后再和你聊吧~"

	// ErrorReply is sent when generation fails.
	ErrorReply = "哎呀，刚才发生了一点小问题，我们换个话题聊聊吧~"
)

var (
	defaultNumWorkers uint = 2
	defaultQueueSize  uint = 128
	defaultTimeout         = 60 * time.Second
)

// ErrQueueFull is returned by Submit when the message was dropped.
var ErrQueueFull = errors.New("live message queue is full")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("live dispatcher is closed")

// Message is one viewer chat message.
type Message struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Content  string `json:"content"`
}

// Reply is the answer to a Message.
type Reply struct {
	Message        Message `json:"message"`
	Text           string  `json:"text"`
	ConversationID string  `json:"conversation_id"`

	// Err is the generation failure behind an apology reply, if any.
	Err error `json:"-"`
}

// Generator is the subset of *orchestrator.Orchestrator the dispatcher uses.
type Generator interface {
	Generate(ctx context.Context, prompt, conversationID string, opts ...orchestrator.GenerateOption) (*orchestrator.Result, error)
}

// Templates loads persona templates. *prompt.Loader implements it.
type Templates interface {
	Load(name string) (string, error)
}

// Sink receives every reply.
type Sink interface {
	Deliver(ctx context.Context, r Reply) error
}

// Config wires a Dispatcher.
type Config struct {
	Generator Generator

	// Templates and Persona select the persona prompt. Without them the
	// viewer line is sent alone.
	Templates Templates
	Persona   string

	// ScopeToViewer restricts retrieval to passages indexed for the same
	// viewer.
	ScopeToViewer bool

	Sink Sink

	NumWorkers uint
	QueueSize  uint

	// Timeout bounds one generation (defaults to 60s).
	Timeout time.Duration

	Logger *slog.Logger
}

// Dispatcher answers viewer messages in the background.
type Dispatcher struct {
	config *Config
	queue  chan Message
	wg     sync.WaitGroup
	logger *slog.Logger

	viewersMu sync.Mutex
	viewers   map[string]string

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher validates c and starts the workers.
func NewDispatcher(c *Config) (*Dispatcher, error) {
	if c.Generator == nil {
		return nil, errors.New("live dispatcher requires a generator")
	}
	if c.Sink == nil {
		return nil, errors.New("live dispatcher requires a sink")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	d := &Dispatcher{
		config:  c,
		queue:   make(chan Message, c.QueueSize),
		logger:  c.Logger,
		viewers: make(map[string]string),
	}

	d.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go d.worker(i)
	}
	return d, nil
}

// Submit queues msg without blocking.
func (d *Dispatcher) Submit(msg Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return errors.New("live message has no content")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- msg:
		d.logger.Debug("live message queued", "user_id", msg.UserID)
		return nil
	default:
		d.logger.Error("live message dropped, queue full", "user_id", msg.UserID)
		return ErrQueueFull
	}
}

// Handle answers msg synchronously and delivers the reply to the sink.
// The returned reply is always usable; Err records a generation failure.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) Reply {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	reply := Reply{Message: msg, ConversationID: d.ConversationFor(msg.UserID)}

	text, err := d.personaPrompt(msg)
	if err != nil {
		reply.Text, reply.Err = ErrorReply, err
		d.deliver(ctx, reply)
		return reply
	}

	opts := []orchestrator.GenerateOption{
		orchestrator.WithUserID(msg.UserID),
		orchestrator.WithQuery(msg.Content),
	}
	if d.config.ScopeToViewer && msg.UserID != "" {
		opts = append(opts, orchestrator.WithFilter(map[string]string{retrieval.MetaUserID: msg.UserID}))
	}

	res, err := d.config.Generator.Generate(ctx, text, reply.ConversationID, opts...)
	switch {
	case err != nil:
		d.logger.Warn("live generation failed",
			"user_id", msg.UserID,
			"conversation_id", reply.ConversationID,
			"error", err,
		)
		reply.Text, reply.Err = ErrorReply, err
	case strings.TrimSpace(res.Response) == "" || res.Response == gateway.Placeholder:
		reply.Text = BusyReply
	default:
		reply.Text = res.Response
	}

	d.deliver(ctx, reply)
	return reply
}

// ConversationFor returns the viewer's conversation id, assigning one on
// first sight. An anonymous viewer gets a fresh id every time.
func (d *Dispatcher) ConversationFor(userID string) string {
	if userID == "" {
		return conversation.NewID()
	}

	d.viewersMu.Lock()
	defer d.viewersMu.Unlock()

	id, ok := d.viewers[userID]
	if !ok {
		id = conversation.NewID()
		d.viewers[userID] = id
	}
	return id
}

// Close stops accepting messages and waits for queued ones to be answered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(id uint) {
	defer d.wg.Done()
	d.logger.Debug("live worker started", "worker_id", id)

	for msg := range d.queue {
		d.Handle(context.Background(), msg)
	}

	d.logger.Debug("live worker stopped", "worker_id", id)
}

// personaPrompt renders the persona template around the viewer's line. A
// template without the input placeholder gets the line appended.
func (d *Dispatcher) personaPrompt(msg Message) (string, error) {
	line := viewerLine(msg)
	if d.config.Templates == nil || d.config.Persona == "" {
		return line, nil
	}

	tmpl, err := d.config.Templates.Load(d.config.Persona)
	if err != nil {
		return "", fmt.Errorf("loading persona %q: %w", d.config.Persona, err)
	}

	if strings.Contains(tmpl, prompt.InputPlaceholder) {
		return strings.ReplaceAll(tmpl, prompt.InputPlaceholder, line), nil
	}
	return tmpl + "\n\n" + line, nil
}

func viewerLine(msg Message) string {
	content := strings.TrimSpace(msg.Content)
	if msg.Username == "" {
		return content
	}
	return msg.Username + "：" + content
}

func (d *Dispatcher) deliver(ctx context.Context, r Reply) {
	if err := d.config.Sink.Deliver(context.WithoutCancel(ctx), r); err != nil {
		d.logger.Error("failed to deliver live reply",
			"user_id", r.Message.UserID,
			"error", err,
		)
	}
}
