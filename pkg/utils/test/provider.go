package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/parley/pkg/llm"
	"github.com/papercomputeco/parley/pkg/llm/provider"
)

// ErrMockModel is returned by MockProvider when Fail is set.
var ErrMockModel = errors.New("mock model failure")

// MockProvider is a test provider that records prompts and replies with a
// configurable function.
type MockProvider struct {
	// Reply builds the reply text for a prompt. Defaults to echoing "ok".
	Reply func(prompt string) string

	// Fail causes Chat to return ErrMockModel.
	Fail bool

	// Block, when non-nil, makes Chat wait until it is closed or the
	// context is done.
	Block chan struct{}

	mu      sync.Mutex
	prompts []string
	closed  bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// MockFactory returns a gateway factory that always hands out p and records
// the configs it was called with.
func MockFactory(p *MockProvider, seen *[]provider.Config) func(context.Context, provider.Config) (provider.Provider, error) {
	return func(_ context.Context, cfg provider.Config) (provider.Provider, error) {
		if seen != nil {
			*seen = append(*seen, cfg)
		}
		return p, nil
	}
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].GetText()
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	fail, reply, block := m.Fail, m.Reply, m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail {
		return nil, ErrMockModel
	}

	text := "ok"
	if reply != nil {
		text = reply(prompt)
	}
	return &llm.ChatResponse{
		Model:   req.Model,
		Message: llm.NewTextMessage("assistant", text),
	}, nil
}

func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetFail toggles failure mode under the provider's lock.
func (m *MockProvider) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = fail
}

// Prompts returns a copy of every prompt received so far.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Closed reports whether Close was called.
func (m *MockProvider) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
