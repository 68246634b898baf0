// Package provider defines the language model client interface and builds
// clients for each supported provider tag.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/papercomputeco/parley/pkg/llm"
)

// Provider is a constructed client for one language model backend.
// Implementations are safe for concurrent use.
type Provider interface {
	// Name returns the provider tag (e.g., "zhipu", "openai", "ollama").
	Name() string

	// Chat sends req and returns the provider's reply.
	Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// Close releases any resources held by the client.
	Close() error
}

// Config selects and configures a provider client.
type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}
