// Package gateway wraps a language model provider behind a single
// text-in text-out Invoke call with lazy, retryable construction.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/parley/pkg/credentials"
	"github.com/papercomputeco/parley/pkg/llm"
	"github.com/papercomputeco/parley/pkg/llm/provider"
	"github.com/papercomputeco/parley/pkg/logger"
)

// Placeholder replaces empty or whitespace-only model replies.
const Placeholder = "（暂无回复）"

// Factory builds a provider client. provider.New is used when nil.
type Factory func(ctx context.Context, cfg provider.Config) (provider.Provider, error)

// Config is the immutable model session loaded at startup.
type Config struct {
	Primary provider.Config

	// Fallback is tried only when Primary cannot be constructed.
	Fallback *provider.Config

	// Extra generation parameters: temperature, max_tokens, top_p, top_k,
	// system and stop.
	Extra map[string]any

	// Credentials resolves API keys left empty in Primary or Fallback.
	// Environment variables are still consulted when nil.
	Credentials *credentials.Manager

	Factory Factory
	Logger  *slog.Logger
}

// Gateway is safe for concurrent use. The provider client is constructed on
// first use behind mu and shared by all callers afterwards.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client provider.Provider
	active provider.Config
}

func New(cfg Config) *Gateway {
	if cfg.Factory == nil {
		cfg.Factory = provider.New
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Gateway{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Ready reports whether a provider client has been constructed.
func (g *Gateway) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.client != nil
}

// Provider returns the tag of the constructed client, or "" when not ready.
func (g *Gateway) Provider() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return ""
	}
	return g.active.Provider
}

// Ensure constructs the provider client if it has not been constructed yet.
// It is idempotent; after a failure the gateway stays unready and the next
// call retries.
func (g *Gateway) Ensure(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return nil
	}

	client, active, err := g.construct(ctx, g.cfg.Primary)
	if err != nil && g.cfg.Fallback != nil && provider.IsSupported(active.Provider) {
		g.logger.Warn("primary model unavailable, trying fallback",
			"provider", g.cfg.Primary.Provider,
			"fallback", g.cfg.Fallback.Provider,
			"error", err,
		)

		var fbErr error
		client, active, fbErr = g.construct(ctx, *g.cfg.Fallback)
		if fbErr != nil {
			return errors.Join(err, fbErr)
		}
		err = nil
	}
	if err != nil {
		return err
	}

	g.client = client
	g.active = active
	g.logger.Info("model client ready", "provider", active.Provider, "model", active.Model)
	return nil
}

func (g *Gateway) construct(ctx context.Context, cfg provider.Config) (provider.Provider, provider.Config, error) {
	tag := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if !provider.IsSupported(tag) {
		return nil, cfg, &ConfigurationError{
			Provider: cfg.Provider,
			Err:      fmt.Errorf("unsupported provider (supported: %v)", provider.SupportedProviders()),
		}
	}
	cfg.Provider = tag

	if cfg.APIKey == "" && provider.RequiresAPIKey(tag) {
		key, source, err := g.cfg.Credentials.Resolve(tag, "")
		if err != nil {
			return nil, cfg, &ConfigurationError{Provider: tag, Err: err}
		}
		if key == "" {
			return nil, cfg, &ConfigurationError{
				Provider: tag,
				Err:      fmt.Errorf("no API key (set it with 'parley auth %s' or $%s)", tag, credentials.EnvVarForProvider(tag)),
			}
		}
		g.logger.Debug("resolved API key", "provider", tag, "source", string(source))
		cfg.APIKey = key
	}

	if cfg.Model == "" {
		cfg.Model = provider.DefaultModel(tag)
	}

	client, err := g.cfg.Factory(ctx, cfg)
	if err != nil {
		return nil, cfg, &ConfigurationError{Provider: tag, Err: err}
	}
	return client, cfg, nil
}

// Invoke sends prompt as a single user message and returns the reply text.
// Construction failures are returned as *ConfigurationError, provider
// failures as *ModelError.
func (g *Gateway) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := g.Ensure(ctx); err != nil {
		return "", err
	}

	g.mu.Lock()
	client, model := g.client, g.active.Model
	g.mu.Unlock()

	req := llm.NewPromptRequest(model, prompt)
	applyExtra(req, g.cfg.Extra)

	resp, err := client.Chat(ctx, req)
	if err != nil {
		return "", &ModelError{Reason: err.Error(), Err: err}
	}
	g.logger.Debug("model replied",
		"model", model,
		"stop_reason", resp.StopReason,
		"tokens", resp.Usage.Tokens(),
	)

	reply := llm.Text(resp)
	if strings.TrimSpace(reply) == "" {
		return Placeholder, nil
	}
	return reply, nil
}

// Close releases the provider client. The gateway may be reconstructed by a
// later call to Ensure.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
