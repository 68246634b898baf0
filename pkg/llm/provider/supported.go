package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/papercomputeco/parley/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/parley/pkg/llm/provider/gemini"
	"github.com/papercomputeco/parley/pkg/llm/provider/ollama"
	"github.com/papercomputeco/parley/pkg/llm/provider/openai"
)

// Supported provider type constants
const (
	Zhipu     = "zhipu"
	Doubao    = "doubao"
	OpenAI    = "openai"
	Ollama    = "ollama"
	Anthropic = "anthropic"
	Gemini    = "gemini"
)

// defaults holds the endpoint and model used when the config leaves them empty.
var defaults = map[string]struct {
	baseURL string
	model   string
}{
	Zhipu:     {baseURL: "https://open.bigmodel.cn/api/paas/v4", model: "glm-4"},
	Doubao:    {baseURL: "https://ark.cn-beijing.volces.com/api/v3"},
	OpenAI:    {baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
	Ollama:    {baseURL: "http://localhost:11434", model: "llama3.2"},
	Anthropic: {baseURL: "https://api.anthropic.com", model: "claude-3-5-haiku-latest"},
	Gemini:    {model: "gemini-2.5-flash"},
}

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{Zhipu, Doubao, OpenAI, Ollama, Anthropic, Gemini}
}

// IsSupported reports whether tag names a provider New can build.
func IsSupported(tag string) bool {
	_, ok := defaults[tag]
	return ok
}

// RequiresAPIKey reports whether the provider needs an API key.
func RequiresAPIKey(tag string) bool {
	return tag != Ollama
}

// DefaultBaseURL returns the endpoint used when none is configured.
func DefaultBaseURL(tag string) string {
	return defaults[tag].baseURL
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(tag string) string {
	return defaults[tag].model
}

// New creates a client for cfg.Provider, filling in the provider's default
// endpoint and model. It returns an error for unknown provider tags and for
// incomplete configuration; no network calls are made.
func New(ctx context.Context, cfg Config) (Provider, error) {
	tag := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if !IsSupported(tag) {
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", cfg.Provider, SupportedProviders())
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL(tag)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(tag)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider %s requires a model name", tag)
	}
	if cfg.APIKey == "" && RequiresAPIKey(tag) {
		return nil, fmt.Errorf("provider %s requires an API key", tag)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	switch tag {
	case Zhipu, Doubao, OpenAI:
		return openai.New(openai.Config{
			Name:       tag,
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		})
	case Ollama:
		return ollama.New(ollama.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		})
	case Anthropic:
		return anthropic.New(anthropic.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		})
	default:
		return gemini.New(ctx, gemini.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		})
	}
}
