// Package ollama embeds text with a local Ollama server's /api/embed endpoint.
package ollama

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/utils"
	"github.com/papercomputeco/parley/pkg/vector"
)

const (
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultBaseURL        = "http://localhost:11434"

	requestTimeout = 2 * time.Minute
)

// EmbedderConfig configures NewEmbedder. Empty fields take the defaults.
type EmbedderConfig struct {
	BaseURL string
	Model   string
}

// Embedder is safe for concurrent use.
type Embedder struct {
	model string
	http  *resty.Client
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type apiError struct {
	Error string `json:"error"`
}

func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cmp.Or(cfg.BaseURL, DefaultBaseURL), "/")).
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", utils.UserAgent()).
		// Ollama answers 503 while it loads a model into memory.
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, _ error) bool {
			return r != nil && r.StatusCode() == http.StatusServiceUnavailable
		})

	return &Embedder{
		model: cmp.Or(cfg.Model, DefaultEmbeddingModel),
		http:  client,
	}, nil
}

// Embed returns the embedding of text. Every failure wraps vector.ErrEmbedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var (
		out    embedResponse
		failed apiError
	)
	resp, err := e.http.R().
		SetContext(ctx).
		SetBody(embedRequest{Model: e.model, Input: text}).
		SetResult(&out).
		SetError(&failed).
		Post("/api/embed")
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", vector.ErrEmbedding, err)
	}

	if resp.IsError() {
		msg := cmp.Or(failed.Error, strings.TrimSpace(resp.String()))
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", vector.ErrEmbedding, resp.StatusCode(), msg)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", vector.ErrEmbedding)
	}
	return out.Embeddings[0], nil
}

func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
