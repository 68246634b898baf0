// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/embeddings/gemini"
	"github.com/papercomputeco/parley/pkg/embeddings/ollama"
	"github.com/papercomputeco/parley/pkg/embeddings/openai"
)

// Base URLs for OpenAI-compatible embedding providers when TargetURL is empty.
var compatibleBaseURLs = map[string]string{
	"openai": "https://api.openai.com/v1",
	"zhipu":  "https://open.bigmodel.cn/api/paas/v4",
	"doubao": "https://ark.cn-beijing.volces.com/api/v3",
}

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Dimensions   uint
}

func NewEmbedder(ctx context.Context, o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case "openai", "zhipu", "doubao":
		baseURL := o.TargetURL
		if baseURL == "" {
			baseURL = compatibleBaseURLs[o.ProviderType]
		}
		return openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL: baseURL,
			APIKey:  o.APIKey,
			Model:   o.Model,
		})
	case "gemini":
		return gemini.NewEmbedder(ctx, gemini.EmbedderConfig{
			APIKey:     o.APIKey,
			Model:      o.Model,
			Dimensions: int(o.Dimensions),
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
