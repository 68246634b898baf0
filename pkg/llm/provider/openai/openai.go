// Package openai is the client for OpenAI-compatible chat completion APIs,
// used for OpenAI itself and for the Zhipu and Doubao endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/papercomputeco/parley/pkg/llm"
)

// Config configures a Client.
type Config struct {
	// Name is the provider tag reported by Name().
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client implements provider.Provider over go-openai.
type Client struct {
	name   string
	model  string
	client *goopenai.Client
}

// New creates a client. BaseURL must point at the API root that serves
// /chat/completions.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai-compatible client requires an API key")
	}

	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	return &Client{
		name:   name,
		model:  cfg.Model,
		client: goopenai.NewClientWithConfig(oc),
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Chat sends a chat completion request and returns the first choice.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.GetText(),
		})
	}

	creq := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stop:     req.Stop,
	}
	if req.MaxTokens != nil {
		creq.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		creq.TopP = float32(*req.TopP)
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s chat completion returned no choices", c.name)
	}

	choice := resp.Choices[0]
	result := &llm.ChatResponse{
		Model:      resp.Model,
		Message:    llm.NewTextMessage(choice.Message.Role, choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if resp.Created > 0 {
		result.CreatedAt = time.Unix(resp.Created, 0)
	}

	return result, nil
}

// Close is a no-op; the HTTP client is shared.
func (c *Client) Close() error {
	return nil
}
