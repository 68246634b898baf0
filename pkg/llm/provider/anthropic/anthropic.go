// Package anthropic is the client for Anthropic's Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/parley/pkg/llm"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client implements provider.Provider against /v1/messages.
type Client struct {
	model string
	http  *resty.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic client requires an API key")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("anthropic client requires a base URL")
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", apiVersion)

	return &Client{model: cfg.Model, http: rc}, nil
}

func (c *Client) Name() string {
	return "anthropic"
}

func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := anthropicRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Stop:        req.Stop,
		Messages:    make([]anthropicMessage, 0, len(req.Messages)),
	}
	if body.Model == "" {
		body.Model = c.model
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.GetText()})
	}

	var (
		out     anthropicResponse
		errBody anthropicError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&errBody).
		Post("/v1/messages")
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	if resp.IsError() {
		if errBody.Error.Message != "" {
			return nil, fmt.Errorf("anthropic messages: status %d: %s", resp.StatusCode(), errBody.Error.Message)
		}
		return nil, fmt.Errorf("anthropic messages: status %d", resp.StatusCode())
	}

	return toChatResponse(&out, resp.Body()), nil
}

// Close is a no-op; the HTTP client is shared.
func (c *Client) Close() error {
	return nil
}

func toChatResponse(resp *anthropicResponse, raw []byte) *llm.ChatResponse {
	msg := llm.Message{Role: resp.Role}
	for _, block := range resp.Content {
		if block.Type == llm.BlockText {
			msg.Content = append(msg.Content, llm.ContentBlock{Type: llm.BlockText, Text: block.Text})
		}
	}

	out := &llm.ChatResponse{
		Model:      resp.Model,
		CreatedAt:  time.Now(),
		Message:    msg,
		StopReason: resp.StopReason,
		Raw:        raw,
	}
	if u := resp.Usage; u != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
			TotalTokens:      u.InputTokens + u.OutputTokens,
		}
	}
	return out
}
