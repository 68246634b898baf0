package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/parley/pkg/llm"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// APIKey is optional; it is sent as a bearer token for proxied servers.
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client implements provider.Provider against Ollama's /api/chat.
type Client struct {
	model string
	http  *resty.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama client requires a base URL")
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rc.SetAuthToken(cfg.APIKey)
	}

	return &Client{model: cfg.Model, http: rc}, nil
}

func (c *Client) Name() string {
	return "ollama"
}

// Chat sends a non-streaming chat request.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body := ollamaRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(req.Messages)+1),
		Stream:   false,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, ollamaMessage{Role: m.Role, Content: m.GetText()})
	}

	if req.Temperature != nil || req.TopP != nil || req.TopK != nil || req.Seed != nil || req.MaxTokens != nil || len(req.Stop) > 0 {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			TopK:        req.TopK,
			Seed:        req.Seed,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		}
	}
	if n, ok := req.Extra["num_ctx"].(int); ok {
		if body.Options == nil {
			body.Options = &ollamaOptions{}
		}
		body.Options.NumCtx = &n
	}
	if ka, ok := req.Extra["keep_alive"].(string); ok {
		body.KeepAlive = ka
	}

	var (
		out     ollamaResponse
		errBody ollamaError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&errBody).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if resp.IsError() {
		if errBody.Error != "" {
			return nil, fmt.Errorf("ollama chat: status %d: %s", resp.StatusCode(), errBody.Error)
		}
		return nil, fmt.Errorf("ollama chat: status %d", resp.StatusCode())
	}

	return toChatResponse(&out, resp.Body()), nil
}

// Close is a no-op; the HTTP client is shared.
func (c *Client) Close() error {
	return nil
}

func toChatResponse(resp *ollamaResponse, raw []byte) *llm.ChatResponse {
	role := resp.Message.Role
	if role == "" {
		role = llm.RoleAssistant
	}

	stop := resp.DoneReason
	if stop == "" && resp.Done {
		stop = "stop"
	}

	out := &llm.ChatResponse{
		Model:      resp.Model,
		CreatedAt:  resp.CreatedAt,
		Message:    llm.NewTextMessage(role, resp.Message.Content),
		StopReason: stop,
		Raw:        raw,
	}
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		out.Usage = &llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			Duration:         time.Duration(resp.TotalDuration),
		}
	}
	return out
}
