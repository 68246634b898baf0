package llm

// ChatRequest is the provider-neutral request each client translates into
// its own wire format. Nil generation parameters are left to the provider.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// System is sent out of band by providers that support it.
	System string `json:"system,omitempty"`

	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	// Extra carries settings only one provider understands, such as
	// Ollama's num_ctx and keep_alive.
	Extra map[string]any `json:"extra,omitempty"`
}

// NewPromptRequest wraps an assembled prompt as a single user message.
func NewPromptRequest(model, prompt string) *ChatRequest {
	return &ChatRequest{
		Model:    model,
		Messages: []Message{NewTextMessage(RoleUser, prompt)},
	}
}
