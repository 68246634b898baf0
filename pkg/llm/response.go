package llm

import (
	"encoding/json"
	"time"
)

// ChatResponse is what a provider client returns from Chat.
type ChatResponse struct {
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	Message    Message   `json:"message"`
	StopReason string    `json:"stop_reason,omitempty"`

	// Usage is nil when the provider reports no accounting.
	Usage *Usage `json:"usage,omitempty"`

	// Raw is the undecoded provider payload, kept for debug logging.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Usage is the token accounting reported for one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Duration is the provider-side generation time when reported.
	Duration time.Duration `json:"duration,omitempty"`
}

// Tokens returns the total token count, summing the parts when the
// provider left TotalTokens empty. A nil Usage counts as zero.
func (u *Usage) Tokens() int {
	if u == nil {
		return 0
	}
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}
