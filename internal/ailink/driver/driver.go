package driver

import (
	"context"
	"strings"
)

// Driver defines the interface for chat completion providers.
type Driver interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "openai").
	Name() string
	// Capabilities returns what this driver supports.
	Capabilities() Capabilities
}

// Capabilities describes driver features.
type Capabilities struct {
	SupportsJSONMode  bool
	SupportsSystem    bool
	SupportsStreaming bool
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
	// JSONMode asks providers that support it for a JSON object reply.
	JSONMode bool
	Metadata map[string]string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Text         string
	Model        string
	FinishReason string
	Usage        *Usage
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// PromptText joins system and message text, used for local token estimates.
func (r *Request) PromptText() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Messages)+1)
	if strings.TrimSpace(r.System) != "" {
		parts = append(parts, r.System)
	}
	for _, msg := range r.Messages {
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, "\n")
}
