package ports

import (
	"context"

	jsonx "triad/internal/shared/json"
)

// LLMClient is the model handle: role-tagged messages in, one assistant
// message out.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// CompletionRequest contains all parameters for one model call.
type CompletionRequest struct {
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	// ResponseSchema asks providers that support it for a JSON response of
	// this shape. Providers without support ignore it.
	ResponseSchema *ResponseSchema `json:"response_schema,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// ResponseSchema names and describes an expected structured response.
type ResponseSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
	Usage      TokenUsage `json:"usage"`
	// Structured holds a provider-validated JSON payload when the request
	// carried a ResponseSchema and the provider honoured it.
	Structured jsonx.RawMessage `json:"structured,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}
