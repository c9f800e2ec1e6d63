package ports

import (
	"context"
	"maps"
)

// Tool is the narrow handle the core passes down to agents. The core never
// inspects a tool beyond its name, description and schema.
type Tool interface {
	Name() string
	Description() string
	Definition() ToolDefinition
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// ToolCall is a model's request to run one tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Clone copies the argument map.
func (c ToolCall) Clone() ToolCall {
	out := c
	if c.Arguments != nil {
		out.Arguments = maps.Clone(c.Arguments)
	}
	return out
}

// ToolResult is the outcome of one ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes a tool to a model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema is the JSON-schema subset tools use for their arguments.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}

// ToolSet resolves tools by name for one agent.
type ToolSet interface {
	Get(name string) (Tool, bool)
	Definitions() []ToolDefinition
	Names() []string
}
