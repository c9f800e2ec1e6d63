package ports

import "strings"

// Role tags who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// MessageSource records which part of the system produced a message.
type MessageSource string

const (
	MessageSourceUnknown     MessageSource = ""
	MessageSourceUserInput   MessageSource = "user_input"
	MessageSourceAgent       MessageSource = "agent"
	MessageSourceToolResult  MessageSource = "tool_result"
	MessageSourceCompression MessageSource = "compression"
	MessageSourceInstruction MessageSource = "instruction"
)

// Message is one conversation entry. Messages are values: once appended to a
// WorkflowState they are never edited in place.
type Message struct {
	Role        Role          `json:"role"`
	Content     string        `json:"content"`
	Name        string        `json:"name,omitempty"`
	ToolCalls   []ToolCall    `json:"tool_calls,omitempty"`
	ToolResults []ToolResult  `json:"tool_results,omitempty"`
	Source      MessageSource `json:"source,omitempty"`
}

// NewUserMessage builds a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Source: MessageSourceUserInput}
}

// NewAssistantMessage builds an assistant-role message attributed to agent.
func NewAssistantMessage(agent, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Name: agent, Source: MessageSourceAgent}
}

// NewSystemMessage builds a system-role message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, Source: MessageSourceInstruction}
}

// Clone returns a deep copy so that the copy's slices can be handed to
// another owner.
func (m Message) Clone() Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			out.ToolCalls[i] = call.Clone()
		}
	}
	if len(m.ToolResults) > 0 {
		out.ToolResults = append([]ToolResult(nil), m.ToolResults...)
	}
	return out
}

// RenderTranscript flattens messages into a role-tagged plain text block, the
// form the context budget manager measures and summarizes.
func RenderTranscript(messages []Message) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.ToUpper(string(msg.Role)))
		if msg.Name != "" {
			sb.WriteString(" (")
			sb.WriteString(msg.Name)
			sb.WriteString(")")
		}
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		for _, call := range msg.ToolCalls {
			sb.WriteString("\n[tool call ")
			sb.WriteString(call.Name)
			sb.WriteString("]")
		}
		for _, result := range msg.ToolResults {
			sb.WriteString("\n[tool result] ")
			sb.WriteString(result.Content)
		}
	}
	return sb.String()
}
