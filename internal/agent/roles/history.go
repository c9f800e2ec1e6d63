package roles

import (
	"fmt"
	"sort"
	"strings"

	"triad/internal/agent/ports"
	"triad/internal/shared/textutil"
)

const toolResultPreview = 2000

// historyForModel builds a request from state: the role's system prompt
// followed by the conversation. Tool activity stored on earlier assistant
// messages is rendered into their text so the request never carries
// tool_calls without the matching tool replies.
func historyForModel(systemPrompt string, state ports.WorkflowState) []ports.Message {
	out := make([]ports.Message, 0, len(state.Messages)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, ports.NewSystemMessage(systemPrompt))
	}
	for _, msg := range state.Messages {
		switch msg.Role {
		case ports.RoleAssistant:
			out = append(out, ports.Message{
				Role:    ports.RoleAssistant,
				Name:    msg.Name,
				Content: renderAssistant(msg),
				Source:  msg.Source,
			})
		case ports.RoleTool:
			out = append(out, ports.Message{
				Role:    ports.RoleUser,
				Content: renderResults(msg.ToolResults, msg.Content),
				Source:  ports.MessageSourceToolResult,
			})
		default:
			out = append(out, ports.Message{Role: msg.Role, Name: msg.Name, Content: msg.Content, Source: msg.Source})
		}
	}
	return out
}

func renderAssistant(msg ports.Message) string {
	if len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 {
		return msg.Content
	}
	var sb strings.Builder
	sb.WriteString("[tool activity]\n")
	results := make(map[string]ports.ToolResult, len(msg.ToolResults))
	for _, r := range msg.ToolResults {
		results[r.CallID] = r
	}
	for _, call := range msg.ToolCalls {
		fmt.Fprintf(&sb, "- %s(%s)", call.Name, renderArgs(call.Arguments))
		if r, ok := results[call.ID]; ok {
			status := "ok"
			if r.IsError {
				status = "error"
			}
			fmt.Fprintf(&sb, " -> %s: %s", status, textutil.SmartTruncate(r.Content, toolResultPreview))
		}
		sb.WriteString("\n")
	}
	if strings.TrimSpace(msg.Content) != "" {
		sb.WriteString("\n")
		sb.WriteString(msg.Content)
	}
	return sb.String()
}

func renderResults(results []ports.ToolResult, fallback string) string {
	if len(results) == 0 {
		return "Tool result:\n" + fallback
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Tool result (%s):\n%s", r.Name, textutil.SmartTruncate(r.Content, toolResultPreview))
	}
	return sb.String()
}

func renderArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, textutil.TruncateWithEllipsis(fmt.Sprint(args[k]), 80)))
	}
	return strings.Join(parts, ", ")
}

// renderPlan formats plan steps as a numbered list.
func renderPlan(steps []ports.PlanStep) string {
	var sb strings.Builder
	for i, step := range steps {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, step.Title)
		if detail := strings.TrimSpace(step.Detail); detail != "" {
			sb.WriteString(": ")
			sb.WriteString(detail)
		}
	}
	return sb.String()
}
