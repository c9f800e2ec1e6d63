package roles

import (
	"context"
	"fmt"

	"triad/internal/agent/ports"
	"triad/internal/parser"
	jsonx "triad/internal/shared/json"
	"triad/internal/shared/logging"
)

// DefaultMaxToolRounds bounds how often one agent turn may go back to the
// model with tool results.
const DefaultMaxToolRounds = 6

// turn is the outcome of one bounded model and tool exchange.
type turn struct {
	content    string
	structured jsonx.RawMessage
	calls      []ports.ToolCall
	results    []ports.ToolResult
	usage      ports.TokenUsage
	rounds     int
}

// message folds the turn into the single assistant message an agent appends.
// Tool activity travels with it as an audit payload.
func (t turn) message(agent string) ports.Message {
	msg := ports.NewAssistantMessage(agent, t.content)
	msg.ToolCalls = t.calls
	msg.ToolResults = t.results
	return msg
}

type toolLoop struct {
	agent       string
	client      ports.LLMClient
	tools       ports.ToolSet
	maxRounds   int
	temperature float64
	maxTokens   int
	parser      *parser.ToolCallParser
	bound       func(context.Context, string) string
	logger      logging.Logger
}

// run calls the model until it answers without tool calls. Once maxRounds
// tool rounds have been spent the model is asked again without tools, so the
// final answer is always text.
func (l *toolLoop) run(ctx context.Context, messages []ports.Message, schema *ports.ResponseSchema, emit func(ports.StateDelta)) (turn, error) {
	var out turn
	msgs := append([]ports.Message(nil), messages...)

	for round := 0; ; round++ {
		offerTools := l.tools != nil && round < l.maxRounds
		req := ports.CompletionRequest{
			Messages:       msgs,
			Temperature:    l.temperature,
			MaxTokens:      l.maxTokens,
			ResponseSchema: schema,
			Metadata:       map[string]any{"agent": l.agent, "round": round},
		}
		if offerTools {
			req.Tools = l.tools.Definitions()
		}

		resp, err := l.client.Complete(ctx, req)
		if err != nil {
			return out, &ports.AdapterError{Agent: l.agent, Validation: "model call", Err: err}
		}
		if resp == nil {
			return out, &ports.AdapterError{Agent: l.agent, Validation: "model call", Err: fmt.Errorf("empty response")}
		}
		out.usage = out.usage.Add(resp.Usage)
		out.rounds = round + 1

		content := resp.Content
		calls := resp.ToolCalls
		if offerTools && len(calls) == 0 {
			if parsed := l.parser.Parse(content); len(parsed) > 0 {
				calls = parsed
				content = l.parser.Strip(content)
			}
		}
		if !offerTools || len(calls) == 0 {
			out.content = content
			out.structured = resp.Structured
			return out, nil
		}

		l.logger.Debug("%s: round %d requested %d tool call(s)", l.agent, round+1, len(calls))
		assistant := ports.Message{Role: ports.RoleAssistant, Name: l.agent, Content: content, ToolCalls: calls, Source: ports.MessageSourceAgent}
		results := make([]ports.ToolResult, 0, len(calls))
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			results = append(results, l.execute(ctx, call))
		}
		toolMsg := ports.Message{Role: ports.RoleTool, Name: l.agent, ToolResults: results, Source: ports.MessageSourceToolResult}
		msgs = append(msgs, assistant, toolMsg)
		out.calls = append(out.calls, calls...)
		out.results = append(out.results, results...)
		emit(ports.StateDelta{Agent: l.agent, Progress: true, Messages: []ports.Message{assistant.Clone(), toolMsg.Clone()}})
	}
}

// execute runs one call. Tool failures become error results the model can
// react to; they never abort the turn.
func (l *toolLoop) execute(ctx context.Context, call ports.ToolCall) ports.ToolResult {
	result := ports.ToolResult{CallID: call.ID, Name: call.Name}
	tool, ok := l.tools.Get(call.Name)
	if !ok {
		result.Content = fmt.Sprintf("unknown tool %q", call.Name)
		result.IsError = true
		return result
	}
	if err := l.parser.Validate(call, tool.Definition()); err != nil {
		result.Content = err.Error()
		result.IsError = true
		return result
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	content, err := tool.Invoke(ctx, args)
	if err != nil {
		l.logger.Warn("%s: tool %s failed: %v", l.agent, call.Name, err)
		result.Content = err.Error()
		result.IsError = true
		return result
	}
	if l.bound != nil {
		content = l.bound(ctx, content)
	}
	result.Content = content
	return result
}
