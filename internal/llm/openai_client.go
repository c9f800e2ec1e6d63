package llm

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"triad/internal/agent/ports"
	"triad/internal/shared/errors"
	jsonx "triad/internal/shared/json"
	"triad/internal/shared/logging"
)

// openaiClient talks to any endpoint that speaks the chat completions API.
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
	maxRetries int
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(cfg Config, logger logging.Logger) (ports.LLMClient, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &openaiClient{
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(logger),
		headers:    cfg.Headers,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *openaiClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	requestID := extractRequestID(req.Metadata)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	payload := map[string]any{
		"model":    c.model,
		"messages": convertMessages(req.Messages),
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		payload["tools"] = convertTools(req.Tools)
		payload["tool_choice"] = "auto"
	}
	if req.ResponseSchema != nil {
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.ResponseSchema.Name,
				"schema": req.ResponseSchema.Schema,
			},
		}
	}

	body, err := jsonx.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("%s=== LLM Request ===", prefix)
	c.logger.Debug("%sURL: POST %s/chat/completions", prefix, c.baseURL)
	c.logger.Debug("%sModel: %s, messages: %d, tools: %d", prefix, c.model, len(req.Messages), len(req.Tools))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.maxRetries > 0 {
		httpReq.Header.Set("X-Retry-Limit", strconv.Itoa(c.maxRetries))
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, errors.NewTransientError(err, "Model endpoint unreachable. Please retry.")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientError(err, "Failed to read model response.")
	}
	c.logger.Debug("%sResponse status: %d, %d bytes", prefix, resp.StatusCode, len(respBody))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, mapHTTPError(resp.StatusCode, respBody)
	}

	var decoded chatResponse
	if err := jsonx.Unmarshal(respBody, &decoded); err != nil {
		return nil, errors.NewTransientError(fmt.Errorf("decode response: %w", err), "Model returned malformed JSON. Please retry.")
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		msg := decoded.Error.Message
		if decoded.Error.Type != "" {
			msg = decoded.Error.Type + ": " + msg
		}
		return nil, mapHTTPError(resp.StatusCode, []byte(msg))
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.NewTransientError(stderrors.New("no choices in response"), "Model returned an empty response. Please retry.")
	}

	choice := decoded.Choices[0]
	result := &ports.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: ports.TokenUsage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}
	if req.ResponseSchema != nil {
		trimmed := strings.TrimSpace(choice.Message.Content)
		if trimmed != "" && jsonx.Valid([]byte(trimmed)) {
			result.Structured = jsonx.RawMessage(trimmed)
		}
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			c.logger.Debug("%sDropping tool call %s with unparseable arguments: %v", prefix, tc.Function.Name, err)
			continue
		}
		result.ToolCalls = append(result.ToolCalls, ports.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	c.logger.Debug("%sStop reason: %s, content: %d chars, tool calls: %d, tokens: %d+%d=%d",
		prefix, result.StopReason, len(result.Content), len(result.ToolCalls),
		result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens)
	return result, nil
}

func convertMessages(msgs []ports.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == ports.RoleTool {
			for _, result := range msg.ToolResults {
				out = append(out, chatMessage{Role: string(ports.RoleTool), Content: result.Content, ToolCallID: result.CallID})
			}
			if len(msg.ToolResults) == 0 {
				out = append(out, chatMessage{Role: string(ports.RoleTool), Content: msg.Content})
			}
			continue
		}
		entry := chatMessage{Role: string(msg.Role), Content: msg.Content}
		if msg.Role == ports.RoleAssistant {
			for _, call := range msg.ToolCalls {
				var tc chatToolCall
				tc.ID = call.ID
				tc.Type = "function"
				tc.Function.Name = call.Name
				args, err := jsonx.Marshal(call.Arguments)
				if err != nil || call.Arguments == nil {
					args = []byte("{}")
				}
				tc.Function.Arguments = string(args)
				entry.ToolCalls = append(entry.ToolCalls, tc)
			}
		}
		out = append(out, entry)
	}
	return out
}

func convertTools(tools []ports.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return out
}

// decodeArguments parses a tool call's argument string, repairing the
// truncated or single-quoted JSON some models emit.
func decodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := jsonx.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, err
	}
	if err := jsonx.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func extractRequestID(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if id, ok := metadata["request_id"].(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}
