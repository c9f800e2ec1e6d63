package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"triad/internal/agent/ports"
	jsonx "triad/internal/shared/json"
)

var (
	toolCallPattern = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	leakedMarkers   = []*regexp.Regexp{
		regexp.MustCompile(`<\|tool_call_begin\|>.*?(?:<\|tool_call_end\|>|$)`),
		regexp.MustCompile(`(?s)<tool_call>[^<]*$`),
	}
	toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
)

// ToolCallParser extracts tool calls that models without native tool
// calling write into their text as <tool_call>{"name":...,"args":{...}}</tool_call>.
type ToolCallParser struct{}

func NewToolCallParser() *ToolCallParser {
	return &ToolCallParser{}
}

// Parse returns every well-formed call in content. Malformed entries are
// skipped.
func (p *ToolCallParser) Parse(content string) []ports.ToolCall {
	matches := toolCallPattern.FindAllStringSubmatch(content, -1)

	var calls []ports.ToolCall
	for _, match := range matches {
		var call struct {
			Name      string         `json:"name"`
			Args      map[string]any `json:"args"`
			Arguments map[string]any `json:"arguments"`
		}
		body := strings.TrimSpace(match[1])
		if err := jsonx.Unmarshal([]byte(body), &call); err != nil {
			repaired, repairErr := jsonrepair.JSONRepair(body)
			if repairErr != nil {
				continue
			}
			if err := jsonx.Unmarshal([]byte(repaired), &call); err != nil {
				continue
			}
		}
		if !toolNamePattern.MatchString(call.Name) {
			continue
		}
		args := call.Args
		if args == nil {
			args = call.Arguments
		}
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, ports.ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      call.Name,
			Arguments: args,
		})
	}
	return calls
}

// Strip removes tool-call markup, complete or leaked, from content.
func (p *ToolCallParser) Strip(content string) string {
	cleaned := toolCallPattern.ReplaceAllString(content, "")
	for _, re := range leakedMarkers {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}

// Validate checks call against the tool's required parameters.
func (p *ToolCallParser) Validate(call ports.ToolCall, definition ports.ToolDefinition) error {
	for _, required := range definition.Parameters.Required {
		if _, ok := call.Arguments[required]; !ok {
			return fmt.Errorf("missing required parameter: %s", required)
		}
	}
	return nil
}
