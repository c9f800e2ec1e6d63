package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/internal/agent/ports"
	jsonx "triad/internal/shared/json"
)

type verdict struct {
	Passed  *bool  `json:"passed"`
	Summary string `json:"summary"`
}

func (v *verdict) Validate() error {
	if v.Passed == nil {
		return errors.New("passed is required")
	}
	return nil
}

func TestExtractStrictStage(t *testing.T) {
	got, err := Extract[verdict](jsonx.RawMessage(`{"passed":true,"summary":"ok"}`), "ignored")
	require.NoError(t, err)
	require.NotNil(t, got.Passed)
	assert.True(t, *got.Passed)
	assert.Equal(t, "ok", got.Summary)
}

func TestExtractFallsBackToFencedBlock(t *testing.T) {
	raw := "All tests ran.\n```json\n{\"passed\": false, \"summary\": \"2 failures\"}\n```\nDone."
	got, err := Extract[verdict](nil, raw)
	require.NoError(t, err)
	assert.False(t, *got.Passed)
	assert.Equal(t, "2 failures", got.Summary)
}

func TestExtractFallbackWhenStrictInvalid(t *testing.T) {
	raw := "```json\n{\"passed\": true}\n```"
	got, err := Extract[verdict](jsonx.RawMessage(`{"summary":"no verdict"}`), raw)
	require.NoError(t, err)
	assert.True(t, *got.Passed)
}

func TestExtractRepairsMalformedJSON(t *testing.T) {
	raw := "```json\n{\"passed\": true, \"summary\": \"trailing comma\",}\n```"
	got, err := Extract[verdict](nil, raw)
	require.NoError(t, err)
	assert.True(t, *got.Passed)
}

func TestExtractBareObject(t *testing.T) {
	got, err := Extract[verdict](nil, `Verdict: {"passed": false, "summary": "x"}`)
	require.NoError(t, err)
	assert.False(t, *got.Passed)
}

func TestExtractBothStagesFail(t *testing.T) {
	_, err := Extract[verdict](nil, "the tests look fine to me")

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.ErrorIs(t, err, ErrNoStructured)
	assert.ErrorIs(t, err, ErrNoJSONBlock)
	assert.Equal(t, "the tests look fine to me", extractErr.Raw)
}

func TestExtractValidationFailureInBothStages(t *testing.T) {
	_, err := Extract[verdict](jsonx.RawMessage(`{}`), "```json\n{\"summary\":\"?\"}\n```")
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.StrictErr.Error(), "passed is required")
	assert.Contains(t, extractErr.FallbackErr.Error(), "passed is required")
}

func TestFindJSONBlockPrefersLastFence(t *testing.T) {
	text := "```json\n{\"a\":1}\n```\nthen\n```json\n{\"a\":2}\n```"
	block, ok := FindJSONBlock(text)
	require.True(t, ok)
	assert.Equal(t, `{"a":2}`, block)
}

func TestParseToolCalls(t *testing.T) {
	p := NewToolCallParser()
	content := `Reading first.
<tool_call>{"name": "file_read", "args": {"path": "main.go"}}</tool_call>
<tool_call>{"name": "list_dir", "arguments": {"path": "."}}</tool_call>
<tool_call>{"name": "bad name", "args": {}}</tool_call>
<tool_call>not json at all</tool_call>`

	calls := p.Parse(content)

	require.Len(t, calls, 2)
	assert.Equal(t, "file_read", calls[0].Name)
	assert.Equal(t, "main.go", calls[0].Arguments["path"])
	assert.Equal(t, "list_dir", calls[1].Name)
	assert.Equal(t, ".", calls[1].Arguments["path"])
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
}

func TestParseToolCallRepairsJSON(t *testing.T) {
	calls := NewToolCallParser().Parse(`<tool_call>{"name": "file_read", "args": {"path": "a.go",}}</tool_call>`)
	require.Len(t, calls, 1)
	assert.Equal(t, "a.go", calls[0].Arguments["path"])
}

func TestStripRemovesMarkup(t *testing.T) {
	p := NewToolCallParser()
	out := p.Strip("Looking.\n<tool_call>{\"name\":\"file_read\",\"args\":{}}</tool_call>\n<tool_call>{\"name\":")
	assert.Equal(t, "Looking.", out)
}

func TestValidateRequiredParameters(t *testing.T) {
	p := NewToolCallParser()
	def := ports.ToolDefinition{Name: "file_read", Parameters: ports.ParameterSchema{Required: []string{"path"}}}

	assert.NoError(t, p.Validate(ports.ToolCall{Name: "file_read", Arguments: map[string]any{"path": "a"}}, def))
	assert.EqualError(t, p.Validate(ports.ToolCall{Name: "file_read"}, def), "missing required parameter: path")
}
