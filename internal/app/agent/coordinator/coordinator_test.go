package coordinator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/internal/agent/ports"
	"triad/internal/llm"
	"triad/internal/shared/config"
	"triad/internal/shared/logging"
	"triad/internal/workflow"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Agents.Each(func(_ string, a *config.AgentConfig) {
		a.Provider = llm.ProviderScripted
		a.APIKey = ""
	})
	cfg.Tools.Workdir = t.TempDir()
	return cfg
}

type eventLog struct {
	mu     sync.Mutex
	events []workflow.EventType
}

func (l *eventLog) OnWorkflowEvent(e workflow.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e.Type)
}

func TestQueryDryRunCompletesOnePass(t *testing.T) {
	cfg := testConfig(t)
	events := &eventLog{}
	var deltas []ports.StateDelta
	c, err := New(cfg,
		WithClients(DryRunClients(cfg.Workflow.Sentinel)),
		WithListener(events),
		WithDeltaHandler(func(d ports.StateDelta) { deltas = append(deltas, d) }),
		withRunIDs(func() string { return "run-1" }),
	)
	require.NoError(t, err)

	state, err := c.Query(context.Background(), "Add a health endpoint")
	require.NoError(t, err)

	assert.Equal(t, "run-1", state.RunID)
	assert.True(t, state.EvalPassed)
	require.Len(t, state.Steps, 1)
	assert.Equal(t, "Add a health endpoint", state.Steps[0].Detail)

	var authors []string
	for _, msg := range state.Messages {
		if msg.Role == ports.RoleAssistant {
			authors = append(authors, msg.Name)
		}
	}
	assert.Equal(t, []string{"planner", "coder", "tester"}, authors)
	assert.Equal(t, workflow.EventRunCompleted, events.events[len(events.events)-1])
	assert.Len(t, deltas, 3)
	assert.Empty(t, c.Changes("run-1"))
}

func TestQueryWritesFilesAndLoopsOnFailedVerdict(t *testing.T) {
	cfg := testConfig(t)
	planner := llm.NewScriptedClient("p").Reply(`{"steps":[{"title":"Create hello.txt"}]}`)
	coder := llm.NewScriptedClient("c").
		ReplyWith(&ports.CompletionResponse{
			ToolCalls: []ports.ToolCall{{
				ID:        "call_1",
				Name:      "file_write",
				Arguments: map[string]any{"path": "hello.txt", "content": "hi\n"},
			}},
			StopReason: "tool_calls",
		}).
		Reply("Wrote hello.txt. TASK_COMPLETE").
		Reply("Checked again. TASK_COMPLETE")
	tester := llm.NewScriptedClient("t").
		Reply("```json\n{\"passed\": false, \"summary\": \"No test.\", \"suggestions\": [\"Add a test\"]}\n```").
		Reply(`{"passed": true, "summary": "Looks good."}`)

	c, err := New(cfg, WithClients(Clients{Planner: planner, Coder: coder, Tester: tester}))
	require.NoError(t, err)

	state, err := c.Query(context.Background(), "Create hello.txt containing hi")
	require.NoError(t, err)

	assert.True(t, state.EvalPassed)
	assert.Equal(t, []string{"Add a test"}, state.Suggestions)
	assert.Equal(t, 3, coder.Calls())
	assert.Equal(t, 2, tester.Calls())
	assert.Len(t, state.Messages, 8)

	data, err := os.ReadFile(filepath.Join(cfg.Tools.Workdir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))

	changes := c.Changes(state.RunID)
	require.Len(t, changes, 1)
	assert.Equal(t, "hello.txt", changes[0].Path)
	assert.True(t, changes[0].Created)

	feedback := state.Messages[5]
	assert.Equal(t, ports.RoleUser, feedback.Role)
	assert.Contains(t, feedback.Content, "The tester found problems")
	assert.Contains(t, feedback.Content, "- Add a test")
}

func TestQueryBoundsLargeToolOutputBeforeTheModelSeesIt(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compression.MaxTokens = 1000
	cfg.Compression.TargetTokens = 500
	off := false
	cfg.Agents.Each(func(_ string, a *config.AgentConfig) { a.Summarize = &off })
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Tools.Workdir, "big.log"), []byte(strings.Repeat("x", 200_000)), 0o644))

	planner := llm.NewScriptedClient("p").Reply(`{"steps":[{"title":"Read big.log"}]}`)
	coder := llm.NewScriptedClient("c").
		ReplyWith(&ports.CompletionResponse{ToolCalls: []ports.ToolCall{{ID: "call_1", Name: "file_read", Arguments: map[string]any{"path": "big.log"}}}}).
		Reply("Read it. TASK_COMPLETE")
	tester := llm.NewScriptedClient("t").Reply(`{"passed": true, "summary": "Fine."}`)
	c, err := New(cfg, WithClients(Clients{Planner: planner, Coder: coder, Tester: tester}))
	require.NoError(t, err)

	_, err = c.Query(context.Background(), "Read big.log")
	require.NoError(t, err)

	reqs := coder.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	require.Len(t, last.ToolResults, 1)
	sent := last.ToolResults[0].Content
	assert.LessOrEqual(t, len(sent), 1000*4)
	assert.True(t, strings.HasPrefix(sent, "[earlier content truncated]"))
}

func TestChangesAreScopedToTheirRun(t *testing.T) {
	cfg := testConfig(t)
	writeCall := func(name string) *ports.CompletionResponse {
		return &ports.CompletionResponse{ToolCalls: []ports.ToolCall{{ID: "w", Name: "file_write", Arguments: map[string]any{"path": name, "content": "x\n"}}}}
	}
	plan := `{"steps":[{"title":"write"}]}`
	coder := llm.NewScriptedClient("c").
		ReplyWith(writeCall("a.txt")).Reply("Done. TASK_COMPLETE").
		ReplyWith(writeCall("b.txt")).Reply("Done. TASK_COMPLETE")
	ids := []string{"run-a", "run-b"}
	var next int
	c, err := New(cfg,
		WithClients(Clients{
			Planner: llm.NewScriptedClient("p").Reply(plan).Reply(plan),
			Coder:   coder,
			Tester:  llm.NewScriptedClient("t").Reply(`{"passed": true}`).Reply(`{"passed": true}`),
		}),
		withRunIDs(func() string { id := ids[next]; next++; return id }),
	)
	require.NoError(t, err)

	first, err := c.Query(context.Background(), "write a.txt")
	require.NoError(t, err)
	second, err := c.Query(context.Background(), "write b.txt")
	require.NoError(t, err)

	a := c.Changes(first.RunID)
	require.Len(t, a, 1)
	assert.Equal(t, "a.txt", a[0].Path)
	b := c.Changes(second.RunID)
	require.Len(t, b, 1)
	assert.Equal(t, "b.txt", b[0].Path)
	assert.Empty(t, c.Changes("run-c"))
}

func TestQueryStopsAtIterationCeiling(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.MaxIterations = 4
	always := func(content string) *llm.ScriptedClient {
		return llm.NewScriptedClient("s").RespondWith(func(int, ports.CompletionRequest) (*ports.CompletionResponse, error) {
			return &ports.CompletionResponse{Content: content}, nil
		})
	}
	c, err := New(cfg, WithClients(Clients{
		Planner: always(`{"steps":[{"title":"Try"}]}`),
		Coder:   always("Attempted. TASK_COMPLETE"),
		Tester:  always(`{"passed": false, "summary": "Still broken."}`),
	}))
	require.NoError(t, err)

	state, err := c.Query(context.Background(), "Fix the flaky test")
	require.ErrorIs(t, err, workflow.ErrRecursionLimit)
	var limitErr *workflow.RecursionLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 4, limitErr.Limit)
	assert.False(t, state.EvalPassed)
}

func TestQueryAdapterFailureNamesAgent(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg, WithClients(Clients{
		Planner: llm.NewScriptedClient("p").Reply("I would rather not plan."),
	}))
	require.NoError(t, err)

	_, err = c.Query(context.Background(), "Anything")
	var adapterErr *ports.AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "planner", adapterErr.Agent)
	assert.Equal(t, "plan steps", adapterErr.Validation)
}

func TestQueryRejectsEmptyRequest(t *testing.T) {
	c, err := New(testConfig(t), WithClients(DryRunClients("TASK_COMPLETE")))
	require.NoError(t, err)
	_, err = c.Query(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.MaxIterations = 0
	cfg.Compression.TargetTokens = 0

	_, err := New(cfg)
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 2)
}

func TestNewRejectsMissingWorkdir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.Workdir = filepath.Join(cfg.Tools.Workdir, "missing")
	_, err := New(cfg, WithClients(DryRunClients("TASK_COMPLETE")))
	assert.Error(t, err)
}

func TestQueryMirrorsCompactionIntoLLMLog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compression.MaxMessages = 2
	var buf bytes.Buffer
	c, err := New(cfg,
		WithClients(DryRunClients(cfg.Workflow.Sentinel)),
		WithLLMLog(logging.NewSink(&buf, logging.LevelInfo, logging.CategoryLLM)),
	)
	require.NoError(t, err)

	state, err := c.Query(context.Background(), "Rename the config flag")
	require.NoError(t, err)
	require.NotEmpty(t, state.Compactions)

	assert.Contains(t, buf.String(), "[INFO] [LLM] [budget.tester]")
	assert.Contains(t, buf.String(), "compacted history for tester: cap")
}
