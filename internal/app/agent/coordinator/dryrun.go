package coordinator

import (
	"strings"

	"triad/internal/agent/ports"
	"triad/internal/llm"
	jsonx "triad/internal/shared/json"
	"triad/internal/shared/textutil"
)

// DryRunClients returns scripted model handles that walk the whole graph
// once without network access: a one-step plan, a coder reply carrying the
// sentinel and a passing verdict.
func DryRunClients(sentinel string) Clients {
	summary := func(req ports.CompletionRequest) (*ports.CompletionResponse, bool) {
		if req.Metadata["intent"] != "context_summarization" {
			return nil, false
		}
		return &ports.CompletionResponse{Content: "(dry run summary)", StopReason: "stop"}, true
	}
	request := func(req ports.CompletionRequest) string {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == ports.RoleUser {
				return strings.TrimSpace(req.Messages[i].Content)
			}
		}
		return ""
	}

	planner := llm.NewScriptedClient("dry-run").RespondWith(func(_ int, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		if resp, ok := summary(req); ok {
			return resp, nil
		}
		plan, err := jsonx.Marshal(map[string]any{
			"steps": []ports.PlanStep{{Title: "Address the request", Detail: textutil.FirstLine(request(req))}},
		})
		if err != nil {
			return nil, err
		}
		return &ports.CompletionResponse{Content: string(plan), StopReason: "stop"}, nil
	})
	coder := llm.NewScriptedClient("dry-run").RespondWith(func(_ int, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		if resp, ok := summary(req); ok {
			return resp, nil
		}
		return &ports.CompletionResponse{
			Content:    "Dry run: no files were changed.\n" + sentinel,
			StopReason: "stop",
		}, nil
	})
	tester := llm.NewScriptedClient("dry-run").RespondWith(func(_ int, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		if resp, ok := summary(req); ok {
			return resp, nil
		}
		return &ports.CompletionResponse{
			Content:    `{"passed":true,"summary":"Dry run: nothing to verify.","suggestions":[]}`,
			StopReason: "stop",
		}, nil
	})
	return Clients{Planner: planner, Coder: coder, Tester: tester}
}
