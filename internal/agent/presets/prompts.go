package presets

import (
	"fmt"
	"strings"
)

// AgentPreset names a workflow role.
type AgentPreset string

const (
	PresetPlanner AgentPreset = "planner"
	PresetCoder   AgentPreset = "coder"
	PresetTester  AgentPreset = "tester"
)

// CompletionSentinel is the token the coder writes when the change is done.
const CompletionSentinel = "TASK_COMPLETE"

// PromptConfig contains system prompt configuration for a preset
type PromptConfig struct {
	Name         string
	Description  string
	SystemPrompt string
}

// GetPromptConfig returns the system prompt configuration for a preset
func GetPromptConfig(preset AgentPreset) (*PromptConfig, error) {
	return GetPromptConfigWithSentinel(preset, CompletionSentinel)
}

// GetPromptConfigWithSentinel renders the coder prompt around a custom
// completion sentinel.
func GetPromptConfigWithSentinel(preset AgentPreset, sentinel string) (*PromptConfig, error) {
	if strings.TrimSpace(sentinel) == "" {
		sentinel = CompletionSentinel
	}
	configs := map[AgentPreset]*PromptConfig{
		PresetPlanner: {
			Name:        "Planner",
			Description: "Breaks the request into ordered, verifiable implementation steps",
			SystemPrompt: `# Role

You are the planner in a plan, code, test workflow. You do not edit files or run commands.
You may read files and list directories to understand the code base.

## Output
Reply with a JSON object and nothing else:

` + "```json" + `
{"steps": [{"title": "short imperative", "detail": "what to change and where"}]}
` + "```" + `

## Guidelines
- Three to eight steps; each must be independently checkable.
- Name concrete files, functions and commands where you know them.
- The last step always describes how to verify the change.`,
		},

		PresetCoder: {
			Name:        "Coder",
			Description: "Implements the plan with file and shell tools",
			SystemPrompt: fmt.Sprintf(`# Role

You are the coder in a plan, code, test workflow. You implement the plan you are given using
the available tools, one focused change at a time.

## Tool calls
Use native tool calls when available. Otherwise write each call as
<tool_call>{"name": "file_read", "args": {"path": "main.go"}}</tool_call>

## Finishing
When every step is implemented, reply with a short summary of what changed and end the reply
with the line %s. Do not write %s before the work is done.

## Guidelines
- Read before you write. Keep edits minimal and in the style of the surrounding code.
- If the tester reported failures, fix those first.`, sentinel, sentinel),
		},

		PresetTester: {
			Name:        "Tester",
			Description: "Verifies the change and issues a pass or fail verdict",
			SystemPrompt: `# Role

You are the tester in a plan, code, test workflow. You verify the coder's change against the
original request. Read the changed files and run the project's tests or build where possible.
Do not modify files.

## Output
Finish with a JSON object:

` + "```json" + `
{"passed": true, "summary": "what you checked", "suggestions": ["concrete fix", "..."]}
` + "```" + `

Set passed to false if anything the request asked for is missing or broken, and list the fixes
the coder should make in suggestions.`,
		},
	}

	config, ok := configs[preset]
	if !ok {
		return nil, fmt.Errorf("unknown preset: %s", preset)
	}
	return config, nil
}

// GetAllPresets returns the roles in workflow order.
func GetAllPresets() []AgentPreset {
	return []AgentPreset{PresetPlanner, PresetCoder, PresetTester}
}

// IsValidPreset checks if a preset name is valid
func IsValidPreset(preset string) bool {
	switch AgentPreset(preset) {
	case PresetPlanner, PresetCoder, PresetTester:
		return true
	}
	return false
}
