// Package roles implements the planner, coder and tester agents. Each agent
// builds a request from the workflow state, runs a bounded tool loop against
// its model, and appends exactly one assistant message.
package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"triad/internal/agent/ports"
	"triad/internal/agent/presets"
	"triad/internal/parser"
	"triad/internal/shared/logging"
)

// Config binds a role to its collaborators.
type Config struct {
	// Name is the agent name recorded on messages. Defaults to the preset.
	Name          string
	Client        ports.LLMClient
	Tools         ports.ToolSet
	Temperature   float64
	MaxTokens     int
	MaxToolRounds int
	// SystemPrompt overrides the preset prompt.
	SystemPrompt string
	// BoundOutput shortens a tool result before it is sent back to the
	// model. Nil passes results through unchanged.
	BoundOutput func(ctx context.Context, text string) string
	Logger      logging.Logger
}

type role struct {
	name        string
	description string
	prompt      string
	loop        *toolLoop
	logger      logging.Logger
}

func newRole(preset presets.AgentPreset, cfg Config, prompt *presets.PromptConfig) (role, error) {
	if cfg.Client == nil {
		return role{}, fmt.Errorf("%s: model client is required", preset)
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = string(preset)
	}
	system := prompt.SystemPrompt
	if strings.TrimSpace(cfg.SystemPrompt) != "" {
		system = cfg.SystemPrompt
	}
	rounds := cfg.MaxToolRounds
	if rounds <= 0 {
		rounds = DefaultMaxToolRounds
	}
	logger := logging.OrNop(cfg.Logger)
	return role{
		name:        name,
		description: prompt.Description,
		prompt:      system,
		logger:      logger,
		loop: &toolLoop{
			agent:       name,
			client:      cfg.Client,
			tools:       cfg.Tools,
			maxRounds:   rounds,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
			parser:      parser.NewToolCallParser(),
			bound:       cfg.BoundOutput,
			logger:      logger,
		},
	}, nil
}

func (r role) Name() string {
	return r.name
}

func (r role) Description() string {
	return r.description
}

// extractionFailure wraps a structured extraction error for the workflow.
func (r role) extractionFailure(validation, raw string, err error) error {
	var extractErr *parser.ExtractionError
	if errors.As(err, &extractErr) && extractErr.Raw != "" {
		raw = extractErr.Raw
	}
	return &ports.AdapterError{Agent: r.name, Validation: validation, Raw: raw, Err: err}
}
