package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"triad/internal/agent/ports"
	"triad/internal/agent/presets"
	"triad/internal/parser"
)

var planSchema = &ports.ResponseSchema{
	Name: "plan",
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"steps"},
		"properties": map[string]any{
			"steps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"title"},
					"properties": map[string]any{
						"title":  map[string]any{"type": "string"},
						"detail": map[string]any{"type": "string"},
					},
				},
			},
		},
	},
}

type planOutput struct {
	Steps []ports.PlanStep `json:"steps"`
}

func (p planOutput) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	for i, step := range p.Steps {
		if strings.TrimSpace(step.Title) == "" {
			return fmt.Errorf("step %d has no title", i+1)
		}
	}
	return nil
}

// Planner turns the request into ordered steps. It is given read-only tools.
type Planner struct {
	role
}

func NewPlanner(cfg Config) (*Planner, error) {
	prompt, err := presets.GetPromptConfig(presets.PresetPlanner)
	if err != nil {
		return nil, err
	}
	r, err := newRole(presets.PresetPlanner, cfg, prompt)
	if err != nil {
		return nil, err
	}
	return &Planner{role: r}, nil
}

// Stream appends the planner's reply and the parsed steps.
func (p *Planner) Stream(ctx context.Context, state ports.WorkflowState, emit func(ports.StateDelta)) (ports.WorkflowState, error) {
	msgs := historyForModel(p.prompt, state)
	if latest, ok := state.LatestMessage(); !ok || latest.Role != ports.RoleUser {
		msgs = append(msgs, ports.NewUserMessage("Produce the plan for this request:\n\n"+state.OriginalRequest))
	}

	t, err := p.loop.run(ctx, msgs, planSchema, emit)
	if err != nil {
		return state, err
	}
	plan, err := parser.Extract[planOutput](t.structured, t.content)
	if err != nil {
		return state, p.extractionFailure("plan steps", t.content, err)
	}

	msg := t.message(p.name)
	p.logger.Info("%s: plan with %d step(s) after %d round(s)", p.name, len(plan.Steps), t.rounds)
	emit(ports.StateDelta{Agent: p.name, Messages: []ports.Message{msg.Clone()}, Steps: plan.Steps})
	return state.WithMessages(msg).WithSteps(plan.Steps...), nil
}
