package roles

import (
	"context"
	"errors"
	"strings"

	"triad/internal/agent/ports"
	"triad/internal/agent/presets"
	"triad/internal/parser"
	"triad/internal/shared/textutil"
)

// duplicateSuggestion is the word-overlap score at which a suggestion is
// considered a repeat of one already recorded.
const duplicateSuggestion = 0.9

var verdictSchema = &ports.ResponseSchema{
	Name: "verdict",
	Schema: map[string]any{
		"type":     "object",
		"required": []string{"passed"},
		"properties": map[string]any{
			"passed":      map[string]any{"type": "boolean"},
			"summary":     map[string]any{"type": "string"},
			"suggestions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	},
}

type verdict struct {
	Passed      *bool    `json:"passed"`
	Summary     string   `json:"summary"`
	Suggestions []string `json:"suggestions"`
}

func (v verdict) Validate() error {
	if v.Passed == nil {
		return errors.New("verdict has no passed field")
	}
	return nil
}

// Tester judges the coder's work and sets the verdict.
type Tester struct {
	role
}

func NewTester(cfg Config) (*Tester, error) {
	prompt, err := presets.GetPromptConfig(presets.PresetTester)
	if err != nil {
		return nil, err
	}
	r, err := newRole(presets.PresetTester, cfg, prompt)
	if err != nil {
		return nil, err
	}
	return &Tester{role: r}, nil
}

// Stream appends the tester's report, new suggestions and the verdict.
func (t *Tester) Stream(ctx context.Context, state ports.WorkflowState, emit func(ports.StateDelta)) (ports.WorkflowState, error) {
	msgs := historyForModel(t.prompt, state)
	msgs = append(msgs, ports.NewUserMessage("Verify the latest change against the original request:\n\n"+state.OriginalRequest))

	tr, err := t.loop.run(ctx, msgs, verdictSchema, emit)
	if err != nil {
		return state, err
	}
	v, err := parser.Extract[verdict](tr.structured, tr.content)
	if err != nil {
		return state, t.extractionFailure("pass/fail verdict", tr.content, err)
	}

	passed := *v.Passed
	fresh := newSuggestions(state.Suggestions, v.Suggestions)
	msg := tr.message(t.name)
	if strings.TrimSpace(msg.Content) == "" {
		msg.Content = v.Summary
	}

	t.logger.Info("%s: verdict passed=%t with %d new suggestion(s)", t.name, passed, len(fresh))
	emit(ports.StateDelta{Agent: t.name, Messages: []ports.Message{msg.Clone()}, Suggestions: fresh, EvalPassed: &passed})
	return state.WithMessages(msg).WithSuggestions(fresh...).WithEvalPassed(passed), nil
}

// newSuggestions drops blanks and near-duplicates of earlier suggestions.
func newSuggestions(existing, proposed []string) []string {
	seen := append([]string(nil), existing...)
	var out []string
	for _, s := range proposed {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		repeat := false
		for _, prior := range seen {
			if s == prior || textutil.SimilarityScore(s, prior) >= duplicateSuggestion {
				repeat = true
				break
			}
		}
		if !repeat {
			out = append(out, s)
			seen = append(seen, s)
		}
	}
	return out
}
