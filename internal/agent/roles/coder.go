package roles

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"triad/internal/agent/ports"
	"triad/internal/agent/presets"
	"triad/internal/shared/logging"
)

// DefaultMaxCoderTurns bounds the coder's completion loop.
const DefaultMaxCoderTurns = 8

// CoderTurn is one coder exchange: a bounded tool loop ending in a single
// assistant message. CoderLoop repeats it until the sentinel appears.
type CoderTurn struct {
	role
	sentinel string
}

// NewCoderTurn builds the coder agent. An empty sentinel selects
// presets.CompletionSentinel.
func NewCoderTurn(cfg Config, sentinel string) (*CoderTurn, error) {
	sentinel = strings.TrimSpace(sentinel)
	if sentinel == "" {
		sentinel = presets.CompletionSentinel
	}
	prompt, err := presets.GetPromptConfigWithSentinel(presets.PresetCoder, sentinel)
	if err != nil {
		return nil, err
	}
	r, err := newRole(presets.PresetCoder, cfg, prompt)
	if err != nil {
		return nil, err
	}
	return &CoderTurn{role: r, sentinel: sentinel}, nil
}

// Sentinel returns the completion marker this coder is told to write.
func (c *CoderTurn) Sentinel() string {
	return c.sentinel
}

func (c *CoderTurn) Stream(ctx context.Context, state ports.WorkflowState, emit func(ports.StateDelta)) (ports.WorkflowState, error) {
	t, err := c.loop.run(ctx, historyForModel(c.prompt, state), nil, emit)
	if err != nil {
		return state, err
	}
	if strings.TrimSpace(t.content) == "" && len(t.calls) == 0 {
		return state, &ports.AdapterError{Agent: c.name, Validation: "coder reply", Err: errors.New("model returned no content")}
	}
	msg := t.message(c.name)
	emit(ports.StateDelta{Agent: c.name, Messages: []ports.Message{msg.Clone()}})
	return state.WithMessages(msg), nil
}

// Streamer is a budgeted agent invocation, normally a gateway.Gateway.
type Streamer interface {
	Name() string
	Description() string
	Stream(ctx context.Context, state ports.WorkflowState) iter.Seq2[ports.StateDelta, error]
}

// CoderLoop is the CODER node. On receiving control it hands the coder the
// latest content as a human turn, then keeps invoking it until a reply
// carries the sentinel or the turn ceiling is reached.
type CoderLoop struct {
	turn     Streamer
	sentinel string
	maxTurns int
	onDelta  func(ports.StateDelta)
	logger   logging.Logger
}

// LoopOption configures a CoderLoop.
type LoopOption func(*CoderLoop)

func WithMaxTurns(n int) LoopOption {
	return func(l *CoderLoop) {
		if n > 0 {
			l.maxTurns = n
		}
	}
}

// WithDeltaHandler receives every partial result of every turn.
func WithDeltaHandler(fn func(ports.StateDelta)) LoopOption {
	return func(l *CoderLoop) { l.onDelta = fn }
}

func WithLoopLogger(logger logging.Logger) LoopOption {
	return func(l *CoderLoop) { l.logger = logging.OrNop(logger) }
}

func NewCoderLoop(turn Streamer, sentinel string, opts ...LoopOption) (*CoderLoop, error) {
	if turn == nil {
		return nil, errors.New("coder loop: turn runner is required")
	}
	sentinel = strings.TrimSpace(sentinel)
	if sentinel == "" {
		sentinel = presets.CompletionSentinel
	}
	l := &CoderLoop{
		turn:     turn,
		sentinel: sentinel,
		maxTurns: DefaultMaxCoderTurns,
		onDelta:  func(ports.StateDelta) {},
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.onDelta == nil {
		l.onDelta = func(ports.StateDelta) {}
	}
	return l, nil
}

func (l *CoderLoop) Name() string {
	return l.turn.Name()
}

// Descriptor binds the loop to a workflow node.
func (l *CoderLoop) Descriptor() ports.AgentDescriptor {
	return ports.AgentDescriptor{Name: l.turn.Name(), Description: l.turn.Description(), Runner: l}
}

// Invoke runs the completion loop. Reaching the turn ceiling without the
// sentinel is not an error; the tester judges what was produced.
func (l *CoderLoop) Invoke(ctx context.Context, state ports.WorkflowState) (ports.WorkflowState, error) {
	name := l.turn.Name()
	state = state.WithMessages(l.handover(state))

	for turn := 1; ; turn++ {
		if turn > 1 {
			state = state.WithMessages(ports.NewUserMessage(fmt.Sprintf(
				"Continue with the remaining steps. End your reply with %s once everything is implemented.", l.sentinel)))
		}
		next, err := l.runTurn(ctx, state)
		if err != nil {
			return state, err
		}
		state = next

		reply, _ := state.LatestFrom(name)
		if strings.Contains(reply.Content, l.sentinel) {
			l.logger.Info("%s: completed after %d turn(s)", name, turn)
			return state, nil
		}
		if turn >= l.maxTurns {
			l.logger.Warn("%s: no %s after %d turns, handing over to the tester", name, l.sentinel, turn)
			return state, nil
		}
	}
}

func (l *CoderLoop) runTurn(ctx context.Context, state ports.WorkflowState) (ports.WorkflowState, error) {
	for delta, err := range l.turn.Stream(ctx, state) {
		if err != nil {
			return state, err
		}
		if delta.Final && delta.State != nil {
			return *delta.State, nil
		}
		l.onDelta(delta)
	}
	return state, fmt.Errorf("%s: stream ended without a final state", l.turn.Name())
}

// handover is the human turn that gives the coder control: the plan on the
// first entry, the tester's feedback when control comes back.
func (l *CoderLoop) handover(state ports.WorkflowState) ports.Message {
	latest, _ := state.LatestMessage()
	_, returning := state.LatestFrom(l.turn.Name())
	if !returning || latest.Role != ports.RoleAssistant {
		if len(state.Steps) > 0 {
			return ports.NewUserMessage("Implement this plan:\n\n" + renderPlan(state.Steps))
		}
		return ports.NewUserMessage("Implement this:\n\n" + latest.Content)
	}

	var sb strings.Builder
	sb.WriteString("The tester found problems. Fix them, then finish as before.\n\n")
	sb.WriteString(latest.Content)
	if len(state.Suggestions) > 0 {
		sb.WriteString("\n\nOpen suggestions:")
		for _, s := range state.Suggestions {
			sb.WriteString("\n- ")
			sb.WriteString(s)
		}
	}
	return ports.NewUserMessage(sb.String())
}
