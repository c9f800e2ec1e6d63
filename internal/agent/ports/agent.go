package ports

import (
	"context"
	"fmt"
)

// Agent is one logical role (planner, coder, tester). Stream consumes a state
// snapshot, reports partial results through emit, and returns the updated
// state. Implementations must not mutate the state they receive.
type Agent interface {
	Name() string
	Description() string
	Stream(ctx context.Context, state WorkflowState, emit func(StateDelta)) (WorkflowState, error)
}

// Runner is the unit a workflow node executes: one state in, one state out.
type Runner interface {
	Invoke(ctx context.Context, state WorkflowState) (WorkflowState, error)
}

// AgentDescriptor binds a unique node name to the behavior that runs there.
// The graph only reads it.
type AgentDescriptor struct {
	Name        string
	Description string
	Runner      Runner
}

// AdapterError is returned when an agent cannot produce a valid state update.
// It names the agent and the validation that failed and keeps the raw model
// output for diagnostics.
type AdapterError struct {
	Agent      string
	Validation string
	Raw        string
	Err        error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent %s: %s: %v", e.Agent, e.Validation, e.Err)
	}
	return fmt.Sprintf("agent %s: %s", e.Agent, e.Validation)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
