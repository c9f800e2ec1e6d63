package workflow

import (
	"errors"
	"fmt"

	"triad/internal/agent/ports"
)

var (
	// ErrRecursionLimit matches every RecursionLimitError.
	ErrRecursionLimit = errors.New("workflow recursion limit exceeded")
	// ErrHistoryRewritten is returned when a node removed or reordered
	// messages without recording a compaction.
	ErrHistoryRewritten = errors.New("node rewrote message history")
	// ErrRequestChanged is returned when a node altered the original request.
	ErrRequestChanged = errors.New("node changed the original request")
)

// RecursionLimitError ends a run that did not converge within Limit node
// visits. Next is the node that would have run.
type RecursionLimitError struct {
	Limit  int
	Visits int
	Next   NodeID
	State  ports.WorkflowState
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("workflow recursion limit of %d reached after %d node visits (next: %s)", e.Limit, e.Visits, e.Next)
}

func (e *RecursionLimitError) Is(target error) bool {
	return target == ErrRecursionLimit
}

// NodeError is a fatal node failure. State is the last state the graph held
// before the failing node ran.
type NodeError struct {
	Node  NodeID
	Visit int
	Err   error
	State ports.WorkflowState
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("workflow node %s (visit %d) failed: %v", e.Node, e.Visit, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
