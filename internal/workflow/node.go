package workflow

import "triad/internal/agent/ports"

// NodeID identifies a state of the workflow graph.
type NodeID string

const (
	NodeStart   NodeID = "START"
	NodePlanner NodeID = "PLANNER"
	NodeCoder   NodeID = "CODER"
	NodeTester  NodeID = "TESTER"
	NodeEnd     NodeID = "END"
)

// Terminal reports whether id ends a run.
func (id NodeID) Terminal() bool {
	return id == NodeEnd
}

// Predicate is a pure function of the state. It must not perform I/O or
// retain the state.
type Predicate func(ports.WorkflowState) bool

// Edge is one row of the transition table. An edge with a nil Predicate is
// unconditional and always leads to OnTrue.
type Edge struct {
	Predicate Predicate
	OnTrue    NodeID
	OnFalse   NodeID
}

func (e Edge) next(state ports.WorkflowState) NodeID {
	if e.Predicate == nil || e.Predicate(state) {
		return e.OnTrue
	}
	return e.OnFalse
}

// EvalPassed reads the tester verdict. It is the only conditional in the
// graph.
func EvalPassed(state ports.WorkflowState) bool {
	return state.EvalPassed
}

// Transitions is the fixed plan, code, test edge table.
func Transitions() map[NodeID]Edge {
	return map[NodeID]Edge{
		NodeStart:   {OnTrue: NodePlanner},
		NodePlanner: {OnTrue: NodeCoder},
		NodeCoder:   {OnTrue: NodeTester},
		NodeTester:  {Predicate: EvalPassed, OnTrue: NodeEnd, OnFalse: NodeCoder},
	}
}

// Route returns the node that follows from given state. Unknown and
// terminal nodes route to END.
func Route(from NodeID, state ports.WorkflowState) NodeID {
	return routeWith(Transitions(), from, state)
}

func routeWith(table map[NodeID]Edge, from NodeID, state ports.WorkflowState) NodeID {
	edge, ok := table[from]
	if !ok {
		return NodeEnd
	}
	return edge.next(state)
}

// Nodes binds the three agent nodes to their runners.
type Nodes struct {
	Planner ports.AgentDescriptor
	Coder   ports.AgentDescriptor
	Tester  ports.AgentDescriptor
}

func (n Nodes) byID() map[NodeID]ports.AgentDescriptor {
	return map[NodeID]ports.AgentDescriptor{
		NodePlanner: n.Planner,
		NodeCoder:   n.Coder,
		NodeTester:  n.Tester,
	}
}
