// Package workflow runs the plan, code, test state machine. Nodes execute one
// at a time; the tester's verdict decides between retrying the coder and
// ending the run, and a visit ceiling bounds the retries.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"triad/internal/agent/ports"
)

// DefaultMaxVisits is the visit ceiling used when none is configured.
const DefaultMaxVisits = 25

// MetricsRecorder receives node and run telemetry.
type MetricsRecorder interface {
	RecordNodeVisit(ctx context.Context, node string, duration time.Duration, err error)
	RecordRun(ctx context.Context, outcome string, visits int)
}

// Graph is the workflow state machine. A Graph is immutable after New and
// may drive several runs concurrently; each run owns its own state.
type Graph struct {
	nodes     map[NodeID]ports.AgentDescriptor
	table     map[NodeID]Edge
	maxVisits int
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   MetricsRecorder

	mu        sync.RWMutex
	listeners []Listener
}

// Option configures a Graph.
type Option func(*Graph)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Graph) {
		if t != nil {
			g.tracer = t
		}
	}
}

func WithMetrics(r MetricsRecorder) Option {
	return func(g *Graph) { g.metrics = r }
}

func WithListener(l Listener) Option {
	return func(g *Graph) {
		if l != nil {
			g.listeners = append(g.listeners, l)
		}
	}
}

// New validates the node bindings and the visit ceiling.
func New(nodes Nodes, maxVisits int, opts ...Option) (*Graph, error) {
	if maxVisits < 1 {
		return nil, fmt.Errorf("workflow: max visits must be at least 1, got %d", maxVisits)
	}
	bound := nodes.byID()
	seen := make(map[string]NodeID, len(bound))
	for _, id := range []NodeID{NodePlanner, NodeCoder, NodeTester} {
		desc := bound[id]
		if desc.Runner == nil {
			return nil, fmt.Errorf("workflow: node %s has no runner", id)
		}
		if desc.Name == "" {
			return nil, fmt.Errorf("workflow: node %s has no name", id)
		}
		if other, dup := seen[desc.Name]; dup {
			return nil, fmt.Errorf("workflow: agent name %q bound to both %s and %s", desc.Name, other, id)
		}
		seen[desc.Name] = id
	}

	g := &Graph{
		nodes:     bound,
		table:     Transitions(),
		maxVisits: maxVisits,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    noop.NewTracerProvider().Tracer("triad/workflow"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// MaxVisits returns the configured ceiling.
func (g *Graph) MaxVisits() int {
	return g.maxVisits
}

// Descriptor returns the agent bound to id.
func (g *Graph) Descriptor(id NodeID) (ports.AgentDescriptor, bool) {
	desc, ok := g.nodes[id]
	return desc, ok
}

// AddListener attaches a listener for lifecycle events.
func (g *Graph) AddListener(listener Listener) {
	if listener == nil {
		return
	}
	g.mu.Lock()
	g.listeners = append(g.listeners, listener)
	g.mu.Unlock()
}

// Run drives state from START to END. It returns the final state, or the
// last-known state together with a *NodeError or *RecursionLimitError.
// Exactly MaxVisits node executions are allowed; the next attempted visit
// fails with ErrRecursionLimit.
func (g *Graph) Run(ctx context.Context, state ports.WorkflowState) (ports.WorkflowState, error) {
	ctx, span := g.tracer.Start(ctx, "triad.workflow.run",
		trace.WithAttributes(attribute.String("triad.run_id", state.RunID), attribute.Int("triad.max_visits", g.maxVisits)))
	defer span.End()

	run := newTracker(state.RunID)
	next := routeWith(g.table, NodeStart, state)

	for {
		if next.Terminal() {
			run.finish(PhaseSucceeded, time.Now())
			snap := run.snapshot()
			g.logger.Info("workflow run completed",
				slog.String("run_id", state.RunID), slog.Int("visits", snap.TotalVisits()), slog.Duration("duration", snap.Duration))
			g.emit(Event{Type: EventRunCompleted, RunID: state.RunID, Snapshot: snap})
			g.recordRun(ctx, "completed", snap.TotalVisits())
			span.SetAttributes(attribute.Int("triad.visits", snap.TotalVisits()))
			return state, nil
		}

		if visits := len(run.path); visits >= g.maxVisits {
			err := &RecursionLimitError{Limit: g.maxVisits, Visits: visits, Next: next, State: state}
			return state, g.fail(ctx, span, run, state, "recursion_limit", err)
		}

		if err := ctx.Err(); err != nil {
			nodeErr := &NodeError{Node: next, Visit: len(run.path) + 1, Err: err, State: state}
			return state, g.fail(ctx, span, run, state, "cancelled", nodeErr)
		}

		out, err := g.visit(ctx, run, next, state)
		if err != nil {
			return state, g.fail(ctx, span, run, state, "node_failed", err)
		}
		state = out
		next = routeWith(g.table, next, state)
	}
}

func (g *Graph) visit(ctx context.Context, run *tracker, id NodeID, state ports.WorkflowState) (ports.WorkflowState, error) {
	desc := g.nodes[id]
	visit := run.visit(id, time.Now())

	ctx, span := g.tracer.Start(ctx, "triad.workflow.node",
		trace.WithAttributes(attribute.String("triad.node", string(id)), attribute.String("triad.agent", desc.Name), attribute.Int("triad.visit", visit)))
	defer span.End()

	g.logger.Debug("workflow node started", slog.String("run_id", state.RunID), slog.String("node", string(id)), slog.Int("visit", visit))
	g.emit(Event{Type: EventNodeStarted, RunID: state.RunID, Node: id, Visit: visit, Snapshot: run.snapshot()})

	started := time.Now()
	out, err := desc.Runner.Invoke(ctx, state)
	if err == nil {
		err = checkTransition(state, out)
	}
	duration := time.Since(started)
	if g.metrics != nil {
		g.metrics.RecordNodeVisit(ctx, string(id), duration, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("workflow node failed", slog.String("run_id", state.RunID), slog.String("node", string(id)), slog.Any("error", err))
		g.emit(Event{Type: EventNodeFailed, RunID: state.RunID, Node: id, Visit: visit, Duration: duration, Err: err.Error(), Snapshot: run.snapshot()})
		return state, &NodeError{Node: id, Visit: visit, Err: err, State: state}
	}

	g.emit(Event{Type: EventNodeSucceeded, RunID: state.RunID, Node: id, Visit: visit, Duration: duration, Snapshot: run.snapshot()})
	return out, nil
}

// checkTransition rejects node output that rewrites history without an
// audit record.
func checkTransition(in, out ports.WorkflowState) error {
	if out.OriginalRequest != in.OriginalRequest {
		return ErrRequestChanged
	}
	if len(out.Compactions) == len(in.Compactions) && !out.ExtendsMessages(in) {
		return ErrHistoryRewritten
	}
	return nil
}

func (g *Graph) fail(ctx context.Context, span trace.Span, run *tracker, state ports.WorkflowState, outcome string, err error) error {
	run.finish(PhaseFailed, time.Now())
	snap := run.snapshot()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)

	level := slog.LevelError
	if errors.Is(err, ErrRecursionLimit) {
		level = slog.LevelWarn
	}
	g.logger.Log(ctx, level, "workflow run failed",
		slog.String("run_id", state.RunID), slog.String("outcome", outcome), slog.Int("visits", snap.TotalVisits()), slog.Any("error", err))
	g.emit(Event{Type: EventRunFailed, RunID: state.RunID, Err: err.Error(), Snapshot: snap})
	g.recordRun(ctx, outcome, snap.TotalVisits())
	return err
}

func (g *Graph) recordRun(ctx context.Context, outcome string, visits int) {
	if g.metrics != nil {
		g.metrics.RecordRun(ctx, outcome, visits)
	}
}

func (g *Graph) emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	g.mu.RLock()
	listeners := append([]Listener(nil), g.listeners...)
	g.mu.RUnlock()

	for _, listener := range listeners {
		listener.OnWorkflowEvent(event)
	}
}
