// Package gateway is the single call surface between workflow nodes and
// agents. Every invocation passes through the context budget before it
// reaches the agent.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"triad/internal/agent/ports"
	"triad/internal/app/context/budget"
	"triad/internal/shared/logging"
)

// ErrStreamConsumed is yielded when a stream is iterated a second time.
var ErrStreamConsumed = errors.New("gateway: stream already consumed")

// MetricsRecorder receives per-invocation telemetry.
type MetricsRecorder interface {
	RecordAgentCall(ctx context.Context, agent string, duration time.Duration, err error)
}

// Gateway wraps one agent with a context budget.
type Gateway struct {
	agent   ports.Agent
	budget  *budget.Manager
	logger  logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(logger logging.Logger) Option {
	return func(g *Gateway) { g.logger = logging.OrNop(logger) }
}

func WithMetrics(r MetricsRecorder) Option {
	return func(g *Gateway) { g.metrics = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// New builds a gateway. Both agent and manager are required.
func New(agent ports.Agent, manager *budget.Manager, opts ...Option) (*Gateway, error) {
	if agent == nil {
		return nil, errors.New("gateway: agent is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("gateway %s: budget manager is required", agent.Name())
	}
	g := &Gateway{
		agent:  agent,
		budget: manager,
		logger: logging.Nop(),
		tracer: noop.NewTracerProvider().Tracer("triad/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) Name() string {
	return g.agent.Name()
}

func (g *Gateway) Description() string {
	return g.agent.Description()
}

// Descriptor returns the node descriptor for this gateway.
func (g *Gateway) Descriptor() ports.AgentDescriptor {
	return ports.AgentDescriptor{Name: g.Name(), Description: g.Description(), Runner: g}
}

// Invoke bounds the state's history and delegates to the agent. The agent's
// result is returned as is.
func (g *Gateway) Invoke(ctx context.Context, state ports.WorkflowState) (ports.WorkflowState, error) {
	return g.run(ctx, state, func(ports.StateDelta) {})
}

// Stream is the lazy form of Invoke. It yields the agent's partial results
// and ends with a Final delta carrying the state Invoke would return, or
// with an error. The sequence runs once; iterating it again yields
// ErrStreamConsumed. Breaking out of the loop cancels the agent.
func (g *Gateway) Stream(ctx context.Context, state ports.WorkflowState) iter.Seq2[ports.StateDelta, error] {
	var consumed atomic.Bool
	return func(yield func(ports.StateDelta, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(ports.StateDelta{Agent: g.Name()}, ErrStreamConsumed)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		final, err := g.run(ctx, state, func(delta ports.StateDelta) {
			if stopped {
				return
			}
			if !yield(delta, nil) {
				stopped = true
				cancel()
			}
		})
		if stopped {
			return
		}
		if err != nil {
			yield(ports.StateDelta{Agent: g.Name()}, err)
			return
		}
		yield(ports.StateDelta{Agent: g.Name(), Final: true, State: &final}, nil)
	}
}

func (g *Gateway) run(ctx context.Context, state ports.WorkflowState, emit func(ports.StateDelta)) (ports.WorkflowState, error) {
	name := g.Name()
	ctx, span := g.tracer.Start(ctx, "triad.gateway.invoke",
		trace.WithAttributes(attribute.String("triad.agent", name), attribute.String("triad.run_id", state.RunID)))
	defer span.End()

	prepared := g.prepare(ctx, state)
	started := time.Now()
	out, err := g.agent.Stream(ctx, prepared, emit)
	if g.metrics != nil {
		g.metrics.RecordAgentCall(ctx, name, time.Since(started), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return prepared, err
	}
	return out, nil
}

// prepare applies the budget to state. Summarization spend is charged to the
// state's overhead, never to its messages.
func (g *Gateway) prepare(ctx context.Context, state ports.WorkflowState) ports.WorkflowState {
	ctx = budget.WithRunID(ctx, state.RunID)
	compaction := g.budget.CompactMessages(ctx, g.Name(), state.Messages)

	prepared := state
	if compaction.Changed {
		prepared = state.WithHistory(compaction.Messages, compaction.Record)
		g.logger.Debug("%s: history %s (%d -> %d messages)", g.Name(),
			compaction.Record.Strategy, compaction.Record.MessagesBefore, compaction.Record.MessagesAfter)
	}
	if compaction.SummarizationCalls > 0 {
		prepared = prepared.WithOverhead(compaction.SummarizationCalls, compaction.Usage)
	}
	return prepared
}
