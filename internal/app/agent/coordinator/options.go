package coordinator

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"triad/internal/agent/ports"
	"triad/internal/diff"
	"triad/internal/shared/logging"
	"triad/internal/workflow"
)

type options struct {
	logger    *slog.Logger
	llmLog    *logging.Sink
	tracer    trace.Tracer
	metrics   Metrics
	listeners []workflow.Listener
	clients   Clients
	onDelta   func(ports.StateDelta)
	diff      *diff.Generator
	newRunID  func() string
}

// Option configures optional dependencies of the coordinator.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLLMLog mirrors model client and context budget logs into sink.
func WithLLMLog(sink *logging.Sink) Option {
	return func(o *options) { o.llmLog = sink }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

func WithMetrics(metrics Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithListener subscribes to workflow lifecycle events.
func WithListener(listener workflow.Listener) Option {
	return func(o *options) {
		if listener != nil {
			o.listeners = append(o.listeners, listener)
		}
	}
}

// WithClients replaces the configured model handles, typically with
// scripted ones.
func WithClients(clients Clients) Option {
	return func(o *options) { o.clients = clients }
}

// WithDeltaHandler receives every partial agent result as it is produced.
func WithDeltaHandler(fn func(ports.StateDelta)) Option {
	return func(o *options) { o.onDelta = fn }
}

// WithDiffGenerator sets how file changes are rendered.
func WithDiffGenerator(gen *diff.Generator) Option {
	return func(o *options) {
		if gen != nil {
			o.diff = gen
		}
	}
}

func withRunIDs(fn func() string) Option {
	return func(o *options) { o.newRunID = fn }
}

func (o options) modelLogger(component string) logging.Logger {
	base := logging.FromSlog(o.logger, component)
	if o.llmLog == nil {
		return base
	}
	return logging.Multi(base, o.llmLog.Component(component))
}
