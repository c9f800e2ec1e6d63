package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures metric collection. Addr, when set, serves
// /metrics for Prometheus scraping.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Metrics records workflow, gateway and compression telemetry. It satisfies
// the recorder interfaces of the workflow, gateway and budget packages. A
// Metrics built with metrics disabled records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry
	server   *http.Server

	nodeVisits    metric.Int64Counter
	nodeDuration  metric.Float64Histogram
	runs          metric.Int64Counter
	runVisits     metric.Int64Histogram
	agentCalls    metric.Int64Counter
	agentDuration metric.Float64Histogram
	compressions  metric.Int64Counter
	tokensSaved   metric.Int64Counter
	chunks        metric.Int64Counter
	summaries     metric.Int64Counter
	summaryTime   metric.Float64Histogram
}

// NewMetrics builds a meter exporting to a dedicated Prometheus registry.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if !config.Enabled {
		return newMetrics(noop.NewMeterProvider().Meter("triad"), nil, nil)
	}
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	return newMetricsWithReader(exporter, registry)
}

func newMetricsWithReader(reader sdkmetric.Reader, registry *prometheus.Registry) (*Metrics, error) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return newMetrics(provider.Meter("triad"), provider, registry)
}

func newMetrics(meter metric.Meter, provider *sdkmetric.MeterProvider, registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{provider: provider, registry: registry}
	var errs []error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}
	histogram := func(name, desc, unit string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return h
	}

	m.nodeVisits = counter("triad.workflow.node.visits", "Workflow node executions", "{visit}")
	m.nodeDuration = histogram("triad.workflow.node.duration", "Workflow node execution time", "s")
	m.runs = counter("triad.workflow.runs", "Completed or failed workflow runs", "{run}")
	runVisits, err := meter.Int64Histogram("triad.workflow.run.visits",
		metric.WithDescription("Node executions per workflow run"), metric.WithUnit("{visit}"))
	errs = append(errs, err)
	m.runVisits = runVisits
	m.agentCalls = counter("triad.agent.calls", "Gateway invocations per agent", "{call}")
	m.agentDuration = histogram("triad.agent.duration", "Gateway invocation time", "s")
	m.compressions = counter("triad.context.compressions", "Context compressions by strategy", "{compression}")
	m.tokensSaved = counter("triad.context.tokens_saved", "Estimated tokens removed by compression", "{token}")
	m.chunks = counter("triad.context.chunks", "Chunks summarized by chunked compression", "{chunk}")
	m.summaries = counter("triad.context.summaries", "Summarization calls", "{call}")
	m.summaryTime = histogram("triad.context.summary.duration", "Summarization call time", "s")

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return m, nil
}

// Handler serves the Prometheus exposition of the collected metrics.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the /metrics endpoint on addr and returns the bound address.
func (m *Metrics) Serve(addr string) (string, error) {
	if m.registry == nil {
		return "", errors.New("metrics are disabled")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = m.server.Serve(listener) }()
	return listener.Addr().String(), nil
}

// Shutdown stops the endpoint and flushes the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	var errs []error
	if m.server != nil {
		errs = append(errs, m.server.Shutdown(ctx))
	}
	if m.provider != nil {
		errs = append(errs, m.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func status(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "ok")
}

func (m *Metrics) RecordNodeVisit(ctx context.Context, node string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node", node), status(err))
	m.nodeVisits.Add(ctx, 1, attrs)
	m.nodeDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) RecordRun(ctx context.Context, outcome string, visits int) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.runVisits.Record(ctx, int64(visits), attrs)
}

func (m *Metrics) RecordAgentCall(ctx context.Context, agent string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("agent", agent), status(err))
	m.agentCalls.Add(ctx, 1, attrs)
	m.agentDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) RecordCompression(ctx context.Context, strategy string, tokensBefore, tokensAfter, chunks int) {
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	m.compressions.Add(ctx, 1, attrs)
	if saved := tokensBefore - tokensAfter; saved > 0 {
		m.tokensSaved.Add(ctx, int64(saved), attrs)
	}
	if chunks > 0 {
		m.chunks.Add(ctx, int64(chunks))
	}
}

func (m *Metrics) RecordSummarization(ctx context.Context, duration time.Duration, err error) {
	attrs := metric.WithAttributes(status(err))
	m.summaries.Add(ctx, 1, attrs)
	m.summaryTime.Record(ctx, duration.Seconds(), attrs)
}
