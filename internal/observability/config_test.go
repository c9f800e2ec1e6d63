package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "jaeger"
	assert.Error(t, cfg.Validate())

	cfg.Tracing.Exporter = "zipkin"
	cfg.Tracing.SampleRate = 2
	assert.Error(t, cfg.Validate())
}

func TestNewLoggerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	exporter := tracetest.NewInMemoryExporter()
	tp, err := newTracerProvider(TracingConfig{}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	ctx, span := tp.Tracer().Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span", "k", "v")
	span.End()
	logger.Debug("outside span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"trace_id":"`+span.SpanContext().TraceID().String()+`"`)
	assert.NotContains(t, lines[1], "trace_id")

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Len(t, exporter.GetSpans(), 1)
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestDisabledTracingIsNoop(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{})
	require.NoError(t, err)
	_, span := tp.Tracer().Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewTracerProvider(TracingConfig{Enabled: true, Exporter: "carrier-pigeon"})
	assert.Error(t, err)
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsRecordsWorkflowTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := newMetricsWithReader(reader, nil)
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordNodeVisit(ctx, "coder", time.Second, nil)
	m.RecordNodeVisit(ctx, "tester", time.Second, errors.New("boom"))
	m.RecordRun(ctx, "completed", 4)
	m.RecordAgentCall(ctx, "planner", time.Millisecond, nil)
	m.RecordCompression(ctx, "chunked", 9000, 1500, 3)
	m.RecordSummarization(ctx, time.Millisecond, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(2), sumOf(t, rm, "triad.workflow.node.visits"))
	assert.Equal(t, int64(1), sumOf(t, rm, "triad.workflow.runs"))
	assert.Equal(t, int64(1), sumOf(t, rm, "triad.agent.calls"))
	assert.Equal(t, int64(7500), sumOf(t, rm, "triad.context.tokens_saved"))
	assert.Equal(t, int64(3), sumOf(t, rm, "triad.context.chunks"))
	assert.Equal(t, int64(1), sumOf(t, rm, "triad.context.summaries"))
}

func TestMetricsHandlerServesPrometheus(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, err)
	m.RecordRun(context.Background(), "completed", 4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "triad_workflow_runs")
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestDisabledMetricsRecordNothing(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	require.NoError(t, err)
	m.RecordRun(context.Background(), "completed", 1)

	_, err = m.Serve("127.0.0.1:0")
	assert.Error(t, err)
	assert.NoError(t, m.Shutdown(context.Background()))
}
