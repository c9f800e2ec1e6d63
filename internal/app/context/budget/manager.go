package budget

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"triad/internal/agent/ports"
	"triad/internal/shared/logging"
	tokenutil "triad/internal/shared/token"
)

const (
	defaultChunkConcurrency = 4
	truncationMarker        = "[earlier content truncated]\n"
	summaryPrefix           = "Summary of earlier conversation:\n\n"
)

// MetricsRecorder receives compression telemetry.
type MetricsRecorder interface {
	RecordCompression(ctx context.Context, strategy string, tokensBefore, tokensAfter, chunks int)
	RecordSummarization(ctx context.Context, duration time.Duration, err error)
}

// Manager applies a CompressionPolicy. It holds no per-call state and is safe
// for concurrent use.
type Manager struct {
	policy      CompressionPolicy
	summarizer  Summarizer
	estimator   tokenutil.Estimator
	concurrency int
	overhead    *OverheadTracker
	logger      logging.Logger
	metrics     MetricsRecorder
	tracer      trace.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithSummarizer binds a model-backed summarizer. Without one only
// truncation is available.
func WithSummarizer(s Summarizer) Option {
	return func(m *Manager) { m.summarizer = s }
}

// WithEstimator replaces the default runes/4 estimator.
func WithEstimator(e tokenutil.Estimator) Option {
	return func(m *Manager) {
		if e != nil {
			m.estimator = e
		}
	}
}

// WithChunkConcurrency bounds concurrent chunk summarizations.
func WithChunkConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithOverheadTracker charges summarization calls to the run found in the
// call context. A run that exhausts its quota is served by truncation only.
func WithOverheadTracker(t *OverheadTracker) Option {
	return func(m *Manager) { m.overhead = t }
}

func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(logger) }
}

func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// NewManager validates policy and builds a Manager.
func NewManager(policy CompressionPolicy, opts ...Option) (*Manager, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		policy:      policy,
		estimator:   tokenutil.NewCharEstimator(tokenutil.DefaultCharsPerToken),
		concurrency: defaultChunkConcurrency,
		logger:      logging.Nop(),
		tracer:      noop.NewTracerProvider().Tracer("triad/budget"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// EstimateTokens approximates the token count of text.
func (m *Manager) EstimateTokens(text string) int {
	return m.estimator.Estimate(text)
}

// EstimateMessages approximates the token count of a rendered history.
func (m *Manager) EstimateMessages(messages []ports.Message) int {
	return m.estimator.Estimate(ports.RenderTranscript(messages))
}

// ProcessLargeContext bounds a single piece of content, taking the cheapest
// ladder step that applies: unchanged, tail truncation (no summarizer),
// single-pass summarization, or chunked summarization with a final pass.
func (m *Manager) ProcessLargeContext(ctx context.Context, content string) CompressionResult {
	ctx, span := m.tracer.Start(ctx, "triad.budget.process_large_context")
	defer span.End()

	before := m.EstimateTokens(content)
	res := CompressionResult{Content: content, Strategy: StrategyNone, TokensBefore: before, TokensAfter: before}
	if before <= m.policy.MaxTokens {
		m.finish(ctx, span, res)
		return res
	}

	summarizer := m.summarizerFor(ctx)
	if summarizer == nil {
		res = m.truncateText(content, before)
	} else {
		res = m.summarizeContent(ctx, summarizer, content, before)
	}
	m.finish(ctx, span, res)
	return res
}

// BoundText runs the ProcessLargeContext ladder and truncates whatever is
// still above MaxTokens, so the result always fits the policy.
func (m *Manager) BoundText(ctx context.Context, content string) string {
	res := m.ProcessLargeContext(ctx, content)
	if res.TokensAfter <= m.policy.MaxTokens {
		return res.Content
	}
	return m.truncateText(res.Content, res.TokensAfter).Content
}

// CompressContext summarizes content in one pass. When no summarizer is bound
// or the call fails, the original content is returned unchanged.
func (m *Manager) CompressContext(ctx context.Context, content string) CompressionResult {
	before := m.EstimateTokens(content)
	summarizer := m.summarizerFor(ctx)
	if summarizer == nil {
		return CompressionResult{Content: content, Strategy: StrategyNone, TokensBefore: before, TokensAfter: before}
	}
	return m.singlePass(ctx, summarizer, content, before)
}

// CompactMessages bounds a message history for agent. It applies the hard
// MaxMessages cap first, then, if the capped history still exceeds MaxTokens
// and a summarizer is available, folds everything but the latest message into
// one summary message. Retained messages keep their relative order.
func (m *Manager) CompactMessages(ctx context.Context, agent string, messages []ports.Message) MessageCompaction {
	ctx, span := m.tracer.Start(ctx, "triad.budget.compact_messages",
		trace.WithAttributes(attribute.String("triad.agent", agent), attribute.Int("triad.messages", len(messages))))
	defer span.End()

	tokensBefore := m.EstimateMessages(messages)
	out := MessageCompaction{
		Messages: messages,
		Record: ports.CompactionRecord{
			Agent:          agent,
			Strategy:       string(StrategyNone),
			MessagesBefore: len(messages),
			MessagesAfter:  len(messages),
			TokensBefore:   tokensBefore,
			TokensAfter:    tokensBefore,
		},
	}

	kept := messages
	strategy := StrategyNone
	if len(kept) > m.policy.MaxMessages {
		kept = kept[len(kept)-m.policy.MaxMessages:]
		strategy = StrategyCap
	}

	tokens := m.EstimateMessages(kept)
	if tokens > m.policy.MaxTokens {
		if summarizer := m.summarizerFor(ctx); summarizer != nil {
			var res CompressionResult
			kept, res = m.summarizeHistory(ctx, summarizer, kept)
			out.SummarizationCalls = res.SummarizationCalls
			out.Usage = res.Usage
			if res.Strategy == StrategySummarize || res.Strategy == StrategyChunked {
				strategy = res.Strategy
				out.Record.WasChunked = res.WasChunked
				out.Record.ChunkCount = res.ChunkCount
			}
			tokens = m.EstimateMessages(kept)
		} else {
			m.logger.Debug("history for %s still ~%d tokens after cap; no summarizer bound", agent, tokens)
		}
	}

	if strategy == StrategyNone {
		m.record(ctx, CompressionResult{Strategy: StrategyNone, TokensBefore: tokensBefore, TokensAfter: tokensBefore})
		return out
	}

	out.Messages = kept
	out.Changed = true
	out.Record.Strategy = string(strategy)
	out.Record.MessagesAfter = len(kept)
	out.Record.TokensAfter = tokens
	span.SetAttributes(attribute.String("triad.strategy", string(strategy)), attribute.Int("triad.messages_after", len(kept)))
	m.logger.Info("compacted history for %s: %s, %d -> %d messages, ~%d -> ~%d tokens",
		agent, strategy, len(messages), len(kept), tokensBefore, tokens)
	m.record(ctx, CompressionResult{
		Strategy:     strategy,
		TokensBefore: tokensBefore,
		TokensAfter:  tokens,
		ChunkCount:   out.Record.ChunkCount,
	})
	return out
}

func (m *Manager) summarizeHistory(ctx context.Context, summarizer Summarizer, messages []ports.Message) ([]ports.Message, CompressionResult) {
	last := messages[len(messages)-1]
	if len(messages) == 1 {
		res := m.summarizeContent(ctx, summarizer, last.Content, m.EstimateTokens(last.Content))
		if res.Strategy == StrategyNone {
			return messages, res
		}
		replaced := last.Clone()
		replaced.Content = res.Content
		return []ports.Message{replaced}, res
	}

	transcript := ports.RenderTranscript(messages[:len(messages)-1])
	res := m.summarizeContent(ctx, summarizer, transcript, m.EstimateTokens(transcript))
	if res.Strategy == StrategyNone {
		return messages, res
	}
	summary := ports.Message{
		Role:    ports.RoleSystem,
		Content: summaryPrefix + res.Content,
		Source:  ports.MessageSourceCompression,
	}
	return []ports.Message{summary, last.Clone()}, res
}

// summarizeContent runs ladder steps 4 and 5 on content already known to be
// over budget.
func (m *Manager) summarizeContent(ctx context.Context, summarizer Summarizer, content string, tokens int) CompressionResult {
	if tokens <= 2*m.policy.MaxTokens || !m.policy.EnableChunking {
		return m.singlePass(ctx, summarizer, content, tokens)
	}
	chunks := SplitChunks(content, m.chunkSize())
	if len(chunks) <= 1 {
		return m.singlePass(ctx, summarizer, content, tokens)
	}
	return m.chunked(ctx, summarizer, content, tokens, chunks)
}

func (m *Manager) singlePass(ctx context.Context, summarizer Summarizer, content string, tokens int) CompressionResult {
	res := CompressionResult{Content: content, Strategy: StrategyNone, TokensBefore: tokens, TokensAfter: tokens}
	summary, err := m.summarizeOnce(ctx, summarizer, content, m.policy.TargetTokens)
	if err != nil {
		m.logger.Warn("context summarization failed, keeping original content (~%d tokens): %v", tokens, err)
		res.Degraded = true
		return res
	}
	res.Content = summary.Text
	res.Strategy = StrategySummarize
	res.TokensAfter = m.EstimateTokens(summary.Text)
	res.Usage = usageOf(summary)
	if !summary.Cached {
		res.SummarizationCalls = 1
	}
	return res
}

func (m *Manager) chunked(ctx context.Context, summarizer Summarizer, content string, tokens int, chunks []string) CompressionResult {
	res := CompressionResult{Content: content, Strategy: StrategyNone, TokensBefore: tokens, TokensAfter: tokens}
	outcome, err := m.summarizeChunks(ctx, summarizer, chunks)
	for _, s := range outcome.summaries {
		res.Usage = res.Usage.Add(usageOf(s))
		if !s.Cached {
			res.SummarizationCalls++
		}
	}
	if err != nil {
		m.logger.Warn("chunk summarization failed, keeping original content (%d chunks): %v", len(chunks), err)
		res.Degraded = true
		return res
	}

	joined := joinChunkSummaries(outcome.texts())
	res.WasChunked = true
	res.ChunkCount = len(chunks)
	res.Strategy = StrategyChunked

	final, err := m.summarizeOnce(ctx, summarizer, joined, m.policy.TargetTokens)
	if err != nil {
		m.logger.Warn("final summarization pass failed, using joined chunk summaries: %v", err)
		res.Content = joined
		res.TokensAfter = m.EstimateTokens(joined)
		res.Degraded = true
		return res
	}
	res.Usage = res.Usage.Add(usageOf(final))
	if !final.Cached {
		res.SummarizationCalls++
	}
	res.Content = final.Text
	res.TokensAfter = m.EstimateTokens(final.Text)
	return res
}

func (m *Manager) summarizeOnce(ctx context.Context, summarizer Summarizer, text string, target int) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	started := time.Now()
	summary, err := summarizer.Summarize(ctx, text, target)
	if err == nil && summary.Text == "" {
		err = ErrEmptySummary
	}
	if m.metrics != nil && !summary.Cached {
		m.metrics.RecordSummarization(ctx, time.Since(started), err)
	}
	if err != nil {
		return Summary{}, err
	}
	if m.overhead != nil {
		m.overhead.Record(RunIDFromContext(ctx), summary)
	}
	m.logger.Debug("summarization overhead: cached=%t prompt=%d completion=%d",
		summary.Cached, summary.Usage.PromptTokens, summary.Usage.CompletionTokens)
	return summary, nil
}

// truncateText keeps the most recent MaxTokens worth of characters.
func (m *Manager) truncateText(content string, tokens int) CompressionResult {
	keep := m.policy.MaxTokens*m.estimator.CharsPerToken() - len(truncationMarker)
	if keep < 0 {
		keep = 0
	}
	truncated := truncationMarker + tokenutil.TailRunes(content, keep)
	return CompressionResult{
		Content:      truncated,
		Strategy:     StrategyTruncate,
		TokensBefore: tokens,
		TokensAfter:  m.EstimateTokens(truncated),
	}
}

func (m *Manager) summarizerFor(ctx context.Context) Summarizer {
	if m.summarizer == nil {
		return nil
	}
	if m.overhead != nil {
		if runID := RunIDFromContext(ctx); runID != "" {
			check := m.overhead.Check(runID)
			switch check.State {
			case OverheadExceeded:
				m.logger.Warn("summarization quota exhausted for run %s; falling back to truncation", runID)
				return nil
			case OverheadWarning:
				m.logger.Warn("summarization overhead for run %s at %.0f%% of quota, %d tokens left",
					runID, check.UsagePercent*100, check.RemainingTokens)
			}
		}
	}
	return m.summarizer
}

func (m *Manager) chunkSize() int {
	return m.policy.MaxChunkTokens * m.estimator.CharsPerToken()
}

func (m *Manager) finish(ctx context.Context, span trace.Span, res CompressionResult) {
	span.SetAttributes(
		attribute.String("triad.strategy", string(res.Strategy)),
		attribute.Int("triad.tokens_before", res.TokensBefore),
		attribute.Int("triad.tokens_after", res.TokensAfter),
		attribute.Int("triad.chunks", res.ChunkCount),
	)
	if res.Degraded {
		span.SetStatus(codes.Error, fmt.Sprintf("degraded to %s", res.Strategy))
	}
	m.record(ctx, res)
}

func (m *Manager) record(ctx context.Context, res CompressionResult) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordCompression(ctx, string(res.Strategy), res.TokensBefore, res.TokensAfter, res.ChunkCount)
}
