package budget

import "triad/internal/agent/ports"

// Strategy names the ladder step that produced a result.
type Strategy string

const (
	StrategyNone      Strategy = "none"
	StrategyCap       Strategy = "cap"
	StrategyTruncate  Strategy = "truncate"
	StrategySummarize Strategy = "summarize"
	StrategyChunked   Strategy = "chunked"
)

// CompressionResult is produced fresh by every call and never persisted.
type CompressionResult struct {
	Content    string
	WasChunked bool
	ChunkCount int
	Strategy   Strategy

	TokensBefore int
	TokensAfter  int

	// SummarizationCalls counts model calls made for this result; cache hits
	// are not counted.
	SummarizationCalls int
	Usage              ports.TokenUsage
	// Degraded is set when a summarization failed and the content fell back
	// to an earlier rung.
	Degraded bool
}

// MessageCompaction is the outcome of bounding a message history.
type MessageCompaction struct {
	Messages []ports.Message
	// Changed reports whether Messages differs from the input.
	Changed bool
	Record  ports.CompactionRecord

	SummarizationCalls int
	Usage              ports.TokenUsage
}
