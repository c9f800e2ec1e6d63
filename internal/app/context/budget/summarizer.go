package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"

	"triad/internal/agent/ports"
)

// DefaultSummaryInstruction is the fixed instruction sent with every
// summarization call.
const DefaultSummaryInstruction = `You compress working context for a software engineering agent.
Summarize the content below so that another engineer can continue the work without reading it.
Keep: decisions taken, file paths, function and type names, commands run and their outcomes,
errors still unresolved, and any explicit requirements from the user.
Drop: pleasantries, repeated tool output, and reasoning that led nowhere.
Write plain prose and short bullet lists. Do not add information that is not in the content.`

// ErrEmptySummary is returned when the model answers with no text.
var ErrEmptySummary = errors.New("summarizer returned empty content")

// Summary is one summarization outcome.
type Summary struct {
	Text  string
	Usage ports.TokenUsage
	// Cached is set when the text came from a cache rather than a model call.
	Cached bool
}

// Summarizer condenses text to roughly targetTokens tokens.
type Summarizer interface {
	Summarize(ctx context.Context, text string, targetTokens int) (Summary, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, text string, targetTokens int) (Summary, error)

func (f SummarizerFunc) Summarize(ctx context.Context, text string, targetTokens int) (Summary, error) {
	return f(ctx, text, targetTokens)
}

// ModelSummarizer summarizes through a model handle. Its calls are never
// part of any conversation.
type ModelSummarizer struct {
	client      ports.LLMClient
	instruction string
	temperature float64
}

// NewModelSummarizer returns a nil Summarizer when client is nil so callers
// can pass the result straight to WithSummarizer.
func NewModelSummarizer(client ports.LLMClient, instruction string) Summarizer {
	if client == nil {
		return nil
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultSummaryInstruction
	}
	return &ModelSummarizer{client: client, instruction: instruction, temperature: 0.2}
}

func (s *ModelSummarizer) Summarize(ctx context.Context, text string, targetTokens int) (Summary, error) {
	prompt := s.instruction
	if targetTokens > 0 {
		prompt = fmt.Sprintf("%s\nKeep the summary under about %d tokens.", prompt, targetTokens)
	}
	resp, err := s.client.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{
			ports.NewSystemMessage(prompt),
			{Role: ports.RoleUser, Content: text, Source: ports.MessageSourceCompression},
		},
		Temperature: s.temperature,
		MaxTokens:   targetTokens,
		Metadata:    map[string]any{"intent": "context_summarization"},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize with %s: %w", s.client.Model(), err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Summary{}, ErrEmptySummary
	}
	return Summary{Text: strings.TrimSpace(resp.Content), Usage: resp.Usage}, nil
}

type summaryKey [32]byte

// CachedSummarizer memoizes summaries by content hash and target size. Only
// successful summaries are cached.
type CachedSummarizer struct {
	next  Summarizer
	cache *lru.Cache[summaryKey, string]
}

// NewCachedSummarizer wraps next with an LRU of the given size. A size below
// one disables caching and returns next unchanged.
func NewCachedSummarizer(next Summarizer, size int) (Summarizer, error) {
	if next == nil || size < 1 {
		return next, nil
	}
	cache, err := lru.New[summaryKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("create summary cache: %w", err)
	}
	return &CachedSummarizer{next: next, cache: cache}, nil
}

func (s *CachedSummarizer) Summarize(ctx context.Context, text string, targetTokens int) (Summary, error) {
	key := cacheKey(text, targetTokens)
	if cached, ok := s.cache.Get(key); ok {
		return Summary{Text: cached, Cached: true}, nil
	}
	summary, err := s.next.Summarize(ctx, text, targetTokens)
	if err != nil {
		return Summary{}, err
	}
	s.cache.Add(key, summary.Text)
	return summary, nil
}

// Len reports the number of cached summaries.
func (s *CachedSummarizer) Len() int {
	return s.cache.Len()
}

func cacheKey(text string, targetTokens int) summaryKey {
	h := blake3.New()
	_, _ = fmt.Fprintf(h, "%d\x00", targetTokens)
	_, _ = h.Write([]byte(text))
	var key summaryKey
	copy(key[:], h.Sum(nil))
	return key
}
