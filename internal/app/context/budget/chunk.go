package budget

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// ChunkSeparator joins chunk summaries before the final pass.
const ChunkSeparator = "\n\n---\n\n"

const minChunkSummaryTokens = 128

// SplitChunks cuts content into contiguous pieces of at most size runes.
// Concatenating the result yields content exactly; only the last chunk may be
// shorter. Cuts fall on rune boundaries.
func SplitChunks(content string, size int) []string {
	if content == "" {
		return nil
	}
	if size <= 0 {
		return []string{content}
	}
	chunks := make([]string, 0, utf8.RuneCountInString(content)/size+1)
	start, runes := 0, 0
	for i := range content {
		if runes == size {
			chunks = append(chunks, content[start:i])
			start, runes = i, 0
		}
		runes++
	}
	return append(chunks, content[start:])
}

type chunkOutcome struct {
	summaries []Summary
}

func (o chunkOutcome) texts() []string {
	out := make([]string, len(o.summaries))
	for i, s := range o.summaries {
		out[i] = s.Text
	}
	return out
}

// summarizeChunks summarizes every chunk independently with at most limit
// calls in flight. The first failure cancels the rest.
func (m *Manager) summarizeChunks(ctx context.Context, summarizer Summarizer, chunks []string) (chunkOutcome, error) {
	target := m.policy.TargetTokens / len(chunks)
	if target < minChunkSummaryTokens {
		target = minChunkSummaryTokens
	}

	results := make([]Summary, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			summary, err := m.summarizeOnce(gctx, summarizer, chunk, target)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return chunkOutcome{summaries: compactSummaries(results)}, err
	}
	return chunkOutcome{summaries: results}, nil
}

func compactSummaries(results []Summary) []Summary {
	out := results[:0:0]
	for _, s := range results {
		if s.Text != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinChunkSummaries(texts []string) string {
	return strings.Join(texts, ChunkSeparator)
}
