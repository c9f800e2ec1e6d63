// Package textutil holds small rune-aware string helpers shared by the agents
// and the CLI.
package textutil

import (
	"strings"
	"unicode"
)

// SmartTruncate trims value and, when it exceeds limit runes, keeps a head
// and a tail joined by " ... ".
func SmartTruncate(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || limit <= 0 {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return trimmed
	}
	if limit <= 10 {
		return string(runes[:limit])
	}
	headLen := limit * 6 / 10
	tailLen := max(limit-headLen-5, 1)
	return string(runes[:headLen]) + " ... " + string(runes[len(runes)-tailLen:])
}

// TruncateWithEllipsis cuts input to limit runes, the last being an ellipsis.
func TruncateWithEllipsis(input string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	if limit == 1 {
		return "…"
	}
	head := strings.TrimSpace(string(runes[:limit-1]))
	if head == "" {
		head = string(runes[:limit-1])
	}
	return head + "…"
}

// FirstLine returns the first non-blank line of value, trimmed.
func FirstLine(value string) string {
	for line := range strings.Lines(value) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// SimilarityScore is the Jaccard index of the distinct lowercased word sets
// of a and b. Words shorter than two bytes are ignored.
func SimilarityScore(a, b string) float64 {
	wordsA := words(a)
	wordsB := words(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	intersection := 0
	for word := range wordsB {
		if _, ok := wordsA[word]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func words(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		lower := strings.ToLower(field)
		if len(lower) < 2 {
			continue
		}
		set[lower] = struct{}{}
	}
	return set
}
