// Package tokenutil estimates token counts for context budgeting.
//
// The default estimator divides the character count by a fixed divisor. The
// figure is only required to grow with input size; it is not a faithful
// tokenization. A tiktoken-backed estimator (cl100k_base) is available for
// callers that want tighter numbers and falls back to the character heuristic
// when the encoding cannot be loaded.
package tokenutil

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultCharsPerToken is the divisor used when none is configured.
const DefaultCharsPerToken = 4

// Estimator approximates the token count of a piece of text.
type Estimator interface {
	Estimate(text string) int
	// CharsPerToken reports the character budget of one token, used to size
	// chunks and tail truncation.
	CharsPerToken() int
}

// CharEstimator approximates tokens as runes / Divisor.
type CharEstimator struct {
	Divisor int
}

// NewCharEstimator returns an estimator with the given divisor; values below
// one fall back to DefaultCharsPerToken.
func NewCharEstimator(divisor int) CharEstimator {
	if divisor < 1 {
		divisor = DefaultCharsPerToken
	}
	return CharEstimator{Divisor: divisor}
}

// Estimate is monotonic in the rune count of text.
func (e CharEstimator) Estimate(text string) int {
	return utf8.RuneCountInString(text) / e.CharsPerToken()
}

func (e CharEstimator) CharsPerToken() int {
	if e.Divisor < 1 {
		return DefaultCharsPerToken
	}
	return e.Divisor
}

// TiktokenEstimator counts tokens with the cl100k_base encoding.
type TiktokenEstimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
	fallback CharEstimator
}

// NewTiktokenEstimator creates an estimator that lazily loads cl100k_base on
// first use.
func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{fallback: NewCharEstimator(DefaultCharsPerToken)}
}

func (e *TiktokenEstimator) load() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.encoding = enc
		}
	})
	return e.encoding
}

// Available reports whether the encoding loaded.
func (e *TiktokenEstimator) Available() bool {
	return e.load() != nil
}

func (e *TiktokenEstimator) Estimate(text string) int {
	if enc := e.load(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return e.fallback.Estimate(text)
}

func (e *TiktokenEstimator) CharsPerToken() int {
	return e.fallback.CharsPerToken()
}

// TailRunes returns the last n runes of text, or text itself when it is
// already short enough.
func TailRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[len(runes)-n:])
}
