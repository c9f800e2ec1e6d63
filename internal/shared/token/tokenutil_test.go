package tokenutil

import (
	"strings"
	"testing"
)

func TestCharEstimator_Divisor(t *testing.T) {
	e := NewCharEstimator(4)
	if got := e.Estimate(strings.Repeat("a", 4000)); got != 1000 {
		t.Errorf("Estimate(4000 chars) = %d, want 1000", got)
	}
	if got := e.Estimate(""); got != 0 {
		t.Errorf("Estimate(\"\") = %d, want 0", got)
	}
}

func TestCharEstimator_InvalidDivisorFallsBack(t *testing.T) {
	e := NewCharEstimator(0)
	if e.CharsPerToken() != DefaultCharsPerToken {
		t.Errorf("CharsPerToken() = %d, want %d", e.CharsPerToken(), DefaultCharsPerToken)
	}
	var zero CharEstimator
	if got := zero.Estimate("abcdefgh"); got != 2 {
		t.Errorf("zero-value Estimate = %d, want 2", got)
	}
}

func TestCharEstimator_Monotonic(t *testing.T) {
	e := NewCharEstimator(3)
	prev := 0
	for n := 0; n < 200; n++ {
		got := e.Estimate(strings.Repeat("x", n))
		if got < prev {
			t.Fatalf("estimate decreased at %d chars: %d < %d", n, got, prev)
		}
		prev = got
	}
}

func TestCharEstimator_CountsRunesNotBytes(t *testing.T) {
	e := NewCharEstimator(4)
	if got := e.Estimate("你好世界"); got != 1 {
		t.Errorf("Estimate(4 runes) = %d, want 1", got)
	}
}

func TestTiktokenEstimator_NeverNegative(t *testing.T) {
	e := NewTiktokenEstimator()
	got := e.Estimate("hello world")
	if got <= 0 {
		t.Errorf("Estimate(\"hello world\") = %d, want > 0", got)
	}
	// "hello world" is 2 tokens with cl100k_base
	if e.Available() && got != 2 {
		t.Errorf("Estimate(\"hello world\") = %d, want 2 (tiktoken)", got)
	}
}

func TestTailRunes(t *testing.T) {
	if got := TailRunes("abcdef", 3); got != "def" {
		t.Errorf("TailRunes = %q, want def", got)
	}
	if got := TailRunes("ab", 3); got != "ab" {
		t.Errorf("TailRunes short = %q, want ab", got)
	}
	if got := TailRunes("ab", 0); got != "" {
		t.Errorf("TailRunes zero = %q, want empty", got)
	}
}
