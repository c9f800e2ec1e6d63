package textutil

import "testing"

func TestSmartTruncate(t *testing.T) {
	if got := SmartTruncate("  short  ", 20); got != "short" {
		t.Fatalf("got %q", got)
	}
	got := SmartTruncate("abcdefghijklmnopqrstuvwxyz", 20)
	if got != "abcdefghijkl ... xyz" {
		t.Fatalf("got %q", got)
	}
	if got := SmartTruncate("abcdefghijkl", 5); got != "abcde" {
		t.Fatalf("got %q", got)
	}
	if got := SmartTruncate("value", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	if got := TruncateWithEllipsis("héllo wörld", 6); got != "héllo…" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateWithEllipsis("ok", 5); got != "ok" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateWithEllipsis("abc", 1); got != "…" {
		t.Fatalf("got %q", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n  \n  first line \nsecond"); got != "first line" {
		t.Fatalf("got %q", got)
	}
	if got := FirstLine(""); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestSimilarityScore(t *testing.T) {
	if score := SimilarityScore("hello world", "Hello, world!"); score != 1 {
		t.Fatalf("score=%v want=1", score)
	}
	if score := SimilarityScore("hello world", "hello there"); score != 1.0/3.0 {
		t.Fatalf("score=%v want=1/3", score)
	}
	if score := SimilarityScore(" ", "hello"); score != 0 {
		t.Fatalf("score=%v want=0", score)
	}
}
