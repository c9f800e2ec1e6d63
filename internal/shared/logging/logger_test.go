package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.lines = append(r.lines, "debug") }
func (r *recordingLogger) Info(format string, args ...any)  { r.lines = append(r.lines, "info") }
func (r *recordingLogger) Warn(format string, args ...any)  { r.lines = append(r.lines, "warn") }
func (r *recordingLogger) Error(format string, args ...any) { r.lines = append(r.lines, "error") }

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var typed *recordingLogger
	var logger Logger = typed
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world")
}

func TestFromSlogFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger := FromSlog(base, "test")
	logger.Info("hello %s", "world")

	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected formatted message, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "component=test") {
		t.Fatalf("expected component attribute, got %q", buf.String())
	}
}

func TestMultiFlattensAndSkipsNil(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	var typed *recordingLogger

	logger := Multi(a, nil, typed, Multi(b))
	logger.Warn("x")

	if len(a.lines) != 1 || len(b.lines) != 1 {
		t.Fatalf("expected both loggers to receive one line, got %v %v", a.lines, b.lines)
	}
	if Multi() == nil {
		t.Fatalf("expected nop logger for empty fan-out")
	}
}

func TestSinkComponentRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	sink := NewSink(buf, LevelWarn, CategoryService)
	logger := sink.Component("budget")

	logger.Info("dropped")
	logger.Warn("kept %d", 1)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] [SERVICE] [budget]") || !strings.Contains(out, "kept 1") {
		t.Fatalf("unexpected line format: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": LevelDebug, "WARN": LevelWarn, "error": LevelError, "": LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
