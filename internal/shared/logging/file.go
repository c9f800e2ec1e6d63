package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogDirEnvVar overrides the directory log files are written to.
const LogDirEnvVar = "TRIAD_LOG_DIR"

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category selects the log file a logger writes to.
type Category string

const (
	CategoryService Category = "service"
	CategoryLLM     Category = "llm"
)

// Sink owns one open log destination. Component loggers created from it share
// the writer and serialize writes through the sink's mutex.
type Sink struct {
	mu       sync.Mutex
	out      *log.Logger
	closer   io.Closer
	level    Level
	category Category
}

// NewSink wraps an arbitrary writer. Tests use it with a bytes.Buffer.
func NewSink(w io.Writer, level Level, category Category) *Sink {
	return &Sink{out: log.New(w, "", 0), level: level, category: category}
}

// OpenFileSink opens (or creates) the log file for category under the
// resolved log directory.
func OpenFileSink(dir string, level Level, category Category) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		resolved, err := ResolveLogDirectory()
		if err != nil {
			return nil, err
		}
		dir = resolved
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	file, err := os.OpenFile(filepath.Join(dir, logFileName(category)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	sink := NewSink(file, level, category)
	sink.closer = file
	return sink, nil
}

// ResolveLogDirectory returns $TRIAD_LOG_DIR or ~/.triad.
func ResolveLogDirectory() (string, error) {
	if override := strings.TrimSpace(os.Getenv(LogDirEnvVar)); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".triad"), nil
}

func logFileName(category Category) string {
	switch category {
	case CategoryLLM:
		return "triad-llm.log"
	default:
		return "triad-service.log"
	}
}

// Close closes the underlying file, if any.
func (s *Sink) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Component returns a Logger scoped to component.
func (s *Sink) Component(component string) Logger {
	if s == nil {
		return Nop()
	}
	return &componentLogger{sink: s, component: component}
}

type componentLogger struct {
	sink      *Sink
	component string
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

func (l *componentLogger) log(level Level, format string, args ...any) {
	if level < l.sink.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	// Format: 2025-09-30 12:34:56 [INFO] [SERVICE] [component] file.go:123 - Message
	component := l.component
	if component == "" {
		component = "TRIAD"
	}
	category := strings.ToUpper(string(l.sink.category))
	if category == "" {
		category = "SERVICE"
	}
	logLine := fmt.Sprintf("%s [%s] [%s] [%s] %s:%d - %s",
		time.Now().Format("2006-01-02 15:04:05"), levelString(level), category, component, file, line,
		fmt.Sprintf(format, args...))

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out.Print(logLine)
}

func levelString(level Level) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
