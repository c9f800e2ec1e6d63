// Package builtin provides the file and shell tools the agents use. Every
// path is resolved inside a single workspace directory.
package builtin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"triad/internal/agent/ports"
	"triad/internal/diff"
	"triad/internal/shared/logging"
)

// ErrOutsideWorkspace is returned for paths that escape the workspace root.
var ErrOutsideWorkspace = errors.New("path must stay within the working directory")

// Workspace confines tool paths to root.
type Workspace struct {
	root string
}

func NewWorkspace(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

// Root is the absolute workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a relative or absolute path to an absolute path inside the
// workspace.
func (w *Workspace) Resolve(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("path cannot be empty")
	}
	target := trimmed
	if !filepath.IsAbs(target) {
		target = filepath.Join(w.root, target)
	}
	target = filepath.Clean(target)
	rel, err := filepath.Rel(w.root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", raw, ErrOutsideWorkspace)
	}
	return target, nil
}

// Rel returns path relative to the workspace root, for display.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Config selects and configures the builtin tools.
type Config struct {
	Workdir      string
	ShellTimeout time.Duration
	// Diff renders file_write results. Nil uses an uncoloured generator.
	Diff *diff.Generator
	// Changes, when set, collects every file_write for a run summary.
	Changes *ChangeLog
	Logger  logging.Logger
}

// Tools builds file_read, file_write, list_dir and shell_exec.
func Tools(cfg Config) ([]ports.Tool, error) {
	ws, err := NewWorkspace(cfg.Workdir)
	if err != nil {
		return nil, err
	}
	gen := cfg.Diff
	if gen == nil {
		gen = diff.NewGenerator(3, false)
	}
	logger := logging.OrNop(cfg.Logger)
	return []ports.Tool{
		NewFileRead(ws),
		NewFileWrite(ws, gen, cfg.Changes),
		NewListDir(ws),
		NewShellExec(ws, cfg.ShellTimeout, logger),
	}, nil
}

type definition struct {
	def ports.ToolDefinition
}

func (d definition) Name() string                     { return d.def.Name }
func (d definition) Description() string              { return d.def.Description }
func (d definition) Definition() ports.ToolDefinition { return d.def }

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}
