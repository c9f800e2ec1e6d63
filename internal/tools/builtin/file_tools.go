package builtin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"triad/internal/agent/ports"
	"triad/internal/diff"
)

const maxReadBytes = 256 << 10

type fileRead struct {
	definition
	ws *Workspace
}

func NewFileRead(ws *Workspace) ports.Tool {
	return &fileRead{
		ws: ws,
		definition: definition{ports.ToolDefinition{
			Name:        "file_read",
			Description: "Read a file from the working directory. Optional offset and limit select a line range.",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"path":   {Type: "string", Description: "File path relative to the working directory"},
					"offset": {Type: "integer", Description: "First line to return, 1-based"},
					"limit":  {Type: "integer", Description: "Maximum number of lines"},
				},
				Required: []string{"path"},
			},
		}},
	}
}

// ReadOnly marks results as cacheable.
func (t *fileRead) ReadOnly() bool { return true }

func (t *fileRead) Invoke(_ context.Context, args map[string]any) (string, error) {
	raw, ok := stringArg(args, "path")
	if !ok {
		return "", errors.New("missing 'path'")
	}
	path, err := t.ws.Resolve(raw)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	truncated := false
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		truncated = true
	}
	content := string(data)

	offset := intArg(args, "offset", 0)
	limit := intArg(args, "limit", 0)
	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")
		start := min(max(offset-1, 0), len(lines))
		end := len(lines)
		if limit > 0 {
			end = min(start+limit, len(lines))
		}
		content = strings.Join(lines[start:end], "\n")
	}
	if truncated {
		content += fmt.Sprintf("\n[truncated at %d bytes]", maxReadBytes)
	}
	return content, nil
}

type fileWrite struct {
	definition
	ws      *Workspace
	diff    *diff.Generator
	changes *ChangeLog
}

func NewFileWrite(ws *Workspace, gen *diff.Generator, changes *ChangeLog) ports.Tool {
	return &fileWrite{
		ws:      ws,
		diff:    gen,
		changes: changes,
		definition: definition{ports.ToolDefinition{
			Name:        "file_write",
			Description: "Create or overwrite a file in the working directory with the given content. Returns a unified diff.",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"path":    {Type: "string", Description: "File path relative to the working directory"},
					"content": {Type: "string", Description: "Complete new file content"},
				},
				Required: []string{"path", "content"},
			},
		}},
	}
}

func (t *fileWrite) Invoke(ctx context.Context, args map[string]any) (string, error) {
	raw, ok := stringArg(args, "path")
	if !ok {
		return "", errors.New("missing 'path'")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return "", errors.New("missing 'content'")
	}
	path, err := t.ws.Resolve(raw)
	if err != nil {
		return "", err
	}

	before, err := os.ReadFile(path)
	created := errors.Is(err, fs.ErrNotExist)
	if err != nil && !created {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}

	rel := t.ws.Rel(path)
	t.changes.Record(ctx, rel, string(before), content, created)
	res := t.diff.Unified(rel, string(before), content, created)
	if !res.Changed() {
		return fmt.Sprintf("%s unchanged", rel), nil
	}
	return fmt.Sprintf("wrote %d bytes to %s (%s)\n%s", len(content), rel, res.Summary(), res.Unified), nil
}

type listDir struct {
	definition
	ws *Workspace
}

func NewListDir(ws *Workspace) ports.Tool {
	return &listDir{
		ws: ws,
		definition: definition{ports.ToolDefinition{
			Name:        "list_dir",
			Description: "List a directory in the working directory. Directories end with a slash.",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"path":  {Type: "string", Description: "Directory path, defaults to the working directory"},
					"depth": {Type: "integer", Description: "How many levels to descend, default 1, max 4"},
				},
			},
		}},
	}
}

func (t *listDir) ReadOnly() bool { return true }

func (t *listDir) Invoke(_ context.Context, args map[string]any) (string, error) {
	raw, _ := stringArg(args, "path")
	if strings.TrimSpace(raw) == "" {
		raw = "."
	}
	root, err := t.ws.Resolve(raw)
	if err != nil {
		return "", err
	}
	depth := min(max(intArg(args, "depth", 1), 1), 4)

	var entries []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		level := strings.Count(filepath.ToSlash(rel), "/") + 1
		if d.IsDir() && (strings.HasPrefix(d.Name(), ".") || level >= depth) {
			if !strings.HasPrefix(d.Name(), ".") {
				entries = append(entries, filepath.ToSlash(rel)+"/")
			}
			return filepath.SkipDir
		}
		if d.IsDir() {
			entries = append(entries, filepath.ToSlash(rel)+"/")
			return nil
		}
		entries = append(entries, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "(empty)", nil
	}
	slices.Sort(entries)
	return strings.Join(entries, "\n"), nil
}

// ChangeLog accumulates the files written during each run. For each file it
// keeps the content before the first write and after the last. Writes are
// grouped by the run ID the key function reads from the call context.
type ChangeLog struct {
	mu    sync.Mutex
	runOf func(context.Context) string
	runs  map[string]*runChanges
}

type runChanges struct {
	order []string
	files map[string]*change
}

type change struct {
	before, after string
	created       bool
}

// NewChangeLog returns an empty log. A nil runOf records every write under
// the empty run ID.
func NewChangeLog(runOf func(context.Context) string) *ChangeLog {
	if runOf == nil {
		runOf = func(context.Context) string { return "" }
	}
	return &ChangeLog{runOf: runOf, runs: make(map[string]*runChanges)}
}

// Record notes one write. A nil ChangeLog ignores it.
func (c *ChangeLog) Record(ctx context.Context, path, before, after string, created bool) {
	if c == nil {
		return
	}
	runID := c.runOf(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[runID]
	if !ok {
		run = &runChanges{files: make(map[string]*change)}
		c.runs[runID] = run
	}
	if existing, ok := run.files[path]; ok {
		existing.after = after
		return
	}
	run.order = append(run.order, path)
	run.files[path] = &change{before: before, after: after, created: created}
}

// Diffs renders the net change per file of one run in first-write order.
func (c *ChangeLog) Diffs(gen *diff.Generator, runID string) []diff.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[runID]
	if !ok {
		return nil
	}
	out := make([]diff.Result, 0, len(run.order))
	for _, path := range run.order {
		ch := run.files[path]
		if res := gen.Unified(path, ch.before, ch.after, ch.created); res.Changed() {
			out = append(out, res)
		}
	}
	return out
}

