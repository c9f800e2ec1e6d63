// Package diff renders unified diffs for file changes made by tools.
package diff

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const maxDiffBytes = 4 << 20

// Generator renders line-based unified diffs.
type Generator struct {
	contextLines int
	colorEnabled bool
}

// NewGenerator creates a generator. contextLines below zero means 3.
func NewGenerator(contextLines int, colorEnabled bool) *Generator {
	if contextLines < 0 {
		contextLines = 3
	}
	return &Generator{contextLines: contextLines, colorEnabled: colorEnabled}
}

// Result is one file's diff with line statistics.
type Result struct {
	Path    string
	Unified string
	Added   int
	Deleted int
	Binary  bool
	Created bool
}

// Changed reports whether the file content differs.
func (r Result) Changed() bool {
	return r.Binary || r.Added > 0 || r.Deleted > 0
}

// Summary is a one-line description such as "+3 -1".
func (r Result) Summary() string {
	switch {
	case r.Binary:
		return "binary file changed"
	case !r.Changed():
		return "no changes"
	}
	var parts []string
	if r.Created {
		parts = append(parts, "new file")
	}
	parts = append(parts, fmt.Sprintf("+%d", r.Added), fmt.Sprintf("-%d", r.Deleted))
	return strings.Join(parts, " ")
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type lineOp struct {
	kind opKind
	text string
}

// Unified diffs before against after for path. A file that did not exist is
// passed as created with an empty before.
func (g *Generator) Unified(path, before, after string, created bool) Result {
	res := Result{Path: path, Created: created}
	if before == after {
		return res
	}
	if isBinary(before) || isBinary(after) {
		res.Binary = true
		res.Unified = fmt.Sprintf("Binary file %s has changed\n", path)
		return res
	}
	if len(before) > maxDiffBytes || len(after) > maxDiffBytes {
		res.Added, res.Deleted = countLines(after), countLines(before)
		res.Unified = fmt.Sprintf("--- a/%s\n+++ b/%s\n@@ file too large to diff @@\n", path, path)
		return res
	}

	ops := lineOps(before, after)
	for _, op := range ops {
		switch op.kind {
		case opInsert:
			res.Added++
		case opDelete:
			res.Deleted++
		}
	}

	var sb strings.Builder
	oldName := "a/" + path
	if created {
		oldName = "/dev/null"
	}
	sb.WriteString(g.colorize("--- "+oldName+"\n", color.FgRed))
	sb.WriteString(g.colorize("+++ b/"+path+"\n", color.FgGreen))
	g.writeHunks(&sb, ops)
	res.Unified = sb.String()
	return res
}

// lineOps runs a line-mode diff: every line is mapped to a single rune so the
// character diff operates on whole lines.
func lineOps(before, after string) []lineOp {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var ops []lineOp
	for _, d := range diffs {
		kind := opEqual
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = opDelete
		case diffmatchpatch.DiffInsert:
			kind = opInsert
		}
		for _, line := range splitLines(d.Text) {
			ops = append(ops, lineOp{kind: kind, text: line})
		}
	}
	return ops
}

func (g *Generator) writeHunks(sb *strings.Builder, ops []lineOp) {
	ctx := g.contextLines
	oldNo := make([]int, len(ops)+1)
	newNo := make([]int, len(ops)+1)
	for i, op := range ops {
		oldNo[i+1], newNo[i+1] = oldNo[i], newNo[i]
		if op.kind != opInsert {
			oldNo[i+1]++
		}
		if op.kind != opDelete {
			newNo[i+1]++
		}
	}

	i := 0
	for i < len(ops) {
		for i < len(ops) && ops[i].kind == opEqual {
			i++
		}
		if i == len(ops) {
			return
		}
		start := max(i-ctx, 0)
		end := i
		for end < len(ops) {
			if ops[end].kind != opEqual {
				end++
				continue
			}
			run := end
			for run < len(ops) && ops[run].kind == opEqual {
				run++
			}
			if run == len(ops) || run-end > 2*ctx {
				break
			}
			end = run
		}
		stop := min(end+ctx, len(ops))

		oldStart, oldCount := oldNo[start]+1, oldNo[stop]-oldNo[start]
		newStart, newCount := newNo[start]+1, newNo[stop]-newNo[start]
		if oldCount == 0 {
			oldStart--
		}
		if newCount == 0 {
			newStart--
		}
		sb.WriteString(g.colorize(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount), color.FgCyan))
		for _, op := range ops[start:stop] {
			switch op.kind {
			case opEqual:
				sb.WriteString(" " + op.text + "\n")
			case opDelete:
				sb.WriteString(g.colorize("-"+op.text+"\n", color.FgRed))
			case opInsert:
				sb.WriteString(g.colorize("+"+op.text+"\n", color.FgGreen))
			}
		}
		i = stop
	}
}

func (g *Generator) colorize(text string, attr color.Attribute) string {
	if !g.colorEnabled {
		return text
	}
	return color.New(attr).Sprint(text)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\n")
	}
	return lines
}

func countLines(text string) int {
	return len(splitLines(text))
}

func isBinary(content string) bool {
	return strings.IndexByte(content[:min(len(content), 8000)], 0) >= 0
}
