package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"triad/internal/agent/ports"
	"triad/internal/diff"
	"triad/internal/shared/textutil"
	"triad/internal/workflow"
)

const previewLimit = 160

// progressPrinter renders workflow events and partial agent output as the
// run proceeds.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) OnWorkflowEvent(e workflow.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case workflow.EventNodeStarted:
		fmt.Fprintf(p.w, "%s %s %s\n", blue("▸"), bold(string(e.Node)), gray(fmt.Sprintf("(visit %d)", e.Snapshot.TotalVisits())))
	case workflow.EventNodeSucceeded:
		fmt.Fprintf(p.w, "  %s %s %s\n", green("✓"), e.Node, gray(e.Duration.Round(time.Millisecond)))
	case workflow.EventNodeFailed:
		fmt.Fprintf(p.w, "  %s %s: %s\n", red("✗"), e.Node, e.Err)
	case workflow.EventRunCompleted:
		fmt.Fprintf(p.w, "%s run %s finished after %d visits in %s\n",
			green("●"), e.RunID, e.Snapshot.TotalVisits(), e.Snapshot.Duration.Round(time.Millisecond))
	case workflow.EventRunFailed:
		fmt.Fprintf(p.w, "%s run %s failed after %d visits: %s\n",
			red("●"), e.RunID, e.Snapshot.TotalVisits(), e.Err)
	}
}

// OnDelta prints a one-line preview of what an agent just produced.
func (p *progressPrinter) OnDelta(d ports.StateDelta) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, step := range d.Steps {
		fmt.Fprintf(p.w, "    %s %s\n", cyan("•"), step.Title)
	}
	for _, msg := range d.Messages {
		if msg.Role != ports.RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(p.w, "    %s %s\n", yellow("⚙"), call.Name)
		}
		if preview := textutil.TruncateWithEllipsis(textutil.FirstLine(msg.Content), previewLimit); preview != "" && len(d.Steps) == 0 {
			fmt.Fprintf(p.w, "    %s\n", gray(preview))
		}
	}
	if d.EvalPassed != nil {
		fmt.Fprintf(p.w, "    %s\n", verdict(*d.EvalPassed))
	}
}

func verdict(passed bool) string {
	if passed {
		return green("tests passed")
	}
	return red("tests failed")
}

// writeReport prints the outcome of a run: verdict, tester notes and the
// net change to every file the coder touched.
func writeReport(w io.Writer, state ports.WorkflowState, changes []diff.Result, showDiff bool) {
	fmt.Fprintf(w, "\n%s %s\n", bold("Result:"), verdict(state.EvalPassed))
	if summary := lastContent(state, "tester"); summary != "" {
		fmt.Fprintf(w, "%s\n", textutil.SmartTruncate(summary, 2000))
	}
	if len(state.Suggestions) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Suggestions:"))
		for _, s := range state.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}

	var changed []diff.Result
	for _, r := range changes {
		if r.Changed() {
			changed = append(changed, r)
		}
	}
	if len(changed) == 0 {
		fmt.Fprintf(w, "\n%s\n", gray("No files changed."))
	} else {
		fmt.Fprintf(w, "\n%s\n", bold("Changed files:"))
		for _, r := range changed {
			fmt.Fprintf(w, "  %s %s\n", r.Path, gray(r.Summary()))
		}
		if showDiff {
			for _, r := range changed {
				if r.Unified != "" {
					fmt.Fprintf(w, "\n%s", strings.TrimRight(r.Unified, "\n")+"\n")
				}
			}
		}
	}

	if n := len(state.Compactions); n > 0 || state.Overhead.SummarizationCalls > 0 {
		fmt.Fprintf(w, "\n%s\n", gray(fmt.Sprintf("context: %d compactions, %d summarization calls, %d overhead tokens",
			n, state.Overhead.SummarizationCalls, state.Overhead.Usage.TotalTokens)))
	}
}

func lastContent(state ports.WorkflowState, agent string) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		msg := state.Messages[i]
		if msg.Role == ports.RoleAssistant && msg.Name == agent {
			return strings.TrimSpace(msg.Content)
		}
	}
	return ""
}
