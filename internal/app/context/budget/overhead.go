package budget

import (
	"context"
	"sync"

	"triad/internal/agent/ports"
)

// OverheadState is the budget state of a run's summarization spend.
type OverheadState string

const (
	OverheadOK       OverheadState = "ok"
	OverheadWarning  OverheadState = "warning"
	OverheadExceeded OverheadState = "exceeded"
)

// OverheadQuota caps the tokens a run may spend on summarization.
type OverheadQuota struct {
	MaxTotalTokens   int     // 0 = unlimited
	WarningThreshold float64 // fraction at which to warn (default 0.8)
}

// OverheadUsage is the cumulative summarization spend of one run.
type OverheadUsage struct {
	Calls        int
	CacheHits    int
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// OverheadCheck is the result of evaluating a run against its quota.
type OverheadCheck struct {
	State           OverheadState
	RemainingTokens int // -1 if unlimited
	UsagePercent    float64
}

// OverheadTracker records summarization calls per run. Chunk summaries run
// concurrently, so it is safe for concurrent use.
type OverheadTracker struct {
	mu    sync.RWMutex
	runs  map[string]*OverheadUsage
	quota OverheadQuota
}

// NewOverheadTracker creates a tracker with the given quota.
func NewOverheadTracker(quota OverheadQuota) *OverheadTracker {
	return &OverheadTracker{
		runs:  make(map[string]*OverheadUsage),
		quota: quota,
	}
}

// Record adds one summarization outcome to runID.
func (t *OverheadTracker) Record(runID string, summary Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.getOrCreateLocked(runID)
	if summary.Cached {
		u.CacheHits++
		return
	}
	u.Calls++
	u.InputTokens += summary.Usage.PromptTokens
	u.OutputTokens += summary.Usage.CompletionTokens
	total := summary.Usage.TotalTokens
	if total == 0 {
		total = summary.Usage.PromptTokens + summary.Usage.CompletionTokens
	}
	u.TotalTokens += total
}

// Usage returns a snapshot of runID's usage.
func (t *OverheadTracker) Usage(runID string) OverheadUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.runs[runID]
	if !ok {
		return OverheadUsage{}
	}
	return *u
}

// Check evaluates runID against the quota.
func (t *OverheadTracker) Check(runID string) OverheadCheck {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.runs[runID]
	if !ok {
		return OverheadCheck{State: OverheadOK, RemainingTokens: t.remainingLocked(nil)}
	}
	ratio := t.ratioLocked(u)
	return OverheadCheck{
		State:           t.stateFromRatio(ratio),
		RemainingTokens: t.remainingLocked(u),
		UsagePercent:    ratio,
	}
}

// Reset forgets runID.
func (t *OverheadTracker) Reset(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.runs, runID)
}

func (t *OverheadTracker) getOrCreateLocked(runID string) *OverheadUsage {
	u, ok := t.runs[runID]
	if !ok {
		u = &OverheadUsage{}
		t.runs[runID] = u
	}
	return u
}

func (t *OverheadTracker) warningThreshold() float64 {
	if t.quota.WarningThreshold <= 0 || t.quota.WarningThreshold >= 1 {
		return 0.8
	}
	return t.quota.WarningThreshold
}

func (t *OverheadTracker) ratioLocked(u *OverheadUsage) float64 {
	if t.quota.MaxTotalTokens <= 0 {
		return 0
	}
	return float64(u.TotalTokens) / float64(t.quota.MaxTotalTokens)
}

func (t *OverheadTracker) stateFromRatio(ratio float64) OverheadState {
	if ratio >= 1.0 {
		return OverheadExceeded
	}
	if ratio >= t.warningThreshold() {
		return OverheadWarning
	}
	return OverheadOK
}

func (t *OverheadTracker) remainingLocked(u *OverheadUsage) int {
	if t.quota.MaxTotalTokens <= 0 {
		return -1
	}
	if u == nil {
		return t.quota.MaxTotalTokens
	}
	remaining := t.quota.MaxTotalTokens - u.TotalTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

type runIDKey struct{}

// WithRunID tags ctx with the run whose overhead summarization calls are
// charged to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run tagged by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func usageOf(summary Summary) ports.TokenUsage {
	if summary.Cached {
		return ports.TokenUsage{}
	}
	return summary.Usage
}
