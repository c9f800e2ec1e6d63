package workflow

import (
	"maps"
	"slices"
	"time"
)

// RunPhase represents the aggregate state of a run.
type RunPhase string

const (
	PhasePending   RunPhase = "pending"
	PhaseRunning   RunPhase = "running"
	PhaseSucceeded RunPhase = "succeeded"
	PhaseFailed    RunPhase = "failed"
)

// EventType enumerates run lifecycle signals emitted to listeners.
type EventType string

const (
	EventNodeStarted   EventType = "node_started"
	EventNodeSucceeded EventType = "node_succeeded"
	EventNodeFailed    EventType = "node_failed"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"
)

// RunSnapshot captures a consistent view of a run for reporting.
type RunSnapshot struct {
	RunID       string         `json:"run_id"`
	Phase       RunPhase       `json:"phase"`
	Path        []NodeID       `json:"path"`
	Visits      map[NodeID]int `json:"visits"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// TotalVisits is the number of node executions so far.
func (s RunSnapshot) TotalVisits() int {
	return len(s.Path)
}

// Event represents a run lifecycle notification.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	Node      NodeID        `json:"node,omitempty"`
	Visit     int           `json:"visit,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       string        `json:"error,omitempty"`
	Snapshot  RunSnapshot   `json:"snapshot"`
}

// Listener receives run lifecycle events. Listeners are called synchronously
// from the run loop.
type Listener interface {
	OnWorkflowEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnWorkflowEvent(e Event) { f(e) }

type tracker struct {
	runID     string
	phase     RunPhase
	path      []NodeID
	visits    map[NodeID]int
	startedAt time.Time
	endedAt   time.Time
}

func newTracker(runID string) *tracker {
	return &tracker{runID: runID, phase: PhasePending, visits: make(map[NodeID]int)}
}

func (t *tracker) visit(node NodeID, now time.Time) int {
	if t.startedAt.IsZero() {
		t.startedAt = now
	}
	t.phase = PhaseRunning
	t.path = append(t.path, node)
	t.visits[node]++
	return len(t.path)
}

func (t *tracker) finish(phase RunPhase, now time.Time) {
	t.phase = phase
	t.endedAt = now
	if t.startedAt.IsZero() {
		t.startedAt = now
	}
}

func (t *tracker) snapshot() RunSnapshot {
	snap := RunSnapshot{
		RunID:       t.runID,
		Phase:       t.phase,
		Path:        slices.Clone(t.path),
		Visits:      maps.Clone(t.visits),
		StartedAt:   t.startedAt,
		CompletedAt: t.endedAt,
	}
	if !t.startedAt.IsZero() {
		end := t.endedAt
		if end.IsZero() {
			end = time.Now()
		}
		snap.Duration = end.Sub(t.startedAt)
	}
	return snap
}
