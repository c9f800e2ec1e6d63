package ports

import "slices"

// PlanStep is one unit of work produced by the planner.
type PlanStep struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// CompactionRecord is the audit entry left behind whenever history is capped
// or summarized before an agent call.
type CompactionRecord struct {
	Agent          string `json:"agent"`
	Strategy       string `json:"strategy"`
	MessagesBefore int    `json:"messages_before"`
	MessagesAfter  int    `json:"messages_after"`
	TokensBefore   int    `json:"tokens_before"`
	TokensAfter    int    `json:"tokens_after"`
	WasChunked     bool   `json:"was_chunked,omitempty"`
	ChunkCount     int    `json:"chunk_count,omitempty"`
}

// OverheadUsage accumulates model calls made for context management rather
// than for conversation turns.
type OverheadUsage struct {
	SummarizationCalls int        `json:"summarization_calls"`
	Usage              TokenUsage `json:"usage"`
}

// WorkflowState is threaded through the workflow graph. It is passed by
// value; every With* method returns a copy whose slices do not alias the
// receiver's, so a node can never disturb the state another component holds.
type WorkflowState struct {
	RunID           string             `json:"run_id"`
	OriginalRequest string             `json:"original_request"`
	Messages        []Message          `json:"messages"`
	EvalPassed      bool               `json:"eval_passed"`
	Steps           []PlanStep         `json:"steps,omitempty"`
	Suggestions     []string           `json:"suggestions,omitempty"`
	Compactions     []CompactionRecord `json:"compactions,omitempty"`
	Overhead        OverheadUsage      `json:"overhead"`
}

// NewWorkflowState seeds a run with the user's request as the first message.
func NewWorkflowState(runID, userText string) WorkflowState {
	return WorkflowState{
		RunID:           runID,
		OriginalRequest: userText,
		Messages:        []Message{NewUserMessage(userText)},
	}
}

// Clone returns a deep copy.
func (s WorkflowState) Clone() WorkflowState {
	out := s
	out.Messages = cloneMessages(s.Messages)
	out.Steps = slices.Clone(s.Steps)
	out.Suggestions = slices.Clone(s.Suggestions)
	out.Compactions = slices.Clone(s.Compactions)
	return out
}

// WithMessages returns a copy with msgs appended in order.
func (s WorkflowState) WithMessages(msgs ...Message) WorkflowState {
	out := s.Clone()
	for _, msg := range msgs {
		out.Messages = append(out.Messages, msg.Clone())
	}
	return out
}

// WithHistory returns a copy whose message list is replaced. Only the context
// budget path uses it; agents append.
func (s WorkflowState) WithHistory(history []Message, record CompactionRecord) WorkflowState {
	out := s.Clone()
	out.Messages = cloneMessages(history)
	out.Compactions = append(out.Compactions, record)
	return out
}

// WithSteps returns a copy with steps appended.
func (s WorkflowState) WithSteps(steps ...PlanStep) WorkflowState {
	out := s.Clone()
	out.Steps = append(out.Steps, steps...)
	return out
}

// WithSuggestions returns a copy with suggestions appended.
func (s WorkflowState) WithSuggestions(suggestions ...string) WorkflowState {
	out := s.Clone()
	out.Suggestions = append(out.Suggestions, suggestions...)
	return out
}

// WithEvalPassed returns a copy with the tester verdict set.
func (s WorkflowState) WithEvalPassed(passed bool) WorkflowState {
	out := s.Clone()
	out.EvalPassed = passed
	return out
}

// WithOverhead returns a copy with extra summarization usage added.
func (s WorkflowState) WithOverhead(calls int, usage TokenUsage) WorkflowState {
	out := s.Clone()
	out.Overhead.SummarizationCalls += calls
	out.Overhead.Usage = out.Overhead.Usage.Add(usage)
	return out
}

// LatestMessage returns the last message, if any.
func (s WorkflowState) LatestMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LatestFrom returns the most recent assistant message produced by agent.
func (s WorkflowState) LatestFrom(agent string) (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Role == RoleAssistant && msg.Name == agent {
			return msg, true
		}
	}
	return Message{}, false
}

// ExtendsMessages reports whether s.Messages starts with every message of
// prev in the same order.
func (s WorkflowState) ExtendsMessages(prev WorkflowState) bool {
	if len(s.Messages) < len(prev.Messages) {
		return false
	}
	for i := range prev.Messages {
		if !sameMessage(s.Messages[i], prev.Messages[i]) {
			return false
		}
	}
	return true
}

func sameMessage(a, b Message) bool {
	return a.Role == b.Role && a.Content == b.Content && a.Name == b.Name &&
		a.Source == b.Source && len(a.ToolCalls) == len(b.ToolCalls) && len(a.ToolResults) == len(b.ToolResults)
}

func cloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.Clone()
	}
	return out
}

// StateDelta is one partial result of a streamed agent invocation. The last
// delta of a stream has Final set and carries the complete state.
//
// A Progress delta reports intermediate tool rounds. Its messages are not
// part of the resulting state, which folds a turn into one assistant message.
type StateDelta struct {
	Agent       string         `json:"agent"`
	Progress    bool           `json:"progress,omitempty"`
	Messages    []Message      `json:"messages,omitempty"`
	Steps       []PlanStep     `json:"steps,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	EvalPassed  *bool          `json:"eval_passed,omitempty"`
	Final       bool           `json:"final,omitempty"`
	State       *WorkflowState `json:"state,omitempty"`
}
