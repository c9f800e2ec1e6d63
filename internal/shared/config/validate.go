package config

import (
	"fmt"
	"strings"
)

// ValidationIssue is a single configuration problem.
type ValidationIssue struct {
	Field   string
	Message string
}

func (i ValidationIssue) String() string {
	return i.Field + ": " + i.Message
}

// ValidationError lists every problem found by Validate. A run never starts
// with an invalid configuration.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// ProviderRequiresAPIKey reports whether the provider authenticates with a
// key.
func ProviderRequiresAPIKey(provider string) bool {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "scripted", "ollama", "llama.cpp":
		return false
	default:
		return true
	}
}

// Validate returns a *ValidationError when cfg cannot drive a run.
func (c Config) Validate() error {
	var issues []ValidationIssue
	add := func(field, format string, args ...any) {
		issues = append(issues, ValidationIssue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	w := c.Workflow
	if w.MaxIterations < 1 {
		add("workflow.max_iterations", "must be at least 1, got %d", w.MaxIterations)
	}
	if w.MaxCoderTurns < 1 {
		add("workflow.max_coder_turns", "must be at least 1, got %d", w.MaxCoderTurns)
	}
	if w.MaxToolRounds < 0 {
		add("workflow.max_tool_rounds", "must not be negative, got %d", w.MaxToolRounds)
	}
	if strings.TrimSpace(w.Sentinel) == "" {
		add("workflow.sentinel", "must not be empty")
	}

	agents := c.Agents
	agents.Each(func(role string, agent *AgentConfig) {
		prefix := "agents." + role
		if strings.TrimSpace(agent.Model) == "" {
			add(prefix+".model", "is required")
		}
		if ProviderRequiresAPIKey(agent.Provider) && strings.TrimSpace(agent.APIKey) == "" && strings.TrimSpace(agent.BaseURL) == "" {
			add(prefix+".api_key", "is required for provider %q", agent.Provider)
		}
		if agent.Temperature < 0 || agent.Temperature > 2 {
			add(prefix+".temperature", "must be within [0, 2], got %g", agent.Temperature)
		}
		if agent.MaxTokens < 0 {
			add(prefix+".max_tokens", "must not be negative, got %d", agent.MaxTokens)
		}
	})

	p := c.Compression
	if p.MaxTokens <= 0 {
		add("compression.max_tokens", "must be positive, got %d", p.MaxTokens)
	}
	if p.TargetTokens <= 0 || p.TargetTokens > p.MaxTokens {
		add("compression.target_tokens", "must be in (0, max_tokens], got %d", p.TargetTokens)
	}
	if p.MaxMessages < 1 {
		add("compression.max_messages", "must be at least 1, got %d", p.MaxMessages)
	}
	if p.EnableChunking && p.MaxChunkTokens <= 0 {
		add("compression.max_chunk_tokens", "must be positive when chunking is enabled")
	}
	switch p.Tokenizer {
	case "", "chars", "tiktoken":
	default:
		add("compression.tokenizer", "unknown tokenizer %q", p.Tokenizer)
	}
	if p.MaxOverheadTokens < 0 {
		add("compression.max_overhead_tokens", "must not be negative, got %d", p.MaxOverheadTokens)
	}

	if c.Tools.ShellTimeout < 0 {
		add("tools.shell_timeout", "must not be negative")
	}
	if err := c.Observability.Validate(); err != nil {
		add("observability", "%v", err)
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
