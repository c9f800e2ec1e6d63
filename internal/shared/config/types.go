// Package config loads and validates the triad run configuration.
package config

import (
	"time"

	"triad/internal/observability"
)

// Config is the complete run configuration.
type Config struct {
	Workflow      WorkflowConfig       `yaml:"workflow"`
	Agents        AgentsConfig         `yaml:"agents"`
	Compression   CompressionConfig    `yaml:"compression"`
	Tools         ToolsConfig          `yaml:"tools"`
	Observability observability.Config `yaml:"observability"`
}

// WorkflowConfig bounds a run.
type WorkflowConfig struct {
	// MaxIterations caps node executions per run.
	MaxIterations int `yaml:"max_iterations"`
	// MaxCoderTurns caps coder model turns per coder visit.
	MaxCoderTurns int `yaml:"max_coder_turns"`
	// MaxToolRounds caps tool-call rounds per model turn.
	MaxToolRounds int    `yaml:"max_tool_rounds"`
	Sentinel      string `yaml:"sentinel"`
}

// AgentsConfig binds each role to a model.
type AgentsConfig struct {
	Planner AgentConfig `yaml:"planner"`
	Coder   AgentConfig `yaml:"coder"`
	Tester  AgentConfig `yaml:"tester"`
}

// Each calls fn for the three roles in workflow order.
func (a *AgentsConfig) Each(fn func(role string, agent *AgentConfig)) {
	fn("planner", &a.Planner)
	fn("coder", &a.Coder)
	fn("tester", &a.Tester)
}

// AgentConfig is one role's model binding.
type AgentConfig struct {
	Provider    string            `yaml:"provider"`
	Model       string            `yaml:"model"`
	BaseURL     string            `yaml:"base_url"`
	APIKey      string            `yaml:"api_key"`
	Headers     map[string]string `yaml:"headers"`
	Temperature float64           `yaml:"temperature"`
	MaxTokens   int               `yaml:"max_tokens"`
	MaxRetries  int               `yaml:"max_retries"`
	Timeout     time.Duration     `yaml:"timeout"`
	// Summarize lets the gateway summarize this agent's context with the
	// agent's own model. Unset means enabled.
	Summarize *bool `yaml:"summarize"`
}

// SummarizeEnabled reports whether the agent's gateway may summarize.
func (a AgentConfig) SummarizeEnabled() bool {
	return a.Summarize == nil || *a.Summarize
}

// CompressionConfig holds the context budget of every gateway.
type CompressionConfig struct {
	MaxTokens      int  `yaml:"max_tokens"`
	TargetTokens   int  `yaml:"target_tokens"`
	MaxMessages    int  `yaml:"max_messages"`
	EnableChunking bool `yaml:"enable_chunking"`
	MaxChunkTokens int  `yaml:"max_chunk_tokens"`

	// Tokenizer is "chars" (runes / chars_per_token) or "tiktoken".
	Tokenizer        string `yaml:"tokenizer"`
	CharsPerToken    int    `yaml:"chars_per_token"`
	ChunkConcurrency int    `yaml:"chunk_concurrency"`
	SummaryCacheSize int    `yaml:"summary_cache_size"`
	// MaxOverheadTokens caps summarization spend per run; 0 is unlimited.
	MaxOverheadTokens int `yaml:"max_overhead_tokens"`
}

// ToolsConfig configures the builtin tools.
type ToolsConfig struct {
	Workdir      string        `yaml:"workdir"`
	ShellTimeout time.Duration `yaml:"shell_timeout"`
	Cache        CacheConfig   `yaml:"cache"`
}

// CacheConfig configures the read-only tool result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// EnvLookup resolves environment variables.
type EnvLookup func(string) (string, bool)
