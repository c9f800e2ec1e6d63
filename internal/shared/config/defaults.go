package config

import (
	"time"

	"triad/internal/observability"
)

const (
	DefaultMaxIterations = 25
	DefaultMaxCoderTurns = 8
	DefaultMaxToolRounds = 6
	DefaultSentinel      = "TASK_COMPLETE"
	DefaultProvider      = "openai"
	DefaultModel         = "gpt-4o-mini"
)

// Default returns a configuration that validates once an API key is set.
func Default() Config {
	agent := AgentConfig{
		Provider:    DefaultProvider,
		Model:       DefaultModel,
		APIKey:      "${OPENAI_API_KEY}",
		Temperature: 0.2,
		MaxRetries:  3,
		Timeout:     2 * time.Minute,
	}
	tester := agent
	tester.Temperature = 0

	return Config{
		Workflow: WorkflowConfig{
			MaxIterations: DefaultMaxIterations,
			MaxCoderTurns: DefaultMaxCoderTurns,
			MaxToolRounds: DefaultMaxToolRounds,
			Sentinel:      DefaultSentinel,
		},
		Agents: AgentsConfig{
			Planner: agent,
			Coder:   agent,
			Tester:  tester,
		},
		Compression: CompressionConfig{
			MaxTokens:        8000,
			TargetTokens:     2000,
			MaxMessages:      40,
			EnableChunking:   true,
			MaxChunkTokens:   4000,
			Tokenizer:        "chars",
			CharsPerToken:    4,
			ChunkConcurrency: 4,
			SummaryCacheSize: 128,
		},
		Tools: ToolsConfig{
			Workdir:      ".",
			ShellTimeout: 2 * time.Minute,
			Cache: CacheConfig{
				Enabled: true,
				Size:    256,
				TTL:     2 * time.Minute,
			},
		},
		Observability: observability.DefaultConfig(),
	}
}
