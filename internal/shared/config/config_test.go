package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, path, err := Load(
		WithEnv(envMap(map[string]string{"OPENAI_API_KEY": "sk-test"})),
		WithHomeDir(func() (string, error) { return home, nil }),
	)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".triad", "config.yaml"), path)
	assert.Equal(t, DefaultMaxIterations, cfg.Workflow.MaxIterations)
	assert.Equal(t, "sk-test", cfg.Agents.Coder.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, _, err := Load(WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOverlaysFileAndExpandsEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workflow:
  max_iterations: 9
agents:
  coder:
    model: ${CODER_MODEL:-gpt-4o}
    api_key: ${KEY}
    timeout: 30s
compression:
  max_tokens: 4000
  target_tokens: 1000
  tokenizer: tiktoken
tools:
  shell_timeout: 45s
observability:
  logging:
    level: debug
`), 0o644))

	cfg, _, err := Load(WithConfigPath(path), WithEnv(envMap(map[string]string{"KEY": "secret"})))
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Workflow.MaxIterations)
	assert.Equal(t, DefaultMaxCoderTurns, cfg.Workflow.MaxCoderTurns)
	assert.Equal(t, "gpt-4o", cfg.Agents.Coder.Model)
	assert.Equal(t, "secret", cfg.Agents.Coder.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Agents.Coder.Timeout)
	assert.Equal(t, DefaultModel, cfg.Agents.Planner.Model)
	assert.Equal(t, 4000, cfg.Compression.MaxTokens)
	assert.Equal(t, 40, cfg.Compression.MaxMessages)
	assert.Equal(t, "tiktoken", cfg.Compression.Tokenizer)
	assert.Equal(t, 45*time.Second, cfg.Tools.ShellTimeout)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  max_iteratons: 3\n"), 0o644))
	_, _, err := Load(WithConfigPath(path))
	assert.Error(t, err)
}

func TestResolveConfigPathPrefersEnv(t *testing.T) {
	path, source := ResolveConfigPath(envMap(map[string]string{ConfigPathEnv: "/etc/triad.yaml"}), nil)
	assert.Equal(t, "/etc/triad.yaml", path)
	assert.Equal(t, ConfigPathEnv, source)

	path, source = ResolveConfigPath(envMap(nil), func() (string, error) { return "", errors.New("no home") })
	assert.Equal(t, "triad.yaml", path)
	assert.Equal(t, "fallback", source)
}

func TestExpandEnvValue(t *testing.T) {
	lookup := envMap(map[string]string{"A": "1", "EMPTY": ""})
	assert.Equal(t, "x1y", expandEnvValue(lookup, "x${A}y"))
	assert.Equal(t, "fallback", expandEnvValue(lookup, "${EMPTY:-fallback}"))
	assert.Equal(t, "", expandEnvValue(lookup, "${MISSING}"))
	assert.Equal(t, "$A", expandEnvValue(lookup, "$A"))
}

func TestValidateCollectsIssues(t *testing.T) {
	cfg := Default()
	cfg.Agents.Each(func(_ string, a *AgentConfig) { a.APIKey = "k" })
	require.NoError(t, cfg.Validate())

	cfg.Workflow.MaxIterations = 0
	cfg.Agents.Tester.Model = ""
	cfg.Compression.TargetTokens = cfg.Compression.MaxTokens + 1
	cfg.Compression.MaxChunkTokens = 0
	cfg.Compression.MaxMessages = 0

	err := cfg.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Issues))
	for _, issue := range verr.Issues {
		fields = append(fields, issue.Field)
	}
	assert.ElementsMatch(t, []string{
		"workflow.max_iterations",
		"agents.tester.model",
		"compression.target_tokens",
		"compression.max_messages",
		"compression.max_chunk_tokens",
	}, fields)
}

func TestValidateAPIKeyRules(t *testing.T) {
	cfg := Default()
	cfg.Agents.Each(func(_ string, a *AgentConfig) { a.APIKey = "" })
	var verr *ValidationError
	require.ErrorAs(t, cfg.Validate(), &verr)
	assert.Len(t, verr.Issues, 3)

	cfg.Agents.Each(func(_ string, a *AgentConfig) { a.Provider = "scripted" })
	assert.NoError(t, cfg.Validate())
}

func TestSummarizeDefaultsToEnabled(t *testing.T) {
	var agent AgentConfig
	assert.True(t, agent.SummarizeEnabled())
	off := false
	agent.Summarize = &off
	assert.False(t, agent.SummarizeEnabled())
}

func TestMarshalRoundTripsThroughParse(t *testing.T) {
	cfg := Default()
	cfg.Workflow.MaxIterations = 12
	data, err := Marshal(cfg)
	require.NoError(t, err)

	parsed := Default()
	require.NoError(t, Parse(data, &parsed))
	assert.Equal(t, 12, parsed.Workflow.MaxIterations)
}
