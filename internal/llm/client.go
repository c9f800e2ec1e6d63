// Package llm holds the model clients the agents talk to: an OpenAI-compatible
// chat completions client, a retrying wrapper, and a scripted client for dry
// runs and tests.
package llm

import (
	"fmt"
	"strings"
	"time"

	"triad/internal/agent/ports"
	"triad/internal/shared/errors"
	"triad/internal/shared/logging"
)

const (
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderLlamaCpp = "llama.cpp"
	ProviderScripted = "scripted"

	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
)

// Local servers speak the OpenAI chat completions dialect without a key.
var localBaseURLs = map[string]string{
	ProviderOllama:   "http://localhost:11434/v1",
	ProviderLlamaCpp: "http://localhost:8080/v1",
}

// Config describes how to reach one model endpoint.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	Headers    map[string]string
	MaxRetries int
}

// NewClient builds a client for cfg and wraps it with retry handling.
// Scripted clients are returned as-is.
func NewClient(cfg Config, logger logging.Logger) (ports.LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case ProviderOllama, ProviderLlamaCpp:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			cfg.BaseURL = localBaseURLs[provider]
		}
		fallthrough
	case "", ProviderOpenAI:
		client, err := NewOpenAIClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		retryCfg := errors.DefaultRetryConfig()
		if cfg.MaxRetries > 0 {
			retryCfg.MaxAttempts = cfg.MaxRetries
		}
		return NewRetryClient(client, retryCfg, logger), nil
	case ProviderScripted:
		return NewScriptedClient(cfg.Model), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
