package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir  = ".triad"
	defaultConfigName = "config.yaml"
	// ConfigPathEnv overrides the default config location.
	ConfigPathEnv = "TRIAD_CONFIG"
)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	configPath string
}

// Option customizes Load.
type Option func(*loadOptions)

func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = reader }
}

func WithHomeDir(home func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = home }
}

// WithConfigPath loads path instead of the resolved default.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// ResolveConfigPath returns the config file path and its source label:
// $TRIAD_CONFIG, then $HOME/.triad/config.yaml, then ./triad.yaml.
func ResolveConfigPath(envLookup EnvLookup, homeDir func() (string, error)) (string, string) {
	if envLookup == nil {
		envLookup = DefaultEnvLookup
	}
	if value, ok := envLookup(ConfigPathEnv); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), ConfigPathEnv
	}
	if homeDir != nil {
		if home, err := homeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, defaultConfigDir, defaultConfigName), "default"
		}
	}
	return "triad.yaml", "fallback"
}

// Load reads the YAML file over Default() and applies ${ENV}
// interpolation to every string field. A missing file yields the defaults.
// The returned path is the file that was consulted.
func Load(opts ...Option) (Config, string, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Default()
	path := strings.TrimSpace(options.configPath)
	explicit := path != ""
	if !explicit {
		path, _ = ResolveConfigPath(options.envLookup, options.homeDir)
	}

	data, err := options.readFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		data = nil
	case err != nil:
		return Config{}, path, fmt.Errorf("read config file: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, path, err
	}
	ExpandEnv(&cfg, options.envLookup)
	return cfg, path, nil
}

// Parse overlays YAML data onto cfg; keys absent from data keep their
// current values.
func Parse(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnvValue replaces ${VAR} and ${VAR:-default}. Unset variables
// without a default become empty.
func expandEnvValue(lookup EnvLookup, value string) string {
	if !strings.Contains(value, "${") {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if v, ok := lookup(parts[1]); ok && v != "" {
			return v
		}
		return parts[2]
	})
}

// ExpandEnv interpolates environment variables into cfg's string fields.
func ExpandEnv(cfg *Config, lookup EnvLookup) {
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	cfg.Workflow.Sentinel = expandEnvValue(lookup, cfg.Workflow.Sentinel)
	cfg.Agents.Each(func(_ string, agent *AgentConfig) {
		agent.Provider = expandEnvValue(lookup, agent.Provider)
		agent.Model = expandEnvValue(lookup, agent.Model)
		agent.BaseURL = expandEnvValue(lookup, agent.BaseURL)
		agent.APIKey = expandEnvValue(lookup, agent.APIKey)
		for key, value := range agent.Headers {
			agent.Headers[key] = expandEnvValue(lookup, value)
		}
	})
	cfg.Tools.Workdir = expandEnvValue(lookup, cfg.Tools.Workdir)
	cfg.Observability.Tracing.OTLPEndpoint = expandEnvValue(lookup, cfg.Observability.Tracing.OTLPEndpoint)
	cfg.Observability.Tracing.ZipkinEndpoint = expandEnvValue(lookup, cfg.Observability.Tracing.ZipkinEndpoint)
	cfg.Observability.Metrics.Addr = expandEnvValue(lookup, cfg.Observability.Metrics.Addr)
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
