package presets

import (
	"fmt"
	"slices"

	"triad/internal/agent/ports"
)

// ToolPreset defines tool access levels.
type ToolPreset string

const (
	ToolPresetFull     ToolPreset = "full"
	ToolPresetReadOnly ToolPreset = "read-only"
	ToolPresetVerify   ToolPreset = "verify"
)

// ToolConfig contains tool access configuration for a preset
type ToolConfig struct {
	Name         string
	Description  string
	AllowedTools map[string]bool // nil means all tools allowed
	DeniedTools  map[string]bool // Tools explicitly denied
}

var (
	readOnlyDeniedTools = map[string]bool{
		"file_write": true,
		"shell_exec": true,
	}
	verifyDeniedTools = map[string]bool{
		"file_write": true,
	}
)

func cloneToolSet(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

// GetToolConfig returns the tool configuration for a preset.
func GetToolConfig(preset ToolPreset) (*ToolConfig, error) {
	if preset == "" {
		preset = ToolPresetFull
	}
	switch preset {
	case ToolPresetFull:
		return &ToolConfig{
			Name:        "Full Access",
			Description: "All tools available",
		}, nil
	case ToolPresetReadOnly:
		return &ToolConfig{
			Name:        "Read-Only Access",
			Description: "No writes and no shell execution",
			DeniedTools: cloneToolSet(readOnlyDeniedTools),
		}, nil
	case ToolPresetVerify:
		return &ToolConfig{
			Name:        "Verify",
			Description: "Read and run commands, no writes",
			DeniedTools: cloneToolSet(verifyDeniedTools),
		}, nil
	default:
		return nil, fmt.Errorf("unknown tool preset: %s", preset)
	}
}

// ToolPresetFor maps a role to its tool access level.
func ToolPresetFor(role AgentPreset) ToolPreset {
	switch role {
	case PresetPlanner:
		return ToolPresetReadOnly
	case PresetTester:
		return ToolPresetVerify
	default:
		return ToolPresetFull
	}
}

// FilteredToolSet wraps a tool set with preset-based filtering
type FilteredToolSet struct {
	parent ports.ToolSet
	config *ToolConfig
}

// NewFilteredToolSet creates a filtered view of parent for preset.
func NewFilteredToolSet(parent ports.ToolSet, preset ToolPreset) (*FilteredToolSet, error) {
	config, err := GetToolConfig(preset)
	if err != nil {
		return nil, err
	}
	return &FilteredToolSet{parent: parent, config: config}, nil
}

func (f *FilteredToolSet) allowed(name string) bool {
	if f.config.DeniedTools[name] {
		return false
	}
	return f.config.AllowedTools == nil || f.config.AllowedTools[name]
}

// Get retrieves a tool if allowed by the preset
func (f *FilteredToolSet) Get(name string) (ports.Tool, bool) {
	if f.parent == nil || !f.allowed(name) {
		return nil, false
	}
	return f.parent.Get(name)
}

// Definitions returns only tools allowed by the preset
func (f *FilteredToolSet) Definitions() []ports.ToolDefinition {
	if f.parent == nil {
		return nil
	}
	var filtered []ports.ToolDefinition
	for _, def := range f.parent.Definitions() {
		if f.allowed(def.Name) {
			filtered = append(filtered, def)
		}
	}
	return filtered
}

// Names returns the allowed tool names, sorted.
func (f *FilteredToolSet) Names() []string {
	if f.parent == nil {
		return nil
	}
	var names []string
	for _, name := range f.parent.Names() {
		if f.allowed(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Config returns the active tool configuration.
func (f *FilteredToolSet) Config() *ToolConfig {
	return f.config
}
