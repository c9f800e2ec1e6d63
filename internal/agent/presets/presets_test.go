package presets

import (
	"context"
	"strings"
	"testing"

	"triad/internal/agent/ports"
)

func TestGetPromptConfig(t *testing.T) {
	tests := []struct {
		name    string
		preset  AgentPreset
		wantErr bool
	}{
		{name: "planner preset", preset: PresetPlanner},
		{name: "coder preset", preset: PresetCoder},
		{name: "tester preset", preset: PresetTester},
		{name: "invalid preset", preset: AgentPreset("invalid"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := GetPromptConfig(tt.preset)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetPromptConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if config == nil {
				t.Fatal("GetPromptConfig() returned nil config")
			}
			if config.Name == "" || config.SystemPrompt == "" {
				t.Errorf("GetPromptConfig() returned incomplete config: %+v", config)
			}
		})
	}
}

func TestCoderPromptNamesSentinel(t *testing.T) {
	config, err := GetPromptConfigWithSentinel(PresetCoder, "ALL_DONE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(config.SystemPrompt, "ALL_DONE") {
		t.Error("coder prompt does not mention the configured sentinel")
	}

	config, _ = GetPromptConfigWithSentinel(PresetCoder, " ")
	if !strings.Contains(config.SystemPrompt, CompletionSentinel) {
		t.Error("blank sentinel should fall back to the default")
	}
}

func TestIsValidPreset(t *testing.T) {
	for _, p := range GetAllPresets() {
		if !IsValidPreset(string(p)) {
			t.Errorf("IsValidPreset(%q) = false", p)
		}
	}
	if IsValidPreset("reviewer") {
		t.Error("IsValidPreset(reviewer) = true")
	}
}

type fakeTool struct{ name string }

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) Description() string { return f.name }
func (f fakeTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: f.name}
}
func (f fakeTool) Invoke(context.Context, map[string]any) (string, error) { return "", nil }

type fakeSet map[string]ports.Tool

func (s fakeSet) Get(name string) (ports.Tool, bool) {
	t, ok := s[name]
	return t, ok
}

func (s fakeSet) Definitions() []ports.ToolDefinition {
	var defs []ports.ToolDefinition
	for _, t := range s {
		defs = append(defs, t.Definition())
	}
	return defs
}

func (s fakeSet) Names() []string {
	var names []string
	for name := range s {
		names = append(names, name)
	}
	return names
}

func allTools() fakeSet {
	set := fakeSet{}
	for _, name := range []string{"file_read", "file_write", "list_dir", "shell_exec"} {
		set[name] = fakeTool{name: name}
	}
	return set
}

func TestRoleToolAccess(t *testing.T) {
	tests := []struct {
		role AgentPreset
		want []string
	}{
		{role: PresetPlanner, want: []string{"file_read", "list_dir"}},
		{role: PresetCoder, want: []string{"file_read", "file_write", "list_dir", "shell_exec"}},
		{role: PresetTester, want: []string{"file_read", "list_dir", "shell_exec"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			set, err := NewFilteredToolSet(allTools(), ToolPresetFor(tt.role))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := set.Names()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Names() = %v, want %v", got, tt.want)
			}
			if len(set.Definitions()) != len(tt.want) {
				t.Errorf("Definitions() has %d entries, want %d", len(set.Definitions()), len(tt.want))
			}
		})
	}
}

func TestFilteredToolSetGetDenied(t *testing.T) {
	set, _ := NewFilteredToolSet(allTools(), ToolPresetReadOnly)
	if _, ok := set.Get("file_write"); ok {
		t.Error("file_write should be denied in read-only preset")
	}
	if _, ok := set.Get("file_read"); !ok {
		t.Error("file_read should be available in read-only preset")
	}
}

func TestGetToolConfigUnknown(t *testing.T) {
	if _, err := GetToolConfig("root"); err == nil {
		t.Error("expected error for unknown preset")
	}
}
