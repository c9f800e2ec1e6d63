package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/internal/agent/ports"
	"triad/internal/diff"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(strings.NewReader(stdin), &stdout, &stderr)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunDryRun(t *testing.T) {
	cfgPath := writeConfig(t, "workflow:\n  max_iterations: 6\n")
	stdout, stderr, err := execute(t, "",
		"run", "--dry-run", "--config", cfgPath, "--workdir", t.TempDir(), "--log-level", "error",
		"add", "a", "health", "endpoint")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Result: tests passed")
	assert.Contains(t, stdout, "No files changed.")
	assert.Contains(t, stderr, "▸ planner")
	assert.Contains(t, stderr, "▸ tester")
	assert.Contains(t, stderr, "finished after 3 visits")
}

func TestRunReadsRequestFromStdin(t *testing.T) {
	cfgPath := writeConfig(t, "workflow:\n  max_iterations: 6\n")
	stdout, _, err := execute(t, "fix the parser\n",
		"run", "--dry-run", "--json", "--config", cfgPath, "--workdir", t.TempDir(), "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"original_request": "fix the parser"`)
	assert.Contains(t, stdout, `"eval_passed": true`)
}

func TestRunWithoutRequestFails(t *testing.T) {
	_, _, err := execute(t, "  ", "run", "--dry-run")
	assert.ErrorIs(t, err, errNoRequest)
}

func TestConfigValidateListsIssues(t *testing.T) {
	cfgPath := writeConfig(t, "workflow:\n  max_iterations: 0\nagents:\n  coder:\n    provider: scripted\n")
	stdout, _, err := execute(t, "", "config", "validate", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, stdout, "workflow.max_iterations")
}

func TestConfigShowMasksKeys(t *testing.T) {
	cfgPath := writeConfig(t, "agents:\n  planner:\n    api_key: sk-abcdefghijklmnop\n")
	stdout, _, err := execute(t, "", "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "sk-abcdefghijklmnop")
	assert.Contains(t, stdout, "max_iterations")
}

func TestAgentsDescribesRole(t *testing.T) {
	cfgPath := writeConfig(t, "agents:\n  tester:\n    model: gpt-4o\n")
	stdout, _, err := execute(t, "", "agents", "tester", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "model: openai/gpt-4o")
	assert.Contains(t, stdout, "tools: Verify (no file_write)")
	assert.NotContains(t, stdout, "Planner")

	_, _, err = execute(t, "", "agents", "reviewer")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "triad dev\n", stdout)
}

func TestWriteReportListsChangedFiles(t *testing.T) {
	gen := diff.NewGenerator(1, false)
	changes := []diff.Result{
		gen.Unified("main.go", "", "package main\n", true),
		gen.Unified("same.go", "x\n", "x\n", false),
	}
	state := ports.WorkflowState{
		EvalPassed:  false,
		Suggestions: []string{"Add a test"},
		Messages: []ports.Message{
			{Role: ports.RoleAssistant, Name: "tester", Content: "Missing coverage."},
		},
	}

	var out bytes.Buffer
	writeReport(&out, state, changes, false)
	report := out.String()
	assert.Contains(t, report, "tests failed")
	assert.Contains(t, report, "Missing coverage.")
	assert.Contains(t, report, "  - Add a test")
	assert.Contains(t, report, "main.go new file +1 -0")
	assert.NotContains(t, report, "same.go")
}
