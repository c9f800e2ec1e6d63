package builtin

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"triad/internal/agent/ports"
	"triad/internal/shared/errors"
	"triad/internal/shared/logging"
	"triad/internal/shared/textutil"
)

const (
	defaultShellTimeout = 2 * time.Minute
	maxShellOutput      = 16000
)

type shellExec struct {
	definition
	ws      *Workspace
	timeout time.Duration
	retry   errors.RetryConfig
	logger  logging.Logger
}

// NewShellExec runs commands with bash in the workspace. A command that
// fails to start with a transient error is retried once.
func NewShellExec(ws *Workspace, timeout time.Duration, logger logging.Logger) ports.Tool {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	return &shellExec{
		ws:      ws,
		timeout: timeout,
		retry:   errors.RetryConfig{MaxAttempts: 1, BaseDelay: 250 * time.Millisecond, MaxDelay: time.Second},
		logger:  logging.OrNop(logger),
		definition: definition{ports.ToolDefinition{
			Name:        "shell_exec",
			Description: "Run a bash command in the working directory and return its exit code and output.",
			Parameters: ports.ParameterSchema{
				Type: "object",
				Properties: map[string]ports.Property{
					"command": {Type: "string", Description: "Command line to run"},
				},
				Required: []string{"command"},
			},
		}},
	}
}

type shellOutput struct {
	stdout, stderr string
	exitCode       int
	timedOut       bool
}

func (t *shellExec) Invoke(ctx context.Context, args map[string]any) (string, error) {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return "", stderrors.New("missing 'command'")
	}

	out, err := errors.RetryWithResult(ctx, t.retry, func(ctx context.Context) (shellOutput, error) {
		return t.run(ctx, command)
	}, t.logger)
	if err != nil {
		return "", err
	}
	return formatShellOutput(out), nil
}

func (t *shellExec) run(ctx context.Context, command string) (shellOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = t.ws.Root()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := shellOutput{stdout: stdout.String(), stderr: stderr.String()}
	if runErr == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	switch {
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		out.timedOut = true
		out.exitCode = -1
		return out, nil
	case stderrors.As(runErr, &exitErr):
		out.exitCode = exitErr.ExitCode()
		return out, nil
	}
	if errors.IsTransient(runErr) {
		return out, errors.NewTransientError(runErr, "command failed to start")
	}
	return out, fmt.Errorf("start command: %w", runErr)
}

func formatShellOutput(out shellOutput) string {
	var sb strings.Builder
	if out.timedOut {
		sb.WriteString("timed out\n")
	} else {
		fmt.Fprintf(&sb, "exit code %d\n", out.exitCode)
	}
	if s := strings.TrimSpace(out.stdout); s != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(textutil.SmartTruncate(s, maxShellOutput))
		sb.WriteString("\n")
	}
	if s := strings.TrimSpace(out.stderr); s != "" {
		sb.WriteString("stderr:\n")
		sb.WriteString(textutil.SmartTruncate(s, maxShellOutput))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
