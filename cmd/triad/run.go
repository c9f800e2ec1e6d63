package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"triad/internal/app/agent/coordinator"
	"triad/internal/diff"
	"triad/internal/observability"
	jsonx "triad/internal/shared/json"
	"triad/internal/shared/logging"
)

var errNoRequest = errors.New("no request given: pass it as arguments or on stdin")

func (c *cli) newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [request...]",
		Short: "Run the planner, coder and tester on one request",
		Long: `Run sends the request to the planner, then alternates between the coder
and the tester until the tester approves or the iteration ceiling is hit.
Without arguments the request is read from stdin.`,
		Example: `  triad run "add a /healthz endpoint with a test"
  echo "fix the failing parser test" | triad run --workdir ./repo
  triad run --dry-run "anything"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := c.readRequest(args)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), request)
		},
	}
	flags := cmd.Flags()
	flags.Bool("dry-run", false, "use scripted agents instead of a model provider")
	flags.Int("max-iterations", 0, "override workflow.max_iterations")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.Bool("json", false, "print the final workflow state as JSON")
	flags.Bool("diff", true, "print the unified diff of every changed file")
	_ = c.v.BindPFlags(flags)
	return cmd
}

func (c *cli) readRequest(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if isTTY(c.stdin) {
		return "", errNoRequest
	}
	data, err := io.ReadAll(c.stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	request := strings.TrimSpace(string(data))
	if request == "" {
		return "", errNoRequest
	}
	return request, nil
}

func (c *cli) run(ctx context.Context, request string) error {
	cfg, path, err := c.loadConfig()
	if err != nil {
		return err
	}
	cfg.Observability.Logging.Output = c.stderr
	logger := observability.NewLogger(cfg.Observability.Logging)
	logger.Debug("configuration loaded", slog.String("path", path))

	metrics, err := observability.NewMetrics(cfg.Observability.Metrics)
	if err != nil {
		return err
	}
	tracing, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := errors.Join(metrics.Shutdown(shutdownCtx), tracing.Shutdown(shutdownCtx)); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()
	if addr := cfg.Observability.Metrics.Addr; addr != "" {
		bound, err := metrics.Serve(addr)
		if err != nil {
			return err
		}
		logger.Info("metrics endpoint listening", slog.String("addr", "http://"+bound+"/metrics"))
	}

	progress := newProgressPrinter(c.stderr)
	opts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithTracer(tracing.Tracer()),
		coordinator.WithMetrics(metrics),
		coordinator.WithListener(progress),
		coordinator.WithDeltaHandler(progress.OnDelta),
		coordinator.WithDiffGenerator(diff.NewGenerator(3, !color.NoColor)),
	}
	if logCfg := cfg.Observability.Logging; logCfg.LLMLog {
		sink, err := logging.OpenFileSink(logCfg.Dir, logging.ParseLevel(logCfg.Level), logging.CategoryLLM)
		if err != nil {
			return err
		}
		defer sink.Close()
		opts = append(opts, coordinator.WithLLMLog(sink))
	}
	if c.v.GetBool("dry-run") {
		opts = append(opts, coordinator.WithClients(coordinator.DryRunClients(cfg.Workflow.Sentinel)))
	}
	coord, err := coordinator.New(cfg, opts...)
	if err != nil {
		return err
	}

	state, runErr := coord.Query(ctx, request)
	if c.v.GetBool("json") {
		data, err := jsonx.MarshalIndent(state, "", "  ")
		if err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Fprintln(c.stdout, string(data))
		return runErr
	}
	writeReport(c.stdout, state, coord.Changes(state.RunID), c.v.GetBool("diff"))
	return runErr
}
