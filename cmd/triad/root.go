package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"triad/internal/llm"
	"triad/internal/shared/config"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isTTY(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// cli carries the streams and the flag/env view shared by every command.
type cli struct {
	v      *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), stdin: stdin, stdout: stdout, stderr: stderr}
	c.v.SetEnvPrefix("TRIAD")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "triad",
		Short:         "Plan, code and test a change with three cooperating agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if c.v.GetBool("no-color") || !isTTY(stdout) {
				color.NoColor = true
			}
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $TRIAD_CONFIG, ~/.triad/config.yaml, ./triad.yaml)")
	flags.String("workdir", "", "directory the agents' tools operate in")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Bool("no-color", false, "disable colored output")
	_ = c.v.BindPFlags(flags)

	root.AddCommand(
		c.newRunCommand(),
		c.newConfigCommand(),
		c.newAgentsCommand(),
		c.newVersionCommand(),
	)
	return root
}

// loadConfig reads the config file and applies flag and TRIAD_* overrides.
func (c *cli) loadConfig() (config.Config, string, error) {
	var opts []config.Option
	if path := c.v.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, path, err := config.Load(opts...)
	if err != nil {
		return cfg, path, err
	}

	if dir := c.v.GetString("workdir"); dir != "" {
		cfg.Tools.Workdir = dir
	}
	if level := c.v.GetString("log-level"); level != "" {
		cfg.Observability.Logging.Level = level
	}
	if n := c.v.GetInt("max-iterations"); n > 0 {
		cfg.Workflow.MaxIterations = n
	}
	if addr := c.v.GetString("metrics-addr"); addr != "" {
		cfg.Observability.Metrics.Enabled = true
		cfg.Observability.Metrics.Addr = addr
	}
	if c.v.GetBool("dry-run") {
		cfg.Agents.Each(func(_ string, agent *config.AgentConfig) {
			agent.Provider = llm.ProviderScripted
			agent.APIKey = ""
		})
	}
	return cfg, path, nil
}

func (c *cli) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(c.stdout, "triad %s\n", version)
		},
	}
}
