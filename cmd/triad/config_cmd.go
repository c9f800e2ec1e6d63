package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"triad/internal/observability"
	"triad/internal/shared/config"
)

func (c *cli) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with secrets masked",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, path, err := c.loadConfig()
				if err != nil {
					return err
				}
				cfg.Agents.Each(func(_ string, agent *config.AgentConfig) {
					agent.APIKey = observability.SanitizeAPIKey(agent.APIKey)
				})
				data, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "%s\n%s", gray("# "+path), data)
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration and list every problem",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, path, err := c.loadConfig()
				if err != nil {
					return err
				}
				err = cfg.Validate()
				var verr *config.ValidationError
				if errors.As(err, &verr) {
					for _, issue := range verr.Issues {
						fmt.Fprintf(c.stdout, "%s %s: %s\n", red("✗"), issue.Field, issue.Message)
					}
					return fmt.Errorf("%d configuration problems in %s", len(verr.Issues), path)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "%s %s\n", green("✓"), path)
				return nil
			},
		},
	)
	return cmd
}
