package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"triad/internal/agent/presets"
	"triad/internal/shared/config"
)

func (c *cli) newAgentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "agents [role]",
		Short:     "Describe the planner, coder and tester as configured",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"planner", "coder", "tester"},
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 && !presets.IsValidPreset(args[0]) {
				return fmt.Errorf("unknown role %q", args[0])
			}
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			agents := map[string]config.AgentConfig{}
			cfg.Agents.Each(func(role string, agent *config.AgentConfig) { agents[role] = *agent })

			for _, preset := range presets.GetAllPresets() {
				if len(args) == 1 && string(preset) != args[0] {
					continue
				}
				prompt, err := presets.GetPromptConfigWithSentinel(preset, cfg.Workflow.Sentinel)
				if err != nil {
					return err
				}
				tools, err := presets.GetToolConfig(presets.ToolPresetFor(preset))
				if err != nil {
					return err
				}
				agent := agents[string(preset)]
				fmt.Fprintf(c.stdout, "%s %s\n", bold(prompt.Name), gray(prompt.Description))
				fmt.Fprintf(c.stdout, "  model: %s/%s\n", agent.Provider, agent.Model)
				fmt.Fprintf(c.stdout, "  tools: %s", tools.Name)
				if len(tools.DeniedTools) > 0 {
					denied := make([]string, 0, len(tools.DeniedTools))
					for name := range tools.DeniedTools {
						denied = append(denied, name)
					}
					slices.Sort(denied)
					fmt.Fprintf(c.stdout, " (no %s)", strings.Join(denied, ", "))
				}
				fmt.Fprintln(c.stdout)
			}
			return nil
		},
	}
}
