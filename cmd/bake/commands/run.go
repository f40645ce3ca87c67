package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/bake/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [steps...]",
		Short: "Run the buildfile steps, all of them when none are named",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			noCache, _ := cmd.Flags().GetBool("no-cache")
			force, _ := cmd.Flags().GetBool("force")
			jsonLogs, _ := cmd.Flags().GetBool("json-logs")
			return c.app.Run(cmd.Context(), app.RunOptions{
				ConfigPath: configPath,
				Steps:      args,
				NoCache:    noCache,
				Force:      force,
				Verbosity:  verbosity(cmd),
				JSONLogs:   jsonLogs,
			})
		},
	}
	cmd.Flags().BoolP("no-cache", "n", false, "Run steps directly without reading or writing the cache")
	cmd.Flags().BoolP("force", "f", false, "Discard cached results of the selected steps before running")
	return cmd
}
