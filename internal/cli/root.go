package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// jsonOutput switches list and show commands to JSON.
var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "flow",
	Short: "flow - local task and epic tracking for coding agents",
	Long: `flow tracks tasks, their dependencies, epics and a backlog of ideas in a
local data directory, so that autonomous coding agents and the humans
supervising them share one view of what is ready, blocked or stuck.

Task, epic and backlog IDs may be abbreviated to any unique fragment of
their hash.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flow %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
