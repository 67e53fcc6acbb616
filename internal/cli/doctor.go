package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check stored data for broken dependencies and links",
	Long: `Check stored tasks for dependency cycles, blockers that no longer exist,
tasks that block themselves, and links to deleted epics. flow never creates
these itself; they come from editing the data files by hand.

Exits non-zero when any issue is found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return fmt.Errorf("store not initialized")
		}
		tasks, err := Store.LoadTasks()
		if err != nil {
			return fmt.Errorf("loading tasks: %w", err)
		}
		epics, err := Store.LoadEpics()
		if err != nil {
			return fmt.Errorf("loading epics: %w", err)
		}
		issues := core.Diagnose(tasks, epics)

		out := cmd.OutOrStdout()
		if jsonOutput {
			if issues == nil {
				issues = []core.Issue{}
			}
			if err := writeJSON(out, issues); err != nil {
				return err
			}
		} else if len(issues) == 0 {
			fmt.Fprintf(out, "No issues found in %d task(s) and %d epic(s).\n", len(tasks), len(epics))
		} else {
			for _, issue := range issues {
				fmt.Fprintf(out, "  %s %s\n", warnStyle.Render(fmt.Sprintf("%-18s", issue.Kind)), issue.Message)
				if len(issue.Path) > 0 {
					fmt.Fprintf(out, "  %-18s %s\n", "", dimStyle.Render(strings.Join(issue.Path, " -> ")))
				}
			}
		}
		if len(issues) > 0 {
			return fmt.Errorf("found %d issue(s)", len(issues))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
