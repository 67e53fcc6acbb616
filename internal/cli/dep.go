package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
)

var depCmd = &cobra.Command{
	Use:     "dep",
	Aliases: []string{"deps"},
	Short:   "Manage blocked-by dependencies between tasks",
}

var depAddCmd = &cobra.Command{
	Use:   "add <blocked-id> <blocker-id>",
	Short: "Make a task wait for another task",
	Long: `Make <blocked-id> wait for <blocker-id>. The blocked task is not ready
until the blocker is closed. Dependencies that would form a cycle are
rejected.`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DepGraph == nil {
			return fmt.Errorf("dependency graph not initialized")
		}
		task, err := DepGraph.AddDependency(args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is blocked by %s\n", task.ID, strings.Join(task.BlockedBy, ", "))
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:               "remove <blocked-id> <blocker-id>",
	Aliases:           []string{"rm"},
	Short:             "Remove a dependency",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DepGraph == nil {
			return fmt.Errorf("dependency graph not initialized")
		}
		task, err := DepGraph.RemoveDependency(args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed dependency from %s\n", task.ID)
		return nil
	},
}

var depListCmd = &cobra.Command{
	Use:               "list <id>",
	Aliases:           []string{"ls"},
	Short:             "Show what a task waits for and what waits for it",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DepGraph == nil {
			return fmt.Errorf("dependency graph not initialized")
		}
		view, err := DepGraph.Dependencies(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, view)
		}
		fmt.Fprintf(out, "%s  %s\n", view.Task.ID, view.Task.Title)
		printDependencyView(out, view)
		return nil
	},
}

func printDependencyView(w io.Writer, view *core.DependencyView) {
	if len(view.Blockers) > 0 || len(view.Missing) > 0 {
		fmt.Fprintln(w, "\nBlocked by:")
		for _, b := range view.Blockers {
			fmt.Fprintf(w, "  %-12s %s  %s\n", b.ID, statusStyle(b.Status).Render(string(b.Status)), b.Title)
		}
		for _, id := range view.Missing {
			fmt.Fprintf(w, "  %-12s %s\n", id, warnStyle.Render("missing"))
		}
	}
	if len(view.Dependents) > 0 {
		fmt.Fprintln(w, "\nBlocks:")
		for _, d := range view.Dependents {
			fmt.Fprintf(w, "  %-12s %s  %s\n", d.ID, statusStyle(d.Status).Render(string(d.Status)), d.Title)
		}
	}
}

func init() {
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depListCmd)
	rootCmd.AddCommand(depCmd)
}
