package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var epicDescription string

var epicCmd = &cobra.Command{
	Use:   "epic",
	Short: "Group tasks into epics",
	Long: `Group tasks into epics. An epic's status is derived from its tasks:
not_started with no tasks, in_progress while any task is unfinished, and
review_pending once every task is closed.`,
}

var epicCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an epic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if EpicMgr == nil {
			return fmt.Errorf("epic manager not initialized")
		}
		epic, err := EpicMgr.CreateEpic(args[0], epicDescription)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), epic)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created epic %s: %s\n", epic.ID, epic.Title)
		return nil
	},
}

var epicListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List epics with derived status and progress",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EpicMgr == nil {
			return fmt.Errorf("epic manager not initialized")
		}
		views, err := EpicMgr.ListEpics()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, views)
		}
		if len(views) == 0 {
			fmt.Fprintln(out, "No epics found.")
			return nil
		}
		fmt.Fprintf(out, "  %-12s %-15s %-9s %s\n", "ID", "STATUS", "PROGRESS", "TITLE")
		for _, v := range views {
			fmt.Fprintf(out, "  %-12s %-15s %-9s %s\n", v.Epic.ID, v.Status, fmt.Sprintf("%d/%d", v.Closed, v.Total), v.Epic.Title)
		}
		return nil
	},
}

var epicShowCmd = &cobra.Command{
	Use:               "show <id>",
	Short:             "Show an epic and its tasks",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEpicIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EpicMgr == nil {
			return fmt.Errorf("epic manager not initialized")
		}
		view, err := EpicMgr.GetEpic(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, view)
		}
		fmt.Fprintf(out, "%s  %s\n", view.Epic.ID, view.Epic.Title)
		fmt.Fprintf(out, "  %s, %d of %d tasks closed\n", epicStatusLabel(view.Status), view.Closed, view.Total)
		if view.Epic.Description != "" {
			fmt.Fprintf(out, "\n%s\n", view.Epic.Description)
		}
		if len(view.Tasks) > 0 {
			fmt.Fprintln(out)
			printTaskTable(out, view.Tasks)
		}
		return nil
	},
}

var epicDeleteCmd = &cobra.Command{
	Use:               "delete <id>",
	Aliases:           []string{"rm"},
	Short:             "Delete an epic and unlink its tasks",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeEpicIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if EpicMgr == nil {
			return fmt.Errorf("epic manager not initialized")
		}
		res, err := EpicMgr.DeleteEpic(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, res)
		}
		fmt.Fprintf(out, "Deleted epic %s: %s\n", res.Epic.ID, res.Epic.Title)
		if n := len(res.UnlinkedTaskIDs); n > 0 {
			fmt.Fprintf(out, "  unlinked %d task(s)\n", n)
		}
		return nil
	},
}

var epicLinkCmd = &cobra.Command{
	Use:   "link <epic-id> <task-id>...",
	Short: "Add tasks to an epic",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if EpicMgr == nil {
			return fmt.Errorf("epic manager not initialized")
		}
		return reportBatch(cmd.OutOrStdout(), "Linked", EpicMgr.LinkTasks(args[0], args[1:]))
	},
}

var epicUnlinkCmd = &cobra.Command{
	Use:               "unlink <task-id>...",
	Short:             "Remove tasks from their epic",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if EpicMgr == nil {
			return fmt.Errorf("epic manager not initialized")
		}
		return reportBatch(cmd.OutOrStdout(), "Unlinked", EpicMgr.UnlinkTasks(args))
	},
}

func init() {
	epicCreateCmd.Flags().StringVarP(&epicDescription, "description", "d", "", "Epic description")
	epicCmd.AddCommand(epicCreateCmd, epicListCmd, epicShowCmd, epicDeleteCmd, epicLinkCmd, epicUnlinkCmd)
	rootCmd.AddCommand(epicCmd)
}
