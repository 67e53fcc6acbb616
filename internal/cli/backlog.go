package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/pkg/models"
)

var (
	backlogDescription string

	promoteType       string
	promotePriority   int
	promoteLabels     []string
	promoteSize       string
	promoteComplexity string
	promoteEpic       string
)

var backlogCmd = &cobra.Command{
	Use:     "backlog",
	Aliases: []string{"bl"},
	Short:   "Park ideas that are not yet tasks",
	Long: `Park ideas that are not yet scheduled work. Backlog items carry only a
title and description. Promote turns an item into an open task; defer turns a
task back into a backlog item.`,
}

var backlogAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add an idea to the backlog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if BacklogMgr == nil {
			return fmt.Errorf("backlog manager not initialized")
		}
		item, err := BacklogMgr.AddItem(args[0], backlogDescription)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), item)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %s\n", item.ID, item.Title)
		return nil
	},
}

var backlogListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List backlog items, oldest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if BacklogMgr == nil {
			return fmt.Errorf("backlog manager not initialized")
		}
		items, err := BacklogMgr.ListItems()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			if items == nil {
				items = []models.BacklogItem{}
			}
			return writeJSON(out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "Backlog is empty.")
			return nil
		}
		for _, item := range items {
			fmt.Fprintf(out, "  %-12s %s  %s\n", item.ID, dimStyle.Render(item.CreatedAt.Format("2006-01-02")), item.Title)
		}
		return nil
	},
}

var backlogShowCmd = &cobra.Command{
	Use:               "show <id>",
	Short:             "Show a backlog item",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeBacklogIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if BacklogMgr == nil {
			return fmt.Errorf("backlog manager not initialized")
		}
		item, err := BacklogMgr.GetItem(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, item)
		}
		fmt.Fprintf(out, "%s  %s\n", item.ID, item.Title)
		fmt.Fprintf(out, "  %-10s %s\n", "added:", item.CreatedAt.Format("2006-01-02 15:04"))
		if item.Description != "" {
			fmt.Fprintf(out, "\n%s\n", item.Description)
		}
		return nil
	},
}

var backlogPromoteCmd = &cobra.Command{
	Use:               "promote <id>",
	Short:             "Turn a backlog item into an open task",
	Long:              `Turn a backlog item into an open task with a new ID. The item is removed.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeBacklogIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if BacklogMgr == nil {
			return fmt.Errorf("backlog manager not initialized")
		}
		opts := core.PromoteOpts{
			Type:       models.TaskType(promoteType),
			Labels:     promoteLabels,
			Size:       models.Size(promoteSize),
			Complexity: models.Complexity(promoteComplexity),
			EpicRef:    promoteEpic,
		}
		if cmd.Flags().Changed("priority") {
			p := promotePriority
			opts.Priority = &p
		}
		task, err := BacklogMgr.Promote(args[0], opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Promoted %s to task %s: %s\n", args[0], task.ID, task.Title)
		return nil
	},
}

var backlogDeferCmd = &cobra.Command{
	Use:   "defer <task-id>",
	Short: "Move a task back to the backlog",
	Long: `Move a task back to the backlog. Only its title and description are kept;
other tasks stop waiting on it.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(models.StatusClosed),
	RunE: func(cmd *cobra.Command, args []string) error {
		if BacklogMgr == nil {
			return fmt.Errorf("backlog manager not initialized")
		}
		item, err := BacklogMgr.Defer(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), item)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deferred %s to backlog item %s: %s\n", args[0], item.ID, item.Title)
		return nil
	},
}

var backlogRemoveCmd = &cobra.Command{
	Use:               "remove <id>",
	Aliases:           []string{"rm"},
	Short:             "Drop a backlog item",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeBacklogIDs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if BacklogMgr == nil {
			return fmt.Errorf("backlog manager not initialized")
		}
		item, err := BacklogMgr.RemoveItem(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), item)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s: %s\n", item.ID, item.Title)
		return nil
	},
}

func init() {
	backlogAddCmd.Flags().StringVarP(&backlogDescription, "description", "d", "", "Item description")

	f := backlogPromoteCmd.Flags()
	f.StringVarP(&promoteType, "type", "t", "", "Task type; defaults.type when omitted")
	f.IntVarP(&promotePriority, "priority", "p", 0, "Priority; defaults.priority when omitted")
	f.StringSliceVarP(&promoteLabels, "label", "l", nil, "Label (repeatable)")
	f.StringVar(&promoteSize, "size", "", "Size estimate")
	f.StringVar(&promoteComplexity, "complexity", "", "Complexity")
	f.StringVarP(&promoteEpic, "epic", "e", "", "Epic ID to link")
	registerTaskFlagCompletions(backlogPromoteCmd)

	backlogCmd.AddCommand(backlogAddCmd, backlogListCmd, backlogShowCmd, backlogPromoteCmd, backlogDeferCmd, backlogRemoveCmd)
	rootCmd.AddCommand(backlogCmd)
}
