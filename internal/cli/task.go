package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/pkg/models"
)

var (
	createDescription string
	createType        string
	createPriority    int
	createLabels      []string
	createSize        string
	createComplexity  string
	createBlockedBy   []string
	createEpic        string

	listStatuses []string
	listTypes    []string
	listLabels   []string
	listEpic     string
	listPriority int
	listAll      bool

	updateTitle        string
	updateDescription  string
	updateType         string
	updatePriority     int
	updateSize         string
	updateComplexity   string
	updateStatus       string
	updateLabels       []string
	updateAddLabels    []string
	updateRemoveLabels []string
	updateEpic         string

	doneReason string
	doneCommit string

	consumePID   int
	exitCode     int
	exitOutput   string
	exitOutputIn string
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"t"},
	Short:   "Create, inspect and move tasks through their lifecycle",
	Long: `Manage tasks. A task moves open -> in_progress -> review -> closed; done
closes from any non-closed status, reopen returns closed, in_progress or
review tasks to open, and retry returns a consumed in_progress task to open.`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new open task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		opts := core.CreateTaskOpts{
			Title:       args[0],
			Description: createDescription,
			Type:        models.TaskType(createType),
			Labels:      createLabels,
			Size:        models.Size(createSize),
			Complexity:  models.Complexity(createComplexity),
			BlockedBy:   createBlockedBy,
			EpicRef:     createEpic,
		}
		if cmd.Flags().Changed("priority") {
			p := createPriority
			opts.Priority = &p
		}
		task, err := TaskMgr.CreateTask(opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created task %s: %s\n", task.ID, task.Title)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:               "show <id>",
	Short:             "Show a task with its blockers and dependents",
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
		printTask(out, view.Task)
		printDependencyView(out, view)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List tasks ordered by priority then age. Closed tasks are hidden unless
--all or --status closed is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		filter := core.TaskFilter{Labels: listLabels}
		for _, s := range listStatuses {
			filter.Statuses = append(filter.Statuses, models.TaskStatus(s))
		}
		if len(filter.Statuses) == 0 && !listAll {
			filter.Statuses = []models.TaskStatus{models.StatusOpen, models.StatusInProgress, models.StatusReview}
		}
		for _, t := range listTypes {
			filter.Types = append(filter.Types, models.TaskType(t))
		}
		if cmd.Flags().Changed("priority") {
			p := listPriority
			filter.Priority = &p
		}
		if listEpic != "" {
			if EpicMgr == nil {
				return fmt.Errorf("epic manager not initialized")
			}
			epic, err := EpicMgr.GetEpic(listEpic)
			if err != nil {
				return err
			}
			filter.EpicID = epic.Epic.ID
		}

		tasks, err := TaskMgr.ListTasks(filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			if tasks == nil {
				tasks = []models.Task{}
			}
			return writeJSON(out, tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks found.")
			return nil
		}
		printTaskTable(out, tasks)
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:               "update <id>",
	Short:             "Change task fields",
	Long:              `Change task fields. --status accepts open, in_progress or review; use done to close.
Setting open, or leaving closed, clears the close reason, commit and agent
consumption as reopen does.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		flags := cmd.Flags()
		var upd core.TaskUpdate
		if flags.Changed("title") {
			upd.Title = &updateTitle
		}
		if flags.Changed("description") {
			upd.Description = &updateDescription
		}
		if flags.Changed("type") {
			tt := models.TaskType(updateType)
			upd.Type = &tt
		}
		if flags.Changed("priority") {
			p := updatePriority
			upd.Priority = &p
		}
		if flags.Changed("size") {
			s := models.Size(updateSize)
			upd.Size = &s
		}
		if flags.Changed("complexity") {
			c := models.Complexity(updateComplexity)
			upd.Complexity = &c
		}
		if flags.Changed("status") {
			s := models.TaskStatus(updateStatus)
			upd.Status = &s
		}
		if flags.Changed("labels") {
			labels := updateLabels
			upd.Labels = &labels
		}
		upd.AddLabels = updateAddLabels
		upd.RemoveLabels = updateRemoveLabels
		if flags.Changed("epic") {
			upd.EpicRef = &updateEpic
		}

		task, err := TaskMgr.UpdateTask(args[0], upd)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated task %s\n", task.ID)
		return nil
	},
}

var taskStartCmd = &cobra.Command{
	Use:               "start <id>",
	Short:             "Move an open task to in_progress",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(models.StatusInProgress, models.StatusReview, models.StatusClosed),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		task, err := TaskMgr.StartTask(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s: %s\n", task.ID, task.Title)
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:               "done <id>...",
	Aliases:           []string{"close"},
	Short:             "Close one or more tasks",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs(models.StatusClosed),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		result := TaskMgr.DoneTasks(args, core.DoneOpts{Reason: doneReason, CommitHash: doneCommit})
		return reportBatch(cmd.OutOrStdout(), "Closed", result)
	},
}

var taskReopenCmd = &cobra.Command{
	Use:               "reopen <id>...",
	Short:             "Return closed, in_progress or review tasks to open",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs(models.StatusOpen),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		return reportBatch(cmd.OutOrStdout(), "Reopened", TaskMgr.ReopenTasks(args))
	},
}

var taskRetryCmd = &cobra.Command{
	Use:               "retry <id>...",
	Short:             "Return consumed in_progress tasks to open for another attempt",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs(models.StatusOpen, models.StatusReview, models.StatusClosed),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		return reportBatch(cmd.OutOrStdout(), "Retrying", TaskMgr.RetryTasks(args))
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:               "delete <id>...",
	Aliases:           []string{"rm"},
	Short:             "Delete tasks and remove them from other tasks' blockers",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		out := cmd.OutOrStdout()
		var results []*core.TaskDeleteResult
		var errs []error
		for _, ref := range args {
			res, err := TaskMgr.DeleteTask(ref)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ref, err))
				if !jsonOutput {
					fmt.Fprintf(out, "%s %s: %v\n", warnStyle.Render("failed"), ref, err)
				}
				continue
			}
			results = append(results, res)
			if !jsonOutput {
				fmt.Fprintf(out, "Deleted %s: %s\n", res.Task.ID, res.Task.Title)
				for _, id := range res.CleanedTaskIDs {
					fmt.Fprintf(out, "  removed as blocker of %s\n", id)
				}
			}
		}
		if jsonOutput {
			if err := writeJSON(out, results); err != nil {
				return err
			}
		}
		return errors.Join(errs...)
	},
}

var taskConsumeCmd = &cobra.Command{
	Use:   "consume <id>",
	Short: "Record that an agent process picked up the task",
	Long: `Record that an agent process picked up the task. The task moves to
in_progress and is marked consumed; --pid lets 'flow stuck' notice when the
process dies.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(models.StatusReview, models.StatusClosed),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		task, err := TaskMgr.MarkConsumed(args[0], consumePID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Consumed %s: %s\n", task.ID, task.Title)
		return nil
	},
}

var taskExitCmd = &cobra.Command{
	Use:               "exit <id>",
	Short:             "Record the exit code of the consuming agent process",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(models.StatusOpen, models.StatusClosed),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		output := exitOutput
		if exitOutputIn != "" {
			data, err := os.ReadFile(exitOutputIn)
			if err != nil {
				return fmt.Errorf("reading output file: %w", err)
			}
			output = string(data)
		}
		task, err := TaskMgr.RecordExit(args[0], exitCode, output)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded exit %d for %s\n", exitCode, task.ID)
		return nil
	},
}

func init() {
	f := taskCreateCmd.Flags()
	f.StringVarP(&createDescription, "description", "d", "", "Task description")
	f.StringVarP(&createType, "type", "t", "", "Task type (task, bug, feature, chore, refactor, docs, test)")
	f.IntVarP(&createPriority, "priority", "p", 0, "Priority from 0 (highest) to 4; defaults.priority when omitted")
	f.StringSliceVarP(&createLabels, "label", "l", nil, "Label (repeatable)")
	f.StringVar(&createSize, "size", "", "Size estimate (xs, s, m, l, xl)")
	f.StringVar(&createComplexity, "complexity", "", "Complexity (simple, moderate, complex)")
	f.StringSliceVarP(&createBlockedBy, "blocked-by", "b", nil, "Blocking task ID (repeatable)")
	f.StringVarP(&createEpic, "epic", "e", "", "Epic ID to link")
	registerTaskFlagCompletions(taskCreateCmd)

	f = taskListCmd.Flags()
	f.StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	f.StringSliceVarP(&listTypes, "type", "t", nil, "Filter by type (repeatable)")
	f.StringSliceVarP(&listLabels, "label", "l", nil, "Require label (repeatable)")
	f.StringVarP(&listEpic, "epic", "e", "", "Filter by epic ID")
	f.IntVarP(&listPriority, "priority", "p", 0, "Filter by priority")
	f.BoolVarP(&listAll, "all", "a", false, "Include closed tasks")
	registerTaskFlagCompletions(taskListCmd)

	f = taskUpdateCmd.Flags()
	f.StringVar(&updateTitle, "title", "", "New title")
	f.StringVarP(&updateDescription, "description", "d", "", "New description")
	f.StringVarP(&updateType, "type", "t", "", "New type")
	f.IntVarP(&updatePriority, "priority", "p", 0, "New priority")
	f.StringVar(&updateSize, "size", "", "New size")
	f.StringVar(&updateComplexity, "complexity", "", "New complexity")
	f.StringVarP(&updateStatus, "status", "s", "", "New status (open, in_progress, review)")
	f.StringSliceVar(&updateLabels, "labels", nil, "Replace all labels")
	f.StringSliceVar(&updateAddLabels, "add-label", nil, "Add a label (repeatable)")
	f.StringSliceVar(&updateRemoveLabels, "remove-label", nil, "Remove a label (repeatable)")
	f.StringVarP(&updateEpic, "epic", "e", "", `Epic ID to link, or "" to unlink`)
	registerTaskFlagCompletions(taskUpdateCmd)

	taskDoneCmd.Flags().StringVarP(&doneReason, "reason", "r", "", "Why the task was closed")
	taskDoneCmd.Flags().StringVarP(&doneCommit, "commit", "c", "", "Commit hash that resolved the task")

	taskConsumeCmd.Flags().IntVar(&consumePID, "pid", 0, "PID of the consuming agent process")
	taskExitCmd.Flags().IntVar(&exitCode, "code", 0, "Process exit code")
	taskExitCmd.Flags().StringVar(&exitOutput, "output", "", "Captured process output")
	taskExitCmd.Flags().StringVar(&exitOutputIn, "output-file", "", "Read captured output from a file")

	taskCmd.AddCommand(taskCreateCmd, taskShowCmd, taskListCmd, taskUpdateCmd,
		taskStartCmd, taskDoneCmd, taskReopenCmd, taskRetryCmd, taskDeleteCmd,
		taskConsumeCmd, taskExitCmd)
	rootCmd.AddCommand(taskCmd)
}
