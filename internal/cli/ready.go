package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/pkg/models"
)

var (
	readyLimit     int
	stuckRetryable bool
)

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List open tasks whose blockers are all closed",
	Long: `List open tasks whose blockers are all closed, most urgent first. A
blocker that no longer exists counts as not closed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		r, err := TaskMgr.Readiness()
		if err != nil {
			return err
		}
		tasks := r.Ready
		if readyLimit > 0 && len(tasks) > readyLimit {
			tasks = tasks[:readyLimit]
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			if tasks == nil {
				tasks = []models.Task{}
			}
			return writeJSON(out, tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No ready tasks.")
			return nil
		}
		printTaskTable(out, tasks)
		return nil
	},
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List open tasks waiting on unfinished blockers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		r, err := TaskMgr.Readiness()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			type blockedTask struct {
				models.Task
				OpenBlockers []string `json:"open_blockers"`
			}
			items := make([]blockedTask, 0, len(r.Blocked))
			for _, t := range r.Blocked {
				items = append(items, blockedTask{Task: t, OpenBlockers: r.OpenBlockers[t.ID]})
			}
			return writeJSON(out, items)
		}
		if len(r.Blocked) == 0 {
			fmt.Fprintln(out, "No blocked tasks.")
			return nil
		}
		fmt.Fprintf(out, "  %-12s %-3s %-28s %s\n", "ID", "PRI", "WAITING ON", "TITLE")
		for _, t := range r.Blocked {
			fmt.Fprintf(out, "  %-12s P%-2d %-28s %s\n", t.ID, t.Priority, strings.Join(r.OpenBlockers[t.ID], ","), t.Title)
		}
		return nil
	},
}

var stuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "List in-progress tasks whose agent failed or died",
	Long: `List in-progress tasks whose consuming agent exited non-zero or whose
recorded process is no longer running.

With --retryable, list every consumed in-progress task instead; these are
the tasks 'flow task retry' accepts. Tasks whose agent exited cleanly but
never closed the task are flagged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if StuckDt == nil {
			return fmt.Errorf("stuck detector not initialized")
		}
		out := cmd.OutOrStdout()
		if stuckRetryable {
			candidates, err := StuckDt.FindRetryable()
			if err != nil {
				return err
			}
			if jsonOutput {
				if candidates == nil {
					candidates = []core.RetryCandidate{}
				}
				return writeJSON(out, candidates)
			}
			if len(candidates) == 0 {
				fmt.Fprintln(out, "No retryable tasks.")
				return nil
			}
			for _, c := range candidates {
				note := ""
				if c.CleanExitUnclosed {
					note = warnStyle.Render(" exited 0 without closing")
				}
				fmt.Fprintf(out, "  %-12s %s%s\n", c.Task.ID, c.Task.Title, note)
			}
			return nil
		}

		stuck, err := StuckDt.FindStuck()
		if err != nil {
			return err
		}
		if jsonOutput {
			if stuck == nil {
				stuck = []core.StuckTask{}
			}
			return writeJSON(out, stuck)
		}
		if len(stuck) == 0 {
			fmt.Fprintln(out, "No stuck tasks.")
			return nil
		}
		for _, s := range stuck {
			fmt.Fprintf(out, "  %-12s %-14s %s\n", s.Task.ID, stuckDetail(s), s.Task.Title)
		}
		return nil
	},
}

func stuckDetail(s core.StuckTask) string {
	switch s.Reason {
	case core.StuckExitCode:
		return fmt.Sprintf("exit %d", *s.Task.ConsumedExitCode)
	case core.StuckDeadProcess:
		return fmt.Sprintf("pid %d gone", s.Task.ConsumePID)
	}
	return string(s.Reason)
}

func init() {
	readyCmd.Flags().IntVarP(&readyLimit, "limit", "n", 0, "Show at most N tasks")
	stuckCmd.Flags().BoolVar(&stuckRetryable, "retryable", false, "List consumed in-progress tasks that can be retried")
	rootCmd.AddCommand(readyCmd, blockedCmd, stuckCmd)
}
