package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/pkg/models"
)

// statusSummary is the overview printed by `flow status`.
type statusSummary struct {
	ByStatus  map[models.TaskStatus]int `json:"by_status"`
	Ready     int                       `json:"ready"`
	Blocked   int                       `json:"blocked"`
	Stuck     int                       `json:"stuck"`
	Epics     []core.EpicView           `json:"epics,omitempty"`
	Backlog   int                       `json:"backlog"`
	Available []models.Task             `json:"available,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize tasks, epics and available work",
	Long: `Display task counts by status, the size of the ready and blocked queues,
stuck agent work, epic progress and the next few ready tasks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		summary, err := buildStatusSummary()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, summary)
		}

		fmt.Fprintln(out, "Tasks:")
		for _, s := range models.TaskStatuses {
			fmt.Fprintf(out, "  %s %d\n", statusStyle(s).Render(fmt.Sprintf("%-14s", s)), summary.ByStatus[s])
		}
		fmt.Fprintf(out, "\n  %-14s %d\n", "ready", summary.Ready)
		fmt.Fprintf(out, "  %-14s %d\n", "blocked", summary.Blocked)
		if summary.Stuck > 0 {
			fmt.Fprintf(out, "  %-14s %s\n", "stuck", warnStyle.Render(fmt.Sprint(summary.Stuck)))
		}
		fmt.Fprintf(out, "  %-14s %d\n", "backlog", summary.Backlog)

		if len(summary.Epics) > 0 {
			fmt.Fprintln(out, "\nEpics:")
			for _, e := range summary.Epics {
				fmt.Fprintf(out, "  %-12s %-15s %d/%d  %s\n", e.Epic.ID, e.Status, e.Closed, e.Total, e.Epic.Title)
			}
		}
		if len(summary.Available) > 0 {
			fmt.Fprintln(out, "\nNext up:")
			printTaskTable(out, summary.Available)
		}
		return nil
	},
}

func buildStatusSummary() (*statusSummary, error) {
	all, err := TaskMgr.ListTasks(core.TaskFilter{})
	if err != nil {
		return nil, err
	}
	summary := &statusSummary{ByStatus: make(map[models.TaskStatus]int)}
	for _, t := range all {
		summary.ByStatus[t.Status]++
	}

	r := core.ClassifyReadiness(all)
	summary.Ready = r.Available()
	summary.Blocked = len(r.Blocked)
	summary.Available = r.Ready
	if len(summary.Available) > 5 {
		summary.Available = summary.Available[:5]
	}

	if StuckDt != nil {
		stuck, err := StuckDt.FindStuck()
		if err != nil {
			return nil, err
		}
		summary.Stuck = len(stuck)
	}
	if EpicMgr != nil {
		epics, err := EpicMgr.ListEpics()
		if err != nil {
			return nil, err
		}
		summary.Epics = epics
	}
	if BacklogMgr != nil {
		items, err := BacklogMgr.ListItems()
		if err != nil {
			return nil, err
		}
		summary.Backlog = len(items)
	}
	return summary, nil
}

// epicStatusLabel upper-cases the derived status for headings.
func epicStatusLabel(s models.EpicStatus) string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
