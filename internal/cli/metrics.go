package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var metricsSince string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display task throughput and agent run metrics",
	Long: `Display metrics aggregated from the event log: tasks created, closed,
reopened, retried and deleted, backlog conversions, recorded runs, failed
agent exits and total run cost.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}
		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, metrics)
		}

		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		rows := []struct {
			label string
			value int
		}{
			{"Events recorded:", metrics.EventCount},
			{"Tasks created:", metrics.TasksCreated},
			{"Tasks closed:", metrics.TasksClosed},
			{"Tasks reopened:", metrics.TasksReopened},
			{"Tasks retried:", metrics.TasksRetried},
			{"Tasks deleted:", metrics.TasksDeleted},
			{"Backlog promoted:", metrics.BacklogPromoted},
			{"Backlog deferred:", metrics.BacklogDeferred},
			{"Runs recorded:", metrics.RunsRecorded},
			{"Failed agent exits:", metrics.FailedExits},
		}
		for _, r := range rows {
			fmt.Fprintf(out, "  %-24s %d\n", r.label, r.value)
		}
		fmt.Fprintf(out, "  %-24s $%.4f\n", "Run cost:", metrics.TotalCostUSD)

		printCounts(out, "Tasks by type:", metrics.TasksByType)
		printCounts(out, "Status transitions:", metrics.TasksByStatus)

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}
		return nil
	},
}

func printCounts(w io.Writer, heading string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "\n  %s\n", heading)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-20s %d\n", k+":", counts[k])
	}
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q (use e.g. 7d, 30d, 24h)", s)
	}
	switch unit {
	case 'd':
		return now.AddDate(0, 0, -n), nil
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
