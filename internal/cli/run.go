package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
)

var (
	runAgent      string
	runModel      string
	runStarted    string
	runEnded      string
	runExitCode   int
	runOutput     string
	runOutputFile string
	runCost       float64
	runSession    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record and inspect agent runs against tasks",
	Long: `Record and inspect agent runs. A run is one execution attempt against a
task: who ran it, when, how it exited and what it cost. Runs are append-only and
are kept after their task is deleted.`,
}

var runRecordCmd = &cobra.Command{
	Use:               "record <task-id>",
	Short:             "Append a run to a task's history",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if RunRec == nil {
			return fmt.Errorf("run recorder not initialized")
		}
		opts := core.RunOpts{
			Agent:     runAgent,
			Model:     runModel,
			Output:    runOutput,
			CostUSD:   runCost,
			SessionID: runSession,
		}
		var err error
		if runStarted != "" {
			if opts.StartedAt, err = time.Parse(time.RFC3339, runStarted); err != nil {
				return fmt.Errorf("parsing --started: %w", err)
			}
		}
		if runEnded != "" {
			ended, err := time.Parse(time.RFC3339, runEnded)
			if err != nil {
				return fmt.Errorf("parsing --ended: %w", err)
			}
			opts.EndedAt = &ended
		}
		if cmd.Flags().Changed("exit-code") {
			code := runExitCode
			opts.ExitCode = &code
		}
		if runOutputFile != "" {
			data, err := os.ReadFile(runOutputFile)
			if err != nil {
				return fmt.Errorf("reading --output-file: %w", err)
			}
			opts.Output = string(data)
		}

		run, err := RunRec.RecordRun(args[0], opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), run)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded run %s for %s\n", run.RunID, run.TaskID)
		return nil
	},
}

var runListCmd = &cobra.Command{
	Use:               "list <task-id>",
	Aliases:           []string{"ls"},
	Short:             "Show a task's runs and their total cost",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTaskIDs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if RunRec == nil {
			return fmt.Errorf("run recorder not initialized")
		}
		summary, err := RunRec.ListRuns(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, summary)
		}
		if len(summary.Runs) == 0 {
			fmt.Fprintf(out, "No runs recorded for %s.\n", summary.TaskID)
			return nil
		}
		fmt.Fprintf(out, "  %-17s %-12s %-10s %-6s %-9s %s\n", "STARTED", "AGENT", "DURATION", "EXIT", "COST", "RUN")
		for _, r := range summary.Runs {
			duration, exit := "running", "-"
			if r.EndedAt != nil {
				duration = r.Duration().Round(time.Second).String()
			}
			if r.ExitCode != nil {
				exit = fmt.Sprint(*r.ExitCode)
				if *r.ExitCode != 0 {
					exit = warnStyle.Render(fmt.Sprintf("%-6s", exit))
				}
			}
			fmt.Fprintf(out, "  %-17s %-12s %-10s %-6s $%-8.4f %s\n",
				r.StartedAt.Format("2006-01-02 15:04"), r.Agent, duration, exit, r.CostUSD, r.RunID)
		}
		fmt.Fprintf(out, "\n  %d run(s), total cost $%.4f\n", len(summary.Runs), summary.TotalCostUSD)
		return nil
	},
}

func init() {
	f := runRecordCmd.Flags()
	f.StringVar(&runAgent, "agent", "", "Agent that performed the run")
	f.StringVar(&runModel, "model", "", "Model used")
	f.StringVar(&runStarted, "started", "", "Start time (RFC 3339); now when omitted")
	f.StringVar(&runEnded, "ended", "", "End time (RFC 3339)")
	f.IntVar(&runExitCode, "exit-code", 0, "Process exit code")
	f.StringVar(&runOutput, "output", "", "Captured output")
	f.StringVar(&runOutputFile, "output-file", "", "Read captured output from a file")
	f.Float64Var(&runCost, "cost", 0, "Cost in USD")
	f.StringVar(&runSession, "session", "", "Agent session ID")

	runCmd.AddCommand(runRecordCmd, runListCmd)
	rootCmd.AddCommand(runCmd)
}
