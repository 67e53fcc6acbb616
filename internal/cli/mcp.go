package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	flowmcp "github.com/valter-silva-au/flow/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the flow MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flow MCP server on stdio",
	Long: `Start the flow MCP server on stdio transport.

Coding agents use the server to find ready work, claim it, record how their
process exited and close the task: ready_tasks, consume_task, record_exit,
close_task and retry_task, plus task, dependency, epic, run, metrics and
alert tools.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		srv := flowmcp.NewServer(flowmcp.Services{
			TaskMgr:     TaskMgr,
			DepGraph:    DepGraph,
			EpicMgr:     EpicMgr,
			RunRec:      RunRec,
			MetricsCalc: MetricsCalc,
			AlertEngine: AlertEngine,
		}, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
