package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/observability"
)

var alertsNotify bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active alerts and warnings",
	Long: `Evaluate alert conditions and display any triggered alerts.

Alerts fire for tasks in progress longer than alerts.stale_days, reviews
older than alerts.review_days, tasks retried more than alerts.max_retries
times, and a ready queue larger than alerts.max_ready.

With --notify, triggered alerts are also sent to the configured Slack webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized")
		}
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if alerts == nil {
				alerts = []observability.Alert{}
			}
			if err := writeJSON(out, alerts); err != nil {
				return err
			}
		} else if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
		} else {
			fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
			for _, alert := range alerts {
				severity := fmt.Sprintf("[%s]", strings.ToUpper(string(alert.Severity)))
				if alert.Severity == observability.SeverityHigh {
					severity = warnStyle.Render(severity)
				}
				fmt.Fprintf(out, "  %s %s\n", severity, alert.Message)
				fmt.Fprintf(out, "         %s\n\n", dimStyle.Render("triggered at "+alert.TriggeredAt.Format("2006-01-02 15:04 UTC")))
			}
		}

		if !alertsNotify || len(alerts) == 0 {
			return nil
		}
		if Notifier == nil {
			return fmt.Errorf("notifications are not enabled; set notifications.enabled and notifications.slack.webhook_url")
		}
		if err := Notifier.Notify(alerts); err != nil {
			return fmt.Errorf("sending alerts: %w", err)
		}
		if !jsonOutput {
			fmt.Fprintf(out, "Sent %d alert(s) to Slack.\n", len(alerts))
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Send triggered alerts to the configured webhook")
	rootCmd.AddCommand(alertsCmd)
}
