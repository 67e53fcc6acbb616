package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(alerts []Alert) error
}

// maxAlertsPerGroup caps the lines of one condition group so a section stays
// under Slack's 3000 character limit.
const maxAlertsPerGroup = 10

type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier posting to a Slack incoming webhook.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts alerts grouped by condition. An empty slice sends nothing.
func (s *slackNotifier) Notify(alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildSlackMessage(alerts))
	if err != nil {
		return fmt.Errorf("marshalling slack message: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// alertGroup is every alert sharing one condition.
type alertGroup struct {
	condition string
	alerts    []Alert
}

func buildSlackMessage(alerts []Alert) slackMessage {
	summary := severitySummary(alerts)
	msg := slackMessage{
		Text: fmt.Sprintf("flow: %d alert(s), %s", len(alerts), summary),
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("flow: %d alert(s)", len(alerts))}},
			{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: summary}}},
		},
	}

	for _, g := range groupAlerts(alerts) {
		msg.Blocks = append(msg.Blocks,
			slackBlock{Type: "divider"},
			slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: groupText(g)}},
		)
		if hint := conditionHint(g); hint != "" {
			msg.Blocks = append(msg.Blocks, slackBlock{
				Type:     "context",
				Elements: []slackText{{Type: "mrkdwn", Text: hint}},
			})
		}
	}
	return msg
}

// groupAlerts buckets alerts by condition. Groups are ordered by their most
// severe alert, then condition name; alerts within a group by severity, then
// largest value.
func groupAlerts(alerts []Alert) []alertGroup {
	byCondition := map[string]*alertGroup{}
	var groups []*alertGroup
	for _, a := range alerts {
		g, ok := byCondition[a.Condition]
		if !ok {
			g = &alertGroup{condition: a.Condition}
			byCondition[a.Condition] = g
			groups = append(groups, g)
		}
		g.alerts = append(g.alerts, a)
	}

	out := make([]alertGroup, len(groups))
	for i, g := range groups {
		sort.SliceStable(g.alerts, func(a, b int) bool {
			x, y := g.alerts[a], g.alerts[b]
			if rankSeverity(x.Severity) != rankSeverity(y.Severity) {
				return rankSeverity(x.Severity) < rankSeverity(y.Severity)
			}
			if x.Value != y.Value {
				return x.Value > y.Value
			}
			return x.TaskID < y.TaskID
		})
		out[i] = *g
	}
	sort.SliceStable(out, func(a, b int) bool {
		ra, rb := rankSeverity(out[a].alerts[0].Severity), rankSeverity(out[b].alerts[0].Severity)
		if ra != rb {
			return ra < rb
		}
		return out[a].condition < out[b].condition
	})
	return out
}

func groupText(g alertGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%d)", conditionTitle(g.condition), len(g.alerts))
	for i, a := range g.alerts {
		if i == maxAlertsPerGroup {
			fmt.Fprintf(&b, "\n_and %d more_", len(g.alerts)-maxAlertsPerGroup)
			break
		}
		fmt.Fprintf(&b, "\n%s %s", severityEmoji(a.Severity), alertLine(a))
	}
	return b.String()
}

// alertLine renders the measured value when the condition is known and
// falls back to the engine's message otherwise.
func alertLine(a Alert) string {
	switch a.Condition {
	case ConditionTaskStale:
		return fmt.Sprintf("`%s` idle for %d days", a.TaskID, a.Value)
	case ConditionReviewTooLong:
		return fmt.Sprintf("`%s` in review for %d days", a.TaskID, a.Value)
	case ConditionRetryLoop:
		return fmt.Sprintf("`%s` retried %d times", a.TaskID, a.Value)
	case ConditionReadyQueueSize:
		return fmt.Sprintf("%d tasks waiting for an agent", a.Value)
	}
	if a.TaskID != "" {
		return fmt.Sprintf("`%s` %s", a.TaskID, a.Message)
	}
	return a.Message
}

func conditionTitle(condition string) string {
	switch condition {
	case ConditionTaskStale:
		return "Stale in-progress tasks"
	case ConditionReviewTooLong:
		return "Long reviews"
	case ConditionRetryLoop:
		return "Retry loops"
	case ConditionReadyQueueSize:
		return "Ready queue backlog"
	case "":
		return "Other"
	}
	return condition
}

// conditionHint suggests the flow command that resolves a group, naming the
// first task where one applies.
func conditionHint(g alertGroup) string {
	id := g.alerts[0].TaskID
	switch g.condition {
	case ConditionTaskStale:
		return fmt.Sprintf("Check the agent with `flow task show %s`; `flow task reopen %s` hands it back.", id, id)
	case ConditionReviewTooLong:
		return fmt.Sprintf("Close reviewed work with `flow task done %s`.", id)
	case ConditionRetryLoop:
		return fmt.Sprintf("Inspect attempts with `flow run list %s` before another retry.", id)
	case ConditionReadyQueueSize:
		return "See the queue with `flow ready`."
	}
	return ""
}

func severitySummary(alerts []Alert) string {
	counts := map[AlertSeverity]int{}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	var parts []string
	for _, s := range []AlertSeverity{SeverityHigh, SeverityMedium, SeverityLow} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d %s", severityEmoji(s), counts[s], s))
			delete(counts, s)
		}
	}
	other := 0
	for _, n := range counts {
		other += n
	}
	if other > 0 {
		parts = append(parts, fmt.Sprintf("%s %d other", severityEmoji(""), other))
	}
	return strings.Join(parts, "  ")
}

func rankSeverity(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	}
	return 3
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
