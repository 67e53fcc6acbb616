package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/internal/observability"
	"github.com/valter-silva-au/flow/pkg/models"
)

// Dashboard panel indices.
const (
	panelReady = iota
	panelInProgress
	panelBlocked
	panelStuck
	panelCount
)

var panelTitles = [panelCount]string{"Ready", "In progress", "Blocked", "Stuck"}

const dashboardRefresh = 5 * time.Second

type dashboardKeyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func defaultDashboardKeys() dashboardKeyMap {
	return dashboardKeyMap{
		Next:    key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next panel")),
		Prev:    key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev panel")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Up, k.Down, k.Refresh, k.Quit}
}

func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Prev}}
}

// dashboardRow is one line in a queue panel.
type dashboardRow struct {
	task   models.Task
	detail string
}

type dashboardModel struct {
	keys        dashboardKeyMap
	help        help.Model
	activePanel int
	cursor      [panelCount]int
	width       int
	height      int

	panels  [panelCount][]dashboardRow
	metrics *observability.Metrics
	alerts  []observability.Alert
	loaded  time.Time

	loading bool
	err     error
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	panels  [panelCount][]dashboardRow
	metrics *observability.Metrics
	alerts  []observability.Alert
	at      time.Time
	err     error
}

type refreshTickMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = panelStyle.BorderForeground(lipgloss.Color("62"))

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		keys:    defaultDashboardKeys(),
		help:    help.New(),
		loading: true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(loadDashboardData, scheduleRefresh())
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Next):
			m.activePanel = (m.activePanel + 1) % panelCount
		case key.Matches(msg, m.keys.Prev):
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
		case key.Matches(msg, m.keys.Up):
			if m.cursor[m.activePanel] > 0 {
				m.cursor[m.activePanel]--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor[m.activePanel] < len(m.panels[m.activePanel])-1 {
				m.cursor[m.activePanel]++
			}
		case key.Matches(msg, m.keys.Refresh):
			m.loading = true
			return m, loadDashboardData
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(loadDashboardData, scheduleRefresh())

	case dataLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.panels = msg.panels
		m.metrics = msg.metrics
		m.alerts = msg.alerts
		m.loaded = msg.at
		for i := range m.cursor {
			if n := len(m.panels[i]); m.cursor[i] >= n {
				m.cursor[i] = max(n-1, 0)
			}
		}
		return m, nil
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	title := titleStyle.Render(" flow ")
	helpView := m.help.View(m.keys)

	if m.loading && m.loaded.IsZero() {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, helpView)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, helpView)
	}

	available := m.width - 2
	var body string
	if available >= 120 {
		colWidth := available/panelCount - 4
		cols := make([]string, panelCount)
		for i := range cols {
			cols[i] = m.renderPanel(i, colWidth)
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	} else {
		width := max(available-4, 20)
		rows := make([]string, panelCount)
		for i := range rows {
			rows[i] = m.renderPanel(i, width)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, rows...)
	}

	status := dimStyle.Render("updated " + m.loaded.Format("15:04:05"))
	return strings.Join([]string{
		title + "  " + m.renderSummary() + "  " + status,
		body,
		m.renderSelected(),
		m.renderAlerts(),
		helpView,
	}, "\n\n")
}

func (m dashboardModel) renderPanel(panel, width int) string {
	rows := m.panels[panel]
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", panelTitles[panel], len(rows))))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("  none"))
	}
	for i, row := range rows {
		line := fmt.Sprintf("P%d %s %s", row.task.Priority, row.task.ID, row.task.Title)
		if row.detail != "" {
			line += "  " + row.detail
		}
		if lipgloss.Width(line) > width && width > 3 {
			line = string([]rune(line)[:width-3]) + "..."
		}
		if panel == m.activePanel && i == m.cursor[panel] {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	style := panelStyle
	if panel == m.activePanel {
		style = activePanelStyle
	}
	return style.Width(width).Render(b.String())
}

func (m dashboardModel) renderSummary() string {
	if m.metrics == nil {
		return ""
	}
	return fmt.Sprintf("7d: %d created, %d closed, %d retried, %d runs, $%.2f",
		m.metrics.TasksCreated, m.metrics.TasksClosed, m.metrics.TasksRetried,
		m.metrics.RunsRecorded, m.metrics.TotalCostUSD)
}

func (m dashboardModel) renderSelected() string {
	rows := m.panels[m.activePanel]
	if len(rows) == 0 {
		return ""
	}
	t := rows[m.cursor[m.activePanel]].task
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", t.ID, t.Title)
	fmt.Fprintf(&b, "  %s  %s  P%d  %s", statusStyle(t.Status).Render(string(t.Status)), t.Type, t.Priority, t.EffectiveComplexity())
	if t.EpicID != "" {
		fmt.Fprintf(&b, "  epic %s", t.EpicID)
	}
	if len(t.BlockedBy) > 0 {
		fmt.Fprintf(&b, "\n  blocked by %s", strings.Join(t.BlockedBy, ", "))
	}
	return b.String()
}

func (m dashboardModel) renderAlerts() string {
	if len(m.alerts) == 0 {
		return dimStyle.Render("No active alerts.")
	}
	var b strings.Builder
	for _, a := range m.alerts {
		sev := styleForSeverity(a.Severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity))))
		fmt.Fprintf(&b, "%s %s\n", sev, a.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func styleForSeverity(severity observability.AlertSeverity) lipgloss.Style {
	switch severity {
	case observability.SeverityHigh:
		return severityHigh
	case observability.SeverityMedium:
		return severityMedium
	case observability.SeverityLow:
		return severityLow
	}
	return lipgloss.NewStyle()
}

func severityRank(s observability.AlertSeverity) int {
	switch s {
	case observability.SeverityHigh:
		return 0
	case observability.SeverityMedium:
		return 1
	case observability.SeverityLow:
		return 2
	}
	return 3
}

func loadDashboardData() tea.Msg {
	result := dataLoadedMsg{at: time.Now()}
	if TaskMgr == nil {
		result.err = fmt.Errorf("task manager not initialized")
		return result
	}

	tasks, err := TaskMgr.ListTasks(core.TaskFilter{})
	if err != nil {
		result.err = fmt.Errorf("loading tasks: %w", err)
		return result
	}
	r := core.ClassifyReadiness(tasks)
	for _, t := range r.Ready {
		result.panels[panelReady] = append(result.panels[panelReady], dashboardRow{task: t})
	}
	for _, t := range r.Blocked {
		result.panels[panelBlocked] = append(result.panels[panelBlocked], dashboardRow{
			task:   t,
			detail: dimStyle.Render("waits on " + strings.Join(r.OpenBlockers[t.ID], ",")),
		})
	}
	for _, t := range tasks {
		if t.Status == models.StatusInProgress {
			result.panels[panelInProgress] = append(result.panels[panelInProgress], dashboardRow{task: t})
		}
	}

	if StuckDt != nil {
		stuck, err := StuckDt.FindStuck()
		if err != nil {
			result.err = fmt.Errorf("loading stuck tasks: %w", err)
			return result
		}
		for _, s := range stuck {
			result.panels[panelStuck] = append(result.panels[panelStuck], dashboardRow{
				task:   s.Task,
				detail: warnStyle.Render(stuckDetail(s)),
			})
		}
	}

	if MetricsCalc != nil {
		result.metrics, err = MetricsCalc.Calculate(time.Now().UTC().AddDate(0, 0, -7))
		if err != nil {
			result.err = fmt.Errorf("loading metrics: %w", err)
			return result
		}
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		sort.SliceStable(alerts, func(i, j int) bool {
			return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
		})
		result.alerts = alerts
	}
	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live terminal view of ready, in-progress, blocked and stuck work",
	Long: `Launch a terminal dashboard with the ready, in-progress, blocked and stuck
queues, a seven-day activity summary and active alerts. Refreshes every few
seconds.

Move between panels with tab, select with the arrow keys, refresh with r, quit
with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskMgr == nil {
			return fmt.Errorf("task manager not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
