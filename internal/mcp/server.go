// Package mcp exposes flow's task engine as MCP (Model Context Protocol) tools
// so coding agents can pick up, work and close tasks without shelling out to
// the CLI.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/internal/observability"
	"github.com/valter-silva-au/flow/pkg/models"
)

// Services are the flow services the tools call. TaskMgr is required; the
// tools backed by a nil service report it as unavailable.
type Services struct {
	TaskMgr     core.TaskManager
	DepGraph    core.DependencyGraph
	EpicMgr     core.EpicManager
	RunRec      core.RunRecorder
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
}

// Server wraps flow services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	svc    Services
}

// NewServer creates an MCP server over svc.
func NewServer(svc Services, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{svc: svc}
	s.server = gomcp.NewServer(&gomcp.Implementation{Name: "flow", Version: version}, nil)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskOutput struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Priority    int      `json:"priority"`
	Labels      []string `json:"labels,omitempty"`
	Size        string   `json:"size,omitempty"`
	Complexity  string   `json:"complexity"`
	BlockedBy   []string `json:"blocked_by,omitempty"`
	EpicID      string   `json:"epic_id,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	CommitHash  string   `json:"commit_hash,omitempty"`
	Consumed    bool     `json:"consumed,omitempty"`
	ConsumePID  int      `json:"consume_pid,omitempty"`
	ExitCode    *int     `json:"exit_code,omitempty"`
	Created     string   `json:"created"`
	Updated     string   `json:"updated"`
}

type taskRefInput struct {
	TaskID string `json:"task_id" jsonschema:"task ID or any unique fragment of its hash"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"only tasks in this status (open, in_progress, review, closed)"`
	EpicID string `json:"epic_id,omitempty" jsonschema:"only tasks linked to this epic"`
	Label  string `json:"label,omitempty" jsonschema:"only tasks carrying this label"`
}

type tasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type createTaskInput struct {
	Title       string   `json:"title" jsonschema:"short summary of the work"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty" jsonschema:"task, bug, feature, chore, refactor, docs or test"`
	Priority    *int     `json:"priority,omitempty" jsonschema:"0 (most urgent) to 4"`
	Labels      []string `json:"labels,omitempty"`
	Size        string   `json:"size,omitempty" jsonschema:"xs, s, m, l or xl"`
	Complexity  string   `json:"complexity,omitempty" jsonschema:"simple, moderate or complex"`
	BlockedBy   []string `json:"blocked_by,omitempty" jsonschema:"IDs of tasks that must close first"`
	EpicID      string   `json:"epic_id,omitempty"`
}

type closeTaskInput struct {
	TaskID     string `json:"task_id" jsonschema:"task ID or any unique fragment of its hash"`
	Reason     string `json:"reason,omitempty" jsonschema:"why the task was closed"`
	CommitHash string `json:"commit_hash,omitempty" jsonschema:"commit that resolved the task"`
}

type readyTasksInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"return at most this many tasks"`
}

type dependencyInput struct {
	TaskID    string `json:"task_id" jsonschema:"the task that must wait"`
	BlockerID string `json:"blocker_id" jsonschema:"the task it waits for"`
}

type consumeTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"task ID or any unique fragment of its hash"`
	PID    int    `json:"pid,omitempty" jsonschema:"process ID of the consuming agent"`
}

type recordExitInput struct {
	TaskID   string `json:"task_id" jsonschema:"task ID or any unique fragment of its hash"`
	ExitCode int    `json:"exit_code" jsonschema:"agent process exit code"`
	Output   string `json:"output,omitempty" jsonschema:"captured agent output"`
}

type recordRunInput struct {
	TaskID    string  `json:"task_id" jsonschema:"task ID or any unique fragment of its hash"`
	Agent     string  `json:"agent,omitempty"`
	Model     string  `json:"model,omitempty"`
	StartedAt string  `json:"started_at,omitempty" jsonschema:"RFC 3339 start time, now when omitted"`
	EndedAt   string  `json:"ended_at,omitempty" jsonschema:"RFC 3339 end time"`
	ExitCode  *int    `json:"exit_code,omitempty"`
	Output    string  `json:"output,omitempty"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

type runOutput struct {
	RunID     string `json:"run_id"`
	TaskID    string `json:"task_id"`
	StartedAt string `json:"started_at"`
}

type listEpicsInput struct{}

type epicOutput struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Total  int    `json:"total"`
	Closed int    `json:"closed"`
}

type epicsOutput struct {
	Epics []epicOutput `json:"epics"`
	Count int          `json:"count"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window such as 7d, 30d or 24h; defaults to 7d"`
}

type metricsOutput struct {
	TasksCreated    int            `json:"tasks_created"`
	TasksClosed     int            `json:"tasks_closed"`
	TasksReopened   int            `json:"tasks_reopened"`
	TasksRetried    int            `json:"tasks_retried"`
	TasksDeleted    int            `json:"tasks_deleted"`
	TasksByStatus   map[string]int `json:"tasks_by_status"`
	TasksByType     map[string]int `json:"tasks_by_type"`
	BacklogPromoted int            `json:"backlog_promoted"`
	BacklogDeferred int            `json:"backlog_deferred"`
	RunsRecorded    int            `json:"runs_recorded"`
	FailedExits     int            `json:"failed_exits"`
	TotalCostUSD    float64        `json:"total_cost_usd"`
	EventCount      int            `json:"event_count"`
	OldestEvent     string         `json:"oldest_event,omitempty"`
	NewestEvent     string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TaskID      string `json:"task_id,omitempty"`
	Value       int    `json:"value,omitempty"`
	TriggeredAt string `json:"triggered_at"`
}

type alertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks, optionally filtered by status, epic or label. Closed tasks are included only when status is closed.",
	}, s.handleListTasks)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a task by ID or unique ID fragment.",
	}, s.handleGetTask)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create an open task. Unset fields take the configured defaults.",
	}, s.handleCreateTask)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "ready_tasks",
		Description: "List open tasks whose blockers are all closed, most urgent first. This is the queue to pick work from.",
	}, s.handleReadyTasks)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "start_task",
		Description: "Move an open task to in_progress.",
	}, s.handleStartTask)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "close_task",
		Description: "Close a task that is not already closed, recording an optional reason and commit hash.",
	}, s.handleCloseTask)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "reopen_task",
		Description: "Return a closed, in_progress or review task to open, clearing consumption state and close evidence.",
	}, s.handleReopenTask)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_dependency",
		Description: "Make task_id wait for blocker_id. Rejected when it would create a cycle.",
	}, s.handleAddDependency)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "consume_task",
		Description: "Claim an open or in_progress task for an agent process, moving it to in_progress.",
	}, s.handleConsumeTask)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "record_exit",
		Description: "Record the exit code and output of the agent that consumed a task.",
	}, s.handleRecordExit)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "retry_task",
		Description: "Return a consumed in_progress task to open so another agent can pick it up.",
	}, s.handleRetryTask)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "record_run",
		Description: "Append an execution attempt (agent, model, timing, exit code, cost) to a task's run history.",
	}, s.handleRecordRun)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_epics",
		Description: "List epics with their derived status and progress.",
	}, s.handleListEpics)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get task throughput and agent run metrics from the event log.",
	}, s.handleGetMetrics)
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (stale work, long reviews, retry loops, ready queue size).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, tasksOutput, error) {
	filter := core.TaskFilter{EpicID: input.EpicID}
	if input.Status != "" {
		filter.Statuses = []models.TaskStatus{models.TaskStatus(input.Status)}
	} else {
		filter.Statuses = []models.TaskStatus{models.StatusOpen, models.StatusInProgress, models.StatusReview}
	}
	if input.Label != "" {
		filter.Labels = []string{input.Label}
	}
	tasks, err := s.svc.TaskMgr.ListTasks(filter)
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), tasksToOutput(nil), nil
	}
	return nil, tasksToOutput(tasks), nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input taskRefInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	task, err := s.svc.TaskMgr.GetTask(input.TaskID)
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	return nil, taskToOutput(*task), nil
}

func (s *Server) handleCreateTask(_ context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	task, err := s.svc.TaskMgr.CreateTask(core.CreateTaskOpts{
		Title:       input.Title,
		Description: input.Description,
		Type:        models.TaskType(input.Type),
		Priority:    input.Priority,
		Labels:      input.Labels,
		Size:        models.Size(input.Size),
		Complexity:  models.Complexity(input.Complexity),
		BlockedBy:   input.BlockedBy,
		EpicRef:     input.EpicID,
	})
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	return nil, taskToOutput(*task), nil
}

func (s *Server) handleReadyTasks(_ context.Context, _ *gomcp.CallToolRequest, input readyTasksInput) (*gomcp.CallToolResult, tasksOutput, error) {
	r, err := s.svc.TaskMgr.Readiness()
	if err != nil {
		return errorResult(fmt.Sprintf("computing ready tasks: %s", err)), tasksToOutput(nil), nil
	}
	tasks := r.Ready
	if input.Limit > 0 && len(tasks) > input.Limit {
		tasks = tasks[:input.Limit]
	}
	return nil, tasksToOutput(tasks), nil
}

func (s *Server) handleStartTask(_ context.Context, _ *gomcp.CallToolRequest, input taskRefInput) (*gomcp.CallToolResult, taskOutput, error) {
	return taskResult(s.svc.TaskMgr.StartTask(input.TaskID))
}

func (s *Server) handleCloseTask(_ context.Context, _ *gomcp.CallToolRequest, input closeTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	return batchResult(s.svc.TaskMgr.DoneTasks([]string{input.TaskID}, core.DoneOpts{Reason: input.Reason, CommitHash: input.CommitHash}))
}

func (s *Server) handleReopenTask(_ context.Context, _ *gomcp.CallToolRequest, input taskRefInput) (*gomcp.CallToolResult, taskOutput, error) {
	return batchResult(s.svc.TaskMgr.ReopenTasks([]string{input.TaskID}))
}

func (s *Server) handleRetryTask(_ context.Context, _ *gomcp.CallToolRequest, input taskRefInput) (*gomcp.CallToolResult, taskOutput, error) {
	return batchResult(s.svc.TaskMgr.RetryTasks([]string{input.TaskID}))
}

func (s *Server) handleAddDependency(_ context.Context, _ *gomcp.CallToolRequest, input dependencyInput) (*gomcp.CallToolResult, taskOutput, error) {
	if s.svc.DepGraph == nil {
		return errorResult("dependency graph not available"), taskOutput{}, nil
	}
	return taskResult(s.svc.DepGraph.AddDependency(input.TaskID, input.BlockerID))
}

func (s *Server) handleConsumeTask(_ context.Context, _ *gomcp.CallToolRequest, input consumeTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	return taskResult(s.svc.TaskMgr.MarkConsumed(input.TaskID, input.PID))
}

func (s *Server) handleRecordExit(_ context.Context, _ *gomcp.CallToolRequest, input recordExitInput) (*gomcp.CallToolResult, taskOutput, error) {
	return taskResult(s.svc.TaskMgr.RecordExit(input.TaskID, input.ExitCode, input.Output))
}

func (s *Server) handleRecordRun(_ context.Context, _ *gomcp.CallToolRequest, input recordRunInput) (*gomcp.CallToolResult, runOutput, error) {
	if s.svc.RunRec == nil {
		return errorResult("run recorder not available"), runOutput{}, nil
	}
	opts := core.RunOpts{
		Agent:     input.Agent,
		Model:     input.Model,
		ExitCode:  input.ExitCode,
		Output:    input.Output,
		CostUSD:   input.CostUSD,
		SessionID: input.SessionID,
	}
	var err error
	if input.StartedAt != "" {
		if opts.StartedAt, err = time.Parse(time.RFC3339, input.StartedAt); err != nil {
			return errorResult(fmt.Sprintf("parsing started_at: %s", err)), runOutput{}, nil
		}
	}
	if input.EndedAt != "" {
		ended, err := time.Parse(time.RFC3339, input.EndedAt)
		if err != nil {
			return errorResult(fmt.Sprintf("parsing ended_at: %s", err)), runOutput{}, nil
		}
		opts.EndedAt = &ended
	}
	run, err := s.svc.RunRec.RecordRun(input.TaskID, opts)
	if err != nil {
		return errorResult(err.Error()), runOutput{}, nil
	}
	return nil, runOutput{RunID: run.RunID, TaskID: run.TaskID, StartedAt: run.StartedAt.Format(time.RFC3339)}, nil
}

func (s *Server) handleListEpics(_ context.Context, _ *gomcp.CallToolRequest, _ listEpicsInput) (*gomcp.CallToolResult, epicsOutput, error) {
	if s.svc.EpicMgr == nil {
		return errorResult("epic manager not available"), epicsOutput{Epics: []epicOutput{}}, nil
	}
	views, err := s.svc.EpicMgr.ListEpics()
	if err != nil {
		return errorResult(fmt.Sprintf("listing epics: %s", err)), epicsOutput{Epics: []epicOutput{}}, nil
	}
	out := epicsOutput{Epics: make([]epicOutput, len(views)), Count: len(views)}
	for i, v := range views {
		out.Epics[i] = epicOutput{
			ID:     v.Epic.ID,
			Title:  v.Epic.Title,
			Status: string(v.Status),
			Total:  v.Total,
			Closed: v.Closed,
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.svc.MetricsCalc == nil {
		return errorResult("metrics calculator not available"), emptyMetricsOutput(), nil
	}
	since := input.Since
	if since == "" {
		since = "7d"
	}
	sinceTime, err := parseSince(since)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}
	m, err := s.svc.MetricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}
	out := metricsOutput{
		TasksCreated:    m.TasksCreated,
		TasksClosed:     m.TasksClosed,
		TasksReopened:   m.TasksReopened,
		TasksRetried:    m.TasksRetried,
		TasksDeleted:    m.TasksDeleted,
		TasksByStatus:   m.TasksByStatus,
		TasksByType:     m.TasksByType,
		BacklogPromoted: m.BacklogPromoted,
		BacklogDeferred: m.BacklogDeferred,
		RunsRecorded:    m.RunsRecorded,
		FailedExits:     m.FailedExits,
		TotalCostUSD:    m.TotalCostUSD,
		EventCount:      m.EventCount,
	}
	if m.OldestEvent != nil {
		out.OldestEvent = m.OldestEvent.Format(time.RFC3339)
	}
	if m.NewestEvent != nil {
		out.NewestEvent = m.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, alertsOutput, error) {
	if s.svc.AlertEngine == nil {
		return errorResult("alert engine not available"), alertsOutput{Alerts: []alertOutput{}}, nil
	}
	alerts, err := s.svc.AlertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), alertsOutput{Alerts: []alertOutput{}}, nil
	}
	out := alertsOutput{Alerts: make([]alertOutput, len(alerts)), Count: len(alerts)}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TaskID:      a.TaskID,
			Value:       a.Value,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

// taskResult turns a single-task service call into a tool result. Service
// errors become tool errors the agent can read and act on.
func taskResult(task *models.Task, err error) (*gomcp.CallToolResult, taskOutput, error) {
	if err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	return nil, taskToOutput(*task), nil
}

func batchResult(result core.BatchResult) (*gomcp.CallToolResult, taskOutput, error) {
	if err := result.Err(); err != nil {
		return errorResult(err.Error()), taskOutput{}, nil
	}
	if len(result.Succeeded) == 0 {
		return errorResult("no task was changed"), taskOutput{}, nil
	}
	return nil, taskToOutput(result.Succeeded[0]), nil
}

func taskToOutput(t models.Task) taskOutput {
	return taskOutput{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Priority:    t.Priority,
		Labels:      t.Labels,
		Size:        string(t.Size),
		Complexity:  string(t.EffectiveComplexity()),
		BlockedBy:   t.BlockedBy,
		EpicID:      t.EpicID,
		Reason:      t.Reason,
		CommitHash:  t.CommitHash,
		Consumed:    t.Consumed,
		ConsumePID:  t.ConsumePID,
		ExitCode:    t.ConsumedExitCode,
		Created:     t.CreatedAt.Format(time.RFC3339),
		Updated:     t.UpdatedAt.Format(time.RFC3339),
	}
}

func tasksToOutput(tasks []models.Task) tasksOutput {
	out := tasksOutput{Tasks: make([]taskOutput, len(tasks)), Count: len(tasks)}
	for i, t := range tasks {
		out.Tasks[i] = taskToOutput(t)
	}
	return out
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{TasksByStatus: map[string]int{}, TasksByType: map[string]int{}}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a duration like "7d" or "24h" into the corresponding
// time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}
	var num int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	switch s[len(s)-1] {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", s[len(s)-1:])
}
