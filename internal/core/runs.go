package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/flow/pkg/models"
)

// RunOpts describes one execution attempt to record.
type RunOpts struct {
	Agent     string
	Model     string
	StartedAt time.Time
	EndedAt   *time.Time
	ExitCode  *int
	Output    string
	CostUSD   float64
	SessionID string
}

// RunSummary aggregates a task's run history.
type RunSummary struct {
	TaskID       string       `json:"task_id"`
	Runs         []models.Run `json:"runs"`
	TotalCostUSD float64      `json:"total_cost_usd"`
}

// RunRecorder appends and reads run history for tasks.
type RunRecorder interface {
	RecordRun(taskRef string, opts RunOpts) (*models.Run, error)
	ListRuns(taskRef string) (*RunSummary, error)
}

type runRecorder struct {
	runs     RunStore
	resolver IDResolver
	events   EventLogger
}

// NewRunRecorder creates a RunRecorder. events may be nil.
func NewRunRecorder(runs RunStore, resolver IDResolver, events EventLogger) RunRecorder {
	return &runRecorder{runs: runs, resolver: resolver, events: events}
}

func (r *runRecorder) RecordRun(taskRef string, opts RunOpts) (*models.Run, error) {
	taskID, err := r.resolver.Resolve(models.KindTask, taskRef)
	if err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	if opts.CostUSD < 0 {
		return nil, fmt.Errorf("recording run for %s: %w", taskID, &ValidationError{Field: "cost", Value: opts.CostUSD, Reason: "must not be negative"})
	}
	started := opts.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	if opts.EndedAt != nil && opts.EndedAt.Before(started) {
		return nil, fmt.Errorf("recording run for %s: %w", taskID, &ValidationError{Field: "ended_at", Value: opts.EndedAt.Format(time.RFC3339), Reason: "is before started_at"})
	}

	run := models.Run{
		RunID:     uuid.NewString(),
		TaskID:    taskID,
		Agent:     strings.TrimSpace(opts.Agent),
		Model:     strings.TrimSpace(opts.Model),
		StartedAt: started,
		EndedAt:   opts.EndedAt,
		ExitCode:  opts.ExitCode,
		Output:    opts.Output,
		CostUSD:   opts.CostUSD,
		SessionID: opts.SessionID,
	}
	if err := r.runs.AppendRun(run); err != nil {
		return nil, fmt.Errorf("recording run for %s: %w", taskID, err)
	}

	data := map[string]any{
		"task_id":  taskID,
		"run_id":   run.RunID,
		"agent":    run.Agent,
		"cost_usd": run.CostUSD,
	}
	if run.ExitCode != nil {
		data["exit_code"] = *run.ExitCode
	}
	logEvent(r.events, "run.recorded", data)
	return &run, nil
}

// ListRuns returns the task's runs oldest first. The task need not still
// exist when given by full ID; history outlives deletion.
func (r *runRecorder) ListRuns(taskRef string) (*RunSummary, error) {
	taskID, err := r.resolver.Resolve(models.KindTask, taskRef)
	if err != nil {
		if !errors.Is(err, ErrNotFound) || !strings.HasPrefix(taskRef, models.KindTask.Prefix()+"-") {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		taskID = taskRef
	}
	runs, err := r.runs.ListRuns(taskID)
	if err != nil {
		return nil, fmt.Errorf("listing runs for %s: %w", taskID, err)
	}
	summary := &RunSummary{TaskID: taskID, Runs: runs}
	for _, run := range runs {
		summary.TotalCostUSD += run.CostUSD
	}
	return summary, nil
}
