package core

import (
	"fmt"

	"github.com/valter-silva-au/flow/pkg/models"
)

// StuckReason says why a task is considered stuck.
type StuckReason string

const (
	// StuckExitCode means the consuming process exited non-zero.
	StuckExitCode StuckReason = "exit_code"
	// StuckDeadProcess means the recorded PID is no longer running.
	StuckDeadProcess StuckReason = "dead_process"
)

// StuckTask is an in-progress task that will not finish on its own.
type StuckTask struct {
	Task   models.Task `json:"task"`
	Reason StuckReason `json:"reason"`
}

// RetryCandidate is a consumed in-progress task that RetryTasks would accept.
// CleanExitUnclosed flags a process that exited 0 but never closed its task.
type RetryCandidate struct {
	Task              models.Task `json:"task"`
	CleanExitUnclosed bool        `json:"clean_exit_unclosed,omitempty"`
}

// StuckDetector finds agent work that needs a human.
type StuckDetector interface {
	FindStuck() ([]StuckTask, error)
	FindRetryable() ([]RetryCandidate, error)
}

type stuckDetector struct {
	store TaskStore
	procs ProcessChecker
}

// NewStuckDetector creates a StuckDetector. procs may be nil, in which case
// PID liveness is not checked.
func NewStuckDetector(store TaskStore, procs ProcessChecker) StuckDetector {
	return &stuckDetector{store: store, procs: procs}
}

func (d *stuckDetector) FindStuck() ([]StuckTask, error) {
	tasks, err := d.store.LoadTasks()
	if err != nil {
		return nil, fmt.Errorf("finding stuck tasks: %w", err)
	}
	return ClassifyStuck(tasks, d.procs), nil
}

func (d *stuckDetector) FindRetryable() ([]RetryCandidate, error) {
	tasks, err := d.store.LoadTasks()
	if err != nil {
		return nil, fmt.Errorf("finding retryable tasks: %w", err)
	}
	var out []RetryCandidate
	sortTasks(tasks)
	for _, t := range tasks {
		if t.Status != models.StatusInProgress || !t.Consumed {
			continue
		}
		c := RetryCandidate{Task: t}
		if t.ConsumedExitCode != nil && *t.ConsumedExitCode == 0 {
			c.CleanExitUnclosed = true
		}
		out = append(out, c)
	}
	return out, nil
}

// ClassifyStuck returns the in-progress tasks that are stuck, in readiness
// order. A non-zero exit code takes precedence over a dead PID.
func ClassifyStuck(tasks []models.Task, procs ProcessChecker) []StuckTask {
	sorted := append([]models.Task(nil), tasks...)
	sortTasks(sorted)

	var out []StuckTask
	for _, t := range sorted {
		if t.Status != models.StatusInProgress {
			continue
		}
		if t.Consumed && t.ConsumedExitCode != nil && *t.ConsumedExitCode != 0 {
			out = append(out, StuckTask{Task: t, Reason: StuckExitCode})
			continue
		}
		if t.ConsumePID > 0 && procs != nil && !procs.IsProcessAlive(t.ConsumePID) {
			out = append(out, StuckTask{Task: t, Reason: StuckDeadProcess})
		}
	}
	return out
}
