package models

import "time"

// Run is an immutable record of one execution attempt against a task.
// Runs are appended and read, never updated.
type Run struct {
	RunID     string     `yaml:"run_id" json:"run_id"`
	TaskID    string     `yaml:"task_id" json:"task_id"`
	Agent     string     `yaml:"agent,omitempty" json:"agent,omitempty"`
	Model     string     `yaml:"model,omitempty" json:"model,omitempty"`
	StartedAt time.Time  `yaml:"started_at" json:"started_at"`
	EndedAt   *time.Time `yaml:"ended_at,omitempty" json:"ended_at,omitempty"`
	ExitCode  *int       `yaml:"exit_code,omitempty" json:"exit_code,omitempty"`
	Output    string     `yaml:"output,omitempty" json:"output,omitempty"`
	CostUSD   float64    `yaml:"cost_usd,omitempty" json:"cost_usd,omitempty"`
	SessionID string     `yaml:"session_id,omitempty" json:"session_id,omitempty"`
}

// Duration returns the elapsed time of a finished run, or zero while it is
// still running.
func (r *Run) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
