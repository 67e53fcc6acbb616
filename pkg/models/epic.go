package models

import "time"

// EpicStatus is derived from the statuses of an epic's linked tasks. It is
// never stored.
type EpicStatus string

const (
	EpicNotStarted    EpicStatus = "not_started"
	EpicInProgress    EpicStatus = "in_progress"
	EpicReviewPending EpicStatus = "review_pending"
)

// Epic is a named grouping of tasks.
type Epic struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
}

// BacklogItem is an unscheduled idea. It carries none of the task-specific
// fields; promotion turns it into a Task.
type BacklogItem struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
}

// Kind identifies which family of entity an ID belongs to.
type Kind string

const (
	KindTask    Kind = "task"
	KindEpic    Kind = "epic"
	KindBacklog Kind = "backlog"
)

// Prefix returns the ID prefix for the kind ("f", "e" or "b").
func (k Kind) Prefix() string {
	switch k {
	case KindTask:
		return "f"
	case KindEpic:
		return "e"
	case KindBacklog:
		return "b"
	default:
		return ""
	}
}
