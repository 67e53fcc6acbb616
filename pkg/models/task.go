package models

import "time"

// TaskType represents the kind of work a task involves.
type TaskType string

const (
	TaskTypeTask     TaskType = "task"
	TaskTypeBug      TaskType = "bug"
	TaskTypeFeature  TaskType = "feature"
	TaskTypeChore    TaskType = "chore"
	TaskTypeRefactor TaskType = "refactor"
	TaskTypeDocs     TaskType = "docs"
	TaskTypeTest     TaskType = "test"
)

// TaskTypes lists every valid TaskType in display order.
var TaskTypes = []TaskType{
	TaskTypeTask, TaskTypeBug, TaskTypeFeature, TaskTypeChore,
	TaskTypeRefactor, TaskTypeDocs, TaskTypeTest,
}

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusClosed     TaskStatus = "closed"
)

// TaskStatuses lists every valid TaskStatus in lifecycle order.
var TaskStatuses = []TaskStatus{StatusOpen, StatusInProgress, StatusReview, StatusClosed}

// Size is a coarse effort estimate.
type Size string

const (
	SizeXS Size = "xs"
	SizeS  Size = "s"
	SizeM  Size = "m"
	SizeL  Size = "l"
	SizeXL Size = "xl"
)

// Sizes lists every valid Size from smallest to largest.
var Sizes = []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL}

// Complexity describes how much reasoning a task needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Complexities lists every valid Complexity.
var Complexities = []Complexity{ComplexitySimple, ComplexityModerate, ComplexityComplex}

// Priority bounds. 0 is the most urgent.
const (
	MinPriority = 0
	MaxPriority = 4
)

// Task represents a unit of work identified by an f-<hash> ID.
type Task struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Type        TaskType   `yaml:"type" json:"type"`
	Priority    int        `yaml:"priority" json:"priority"`
	Labels      []string   `yaml:"labels,omitempty" json:"labels,omitempty"`
	Size        Size       `yaml:"size,omitempty" json:"size,omitempty"`
	Complexity  Complexity `yaml:"complexity,omitempty" json:"complexity,omitempty"`
	Status      TaskStatus `yaml:"status" json:"status"`
	BlockedBy   []string   `yaml:"blocked_by,omitempty" json:"blocked_by,omitempty"`
	EpicID      string     `yaml:"epic_id,omitempty" json:"epic_id,omitempty"`
	Reason      string     `yaml:"reason,omitempty" json:"reason,omitempty"`
	CommitHash  string     `yaml:"commit_hash,omitempty" json:"commit_hash,omitempty"`

	// Consumption metadata describes the last agent process that picked up
	// the task. The fields are always cleared together.
	Consumed         bool       `yaml:"consumed,omitempty" json:"consumed,omitempty"`
	ConsumedAt       *time.Time `yaml:"consumed_at,omitempty" json:"consumed_at,omitempty"`
	ConsumedExitCode *int       `yaml:"consumed_exit_code,omitempty" json:"consumed_exit_code,omitempty"`
	ConsumedOutput   string     `yaml:"consumed_output,omitempty" json:"consumed_output,omitempty"`
	ConsumePID       int        `yaml:"consume_pid,omitempty" json:"consume_pid,omitempty"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// EffectiveComplexity returns the task complexity, treating an unset value as simple.
func (t *Task) EffectiveComplexity() Complexity {
	if t.Complexity == "" {
		return ComplexitySimple
	}
	return t.Complexity
}

// ClearConsumption resets every consumption field.
func (t *Task) ClearConsumption() {
	t.Consumed = false
	t.ConsumedAt = nil
	t.ConsumedExitCode = nil
	t.ConsumedOutput = ""
	t.ConsumePID = 0
}

// HasBlocker reports whether id is listed in BlockedBy.
func (t *Task) HasBlocker(id string) bool {
	for _, b := range t.BlockedBy {
		if b == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing slices.
func (t Task) Clone() Task {
	c := t
	if t.Labels != nil {
		c.Labels = append([]string(nil), t.Labels...)
	}
	if t.BlockedBy != nil {
		c.BlockedBy = append([]string(nil), t.BlockedBy...)
	}
	if t.ConsumedAt != nil {
		at := *t.ConsumedAt
		c.ConsumedAt = &at
	}
	if t.ConsumedExitCode != nil {
		code := *t.ConsumedExitCode
		c.ConsumedExitCode = &code
	}
	return c
}
