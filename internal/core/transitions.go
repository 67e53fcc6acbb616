package core

import (
	"time"

	"github.com/valter-silva-au/flow/pkg/models"
)

// The apply* functions implement the task state machine on a single record.
// They mutate t in place and leave it untouched when they return an error.
// Callers own persistence and the UpdatedAt stamp.

func applyStart(t *models.Task) error {
	if t.Status != models.StatusOpen {
		return &TransitionError{TaskID: t.ID, Op: "start", Status: t.Status, Reason: "is " + string(t.Status) + ", not open"}
	}
	t.Status = models.StatusInProgress
	return nil
}

func applyDone(t *models.Task, reason, commitHash string) error {
	if t.Status == models.StatusClosed {
		return &TransitionError{TaskID: t.ID, Op: "close", Status: t.Status, Reason: "is already closed"}
	}
	t.Status = models.StatusClosed
	if reason != "" {
		t.Reason = reason
	}
	if commitHash != "" {
		t.CommitHash = commitHash
	}
	return nil
}

func applyReopen(t *models.Task) error {
	switch t.Status {
	case models.StatusClosed, models.StatusInProgress, models.StatusReview:
	default:
		return &TransitionError{TaskID: t.ID, Op: "reopen", Status: t.Status, Reason: "is not closed, in_progress, or review"}
	}
	t.Status = models.StatusOpen
	t.Reason = ""
	t.CommitHash = ""
	t.ClearConsumption()
	return nil
}

func applyRetry(t *models.Task) error {
	if t.Status != models.StatusInProgress || !t.Consumed {
		return &TransitionError{TaskID: t.ID, Op: "retry", Status: t.Status, Reason: "is not a consumed in_progress task"}
	}
	t.Status = models.StatusOpen
	t.ClearConsumption()
	return nil
}

// applyStatusUpdate is the explicit field set used by update. Closing must go
// through done so reason and commit evidence are recorded.
func applyStatusUpdate(t *models.Task, status models.TaskStatus) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	if status == t.Status {
		return nil
	}
	if status == models.StatusClosed {
		return &TransitionError{TaskID: t.ID, Op: "update", Status: t.Status, Reason: "use done to close a task"}
	}
	// Back to open, or out of closed, drops close evidence and the previous
	// agent's consumption like reopen does.
	if status == models.StatusOpen || t.Status == models.StatusClosed {
		t.Reason = ""
		t.CommitHash = ""
		t.ClearConsumption()
	}
	t.Status = status
	return nil
}

func applyConsume(t *models.Task, pid int, at time.Time) error {
	switch t.Status {
	case models.StatusOpen, models.StatusInProgress:
	default:
		return &TransitionError{TaskID: t.ID, Op: "consume", Status: t.Status, Reason: "is not open or in_progress"}
	}
	if pid < 0 {
		return &ValidationError{Field: "pid", Value: pid, Reason: "must not be negative"}
	}
	t.Status = models.StatusInProgress
	t.Consumed = true
	t.ConsumedAt = &at
	t.ConsumePID = pid
	t.ConsumedExitCode = nil
	t.ConsumedOutput = ""
	return nil
}

func applyExit(t *models.Task, exitCode int, output string) error {
	if !t.Consumed {
		return &TransitionError{TaskID: t.ID, Op: "record exit for", Status: t.Status, Reason: "has not been consumed"}
	}
	code := exitCode
	t.ConsumedExitCode = &code
	t.ConsumedOutput = output
	return nil
}
