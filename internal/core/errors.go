package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valter-silva-au/flow/pkg/models"
)

// Error kinds returned by core operations. Callers match them with errors.Is;
// the typed errors below carry the details.
var (
	ErrNotFound          = errors.New("not found")
	ErrAmbiguousID       = errors.New("ambiguous identifier")
	ErrCycle             = errors.New("dependency cycle")
	ErrNoSuchEdge        = errors.New("no dependency exists")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
)

// NotFoundError reports that no entity of Kind matched Input.
type NotFoundError struct {
	Kind  models.Kind
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Input)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousIDError reports that a partial identifier matched several entities.
// Matches is sorted by ID.
type AmbiguousIDError struct {
	Kind    models.Kind
	Input   string
	Matches []string
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("%s id %q is ambiguous, matches: %s", e.Kind, e.Input, strings.Join(e.Matches, ", "))
}

func (e *AmbiguousIDError) Is(target error) bool { return target == ErrAmbiguousID }

// CycleError reports that making Blocked depend on Blocker would close a
// cycle. Path is the existing chain from Blocker back to Blocked.
type CycleError struct {
	Blocked string
	Blocker string
	Path    []string
}

func (e *CycleError) Error() string {
	if e.Blocked == e.Blocker {
		return fmt.Sprintf("task %s cannot depend on itself", e.Blocked)
	}
	msg := fmt.Sprintf("adding %s as a blocker of %s would create a cycle", e.Blocker, e.Blocked)
	if len(e.Path) > 0 {
		msg += " (" + strings.Join(e.Path, " -> ") + ")"
	}
	return msg
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// NoSuchEdgeError reports a dependency removal for an edge that does not exist.
type NoSuchEdgeError struct {
	Blocked string
	Blocker string
}

func (e *NoSuchEdgeError) Error() string {
	return fmt.Sprintf("no dependency exists: %s is not blocked by %s", e.Blocked, e.Blocker)
}

func (e *NoSuchEdgeError) Is(target error) bool { return target == ErrNoSuchEdge }

// TransitionError reports a state-machine operation requested from a status
// that does not permit it.
type TransitionError struct {
	TaskID string
	Op     string
	Status models.TaskStatus
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s task %s: %s", e.Op, e.TaskID, e.Reason)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ValidationError reports a malformed field value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// BatchFailure records the error for a single input of a batch operation.
type BatchFailure struct {
	Input string
	Err   error
}

// BatchResult collects per-item outcomes of a batch operation. Every input is
// processed independently; one failure never aborts the rest.
type BatchResult struct {
	Succeeded []models.Task
	Failed    []BatchFailure
}

// OK reports whether every item succeeded.
func (r *BatchResult) OK() bool {
	return len(r.Failed) == 0
}

// Err joins all per-item failures, or returns nil when none failed.
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = fmt.Errorf("%s: %w", f.Input, f.Err)
	}
	return errors.Join(errs...)
}

func (r *BatchResult) fail(input string, err error) {
	r.Failed = append(r.Failed, BatchFailure{Input: input, Err: err})
}
