package core

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/flow/pkg/models"
)

// TaskDefaults are applied to new tasks when the caller leaves a field unset.
type TaskDefaults struct {
	Type       models.TaskType
	Priority   int
	Complexity models.Complexity
}

// CreateTaskOpts holds the inputs for CreateTask. Zero values fall back to
// TaskDefaults; Priority is a pointer so that 0 can be requested explicitly.
type CreateTaskOpts struct {
	Title       string
	Description string
	Type        models.TaskType
	Priority    *int
	Labels      []string
	Size        models.Size
	Complexity  models.Complexity
	BlockedBy   []string
	EpicRef     string
}

// TaskUpdate sets the non-nil fields on a task. Labels replaces the label set;
// AddLabels and RemoveLabels edit it. An EpicRef pointing at "" unlinks.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Type         *models.TaskType
	Priority     *int
	Size         *models.Size
	Complexity   *models.Complexity
	Status       *models.TaskStatus
	Labels       *[]string
	AddLabels    []string
	RemoveLabels []string
	EpicRef      *string
}

func (u TaskUpdate) empty() bool {
	return u.Title == nil && u.Description == nil && u.Type == nil && u.Priority == nil &&
		u.Size == nil && u.Complexity == nil && u.Status == nil && u.Labels == nil &&
		len(u.AddLabels) == 0 && len(u.RemoveLabels) == 0 && u.EpicRef == nil
}

// TaskFilter narrows ListTasks. Empty fields match everything; Labels must
// all be present on a task for it to match.
type TaskFilter struct {
	Statuses []models.TaskStatus
	Types    []models.TaskType
	Labels   []string
	EpicID   string
	Priority *int
}

func (f TaskFilter) matches(t models.Task) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, t.Type) {
		return false
	}
	if f.EpicID != "" && t.EpicID != f.EpicID {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	for _, l := range f.Labels {
		if !slices.Contains(t.Labels, l) {
			return false
		}
	}
	return true
}

// DoneOpts carries the optional close evidence.
type DoneOpts struct {
	Reason     string
	CommitHash string
}

// TaskDeleteResult reports a deletion and the tasks whose blocked_by lists
// were cleaned of the deleted ID.
type TaskDeleteResult struct {
	Task           models.Task `json:"task"`
	CleanedTaskIDs []string    `json:"cleaned_task_ids,omitempty"`
}

// TaskManager defines the interface for task lifecycle operations.
type TaskManager interface {
	CreateTask(opts CreateTaskOpts) (*models.Task, error)
	GetTask(ref string) (*models.Task, error)
	ListTasks(filter TaskFilter) ([]models.Task, error)
	UpdateTask(ref string, upd TaskUpdate) (*models.Task, error)
	StartTask(ref string) (*models.Task, error)
	DoneTasks(refs []string, opts DoneOpts) BatchResult
	ReopenTasks(refs []string) BatchResult
	RetryTasks(refs []string) BatchResult
	DeleteTask(ref string) (*TaskDeleteResult, error)
	DeleteTasks(refs []string) BatchResult
	MarkConsumed(ref string, pid int) (*models.Task, error)
	RecordExit(ref string, exitCode int, output string) (*models.Task, error)
	Readiness() (Readiness, error)
}

type taskManager struct {
	store    Store
	resolver IDResolver
	ids      IDGenerator
	events   EventLogger
	defaults TaskDefaults
	now      func() time.Time
}

// NewTaskManager creates a TaskManager. events may be nil.
func NewTaskManager(store Store, resolver IDResolver, ids IDGenerator, events EventLogger, defaults TaskDefaults) TaskManager {
	if defaults.Type == "" {
		defaults.Type = models.TaskTypeTask
	}
	if defaults.Complexity == "" {
		defaults.Complexity = models.ComplexitySimple
	}
	return &taskManager{
		store:    store,
		resolver: resolver,
		ids:      ids,
		events:   events,
		defaults: defaults,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (tm *taskManager) CreateTask(opts CreateTaskOpts) (*models.Task, error) {
	task := models.Task{
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		Type:        opts.Type,
		Priority:    tm.defaults.Priority,
		Labels:      normalizeLabels(opts.Labels),
		Size:        opts.Size,
		Complexity:  opts.Complexity,
		Status:      models.StatusOpen,
	}
	if task.Type == "" {
		task.Type = tm.defaults.Type
	}
	if opts.Priority != nil {
		task.Priority = *opts.Priority
	}
	if task.Complexity == "" {
		task.Complexity = tm.defaults.Complexity
	}
	if err := validateNewTask(task); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	err := tm.store.WithLock(func() error {
		for _, ref := range opts.BlockedBy {
			id, err := tm.resolver.Resolve(models.KindTask, ref)
			if err != nil {
				return err
			}
			if !slices.Contains(task.BlockedBy, id) {
				task.BlockedBy = append(task.BlockedBy, id)
			}
		}
		if opts.EpicRef != "" {
			id, err := tm.resolver.Resolve(models.KindEpic, opts.EpicRef)
			if err != nil {
				return err
			}
			task.EpicID = id
		}

		id, err := tm.ids.NewID(models.KindTask)
		if err != nil {
			return err
		}
		now := tm.now()
		task.ID = id
		task.CreatedAt = now
		task.UpdatedAt = now
		return tm.store.SaveTask(task)
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	logEvent(tm.events, "task.created", map[string]any{
		"task_id":  task.ID,
		"type":     string(task.Type),
		"priority": task.Priority,
		"epic_id":  task.EpicID,
	})
	return &task, nil
}

func (tm *taskManager) GetTask(ref string) (*models.Task, error) {
	id, err := tm.resolver.Resolve(models.KindTask, ref)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	task, err := tm.store.LoadTask(id)
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	if task == nil {
		return nil, fmt.Errorf("getting task: %w", &NotFoundError{Kind: models.KindTask, Input: ref})
	}
	return task, nil
}

// ListTasks returns the matching tasks ordered by priority, then age.
func (tm *taskManager) ListTasks(filter TaskFilter) ([]models.Task, error) {
	tasks, err := tm.store.LoadTasks()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	var out []models.Task
	for _, t := range tasks {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out, nil
}

func (tm *taskManager) UpdateTask(ref string, upd TaskUpdate) (*models.Task, error) {
	if upd.empty() {
		return nil, fmt.Errorf("updating task %s: %w", ref, &ValidationError{Field: "update", Value: "{}", Reason: "no fields to change"})
	}
	var changed []string
	task, old, err := tm.mutate(ref, func(t *models.Task) error {
		var err error
		changed, err = tm.applyUpdate(t, upd)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("updating task: %w", err)
	}
	logEvent(tm.events, "task.updated", map[string]any{"task_id": task.ID, "fields": changed})
	tm.logStatusChange(old, *task)
	return task, nil
}

func (tm *taskManager) applyUpdate(t *models.Task, upd TaskUpdate) ([]string, error) {
	var changed []string
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		t.Title = title
		changed = append(changed, "title")
	}
	if upd.Description != nil {
		t.Description = *upd.Description
		changed = append(changed, "description")
	}
	if upd.Type != nil {
		if err := validateTaskType(*upd.Type); err != nil {
			return nil, err
		}
		t.Type = *upd.Type
		changed = append(changed, "type")
	}
	if upd.Priority != nil {
		if err := validatePriority(*upd.Priority); err != nil {
			return nil, err
		}
		t.Priority = *upd.Priority
		changed = append(changed, "priority")
	}
	if upd.Size != nil {
		if err := validateSize(*upd.Size); err != nil {
			return nil, err
		}
		t.Size = *upd.Size
		changed = append(changed, "size")
	}
	if upd.Complexity != nil {
		if err := validateComplexity(*upd.Complexity); err != nil {
			return nil, err
		}
		t.Complexity = *upd.Complexity
		if t.Complexity == "" {
			t.Complexity = models.ComplexitySimple
		}
		changed = append(changed, "complexity")
	}
	if upd.Labels != nil || len(upd.AddLabels) > 0 || len(upd.RemoveLabels) > 0 {
		labels := t.Labels
		if upd.Labels != nil {
			labels = *upd.Labels
		}
		labels = normalizeLabels(append(append([]string(nil), labels...), upd.AddLabels...))
		for _, l := range upd.RemoveLabels {
			labels = removeString(labels, strings.TrimSpace(l))
		}
		t.Labels = labels
		changed = append(changed, "labels")
	}
	if upd.EpicRef != nil {
		t.EpicID = ""
		if *upd.EpicRef != "" {
			id, err := tm.resolver.Resolve(models.KindEpic, *upd.EpicRef)
			if err != nil {
				return nil, err
			}
			t.EpicID = id
		}
		changed = append(changed, "epic_id")
	}
	if upd.Status != nil {
		if err := applyStatusUpdate(t, *upd.Status); err != nil {
			return nil, err
		}
		changed = append(changed, "status")
	}
	return changed, nil
}

func (tm *taskManager) StartTask(ref string) (*models.Task, error) {
	task, old, err := tm.mutate(ref, applyStart)
	if err != nil {
		return nil, fmt.Errorf("starting task: %w", err)
	}
	tm.logStatusChange(old, *task)
	return task, nil
}

func (tm *taskManager) DoneTasks(refs []string, opts DoneOpts) BatchResult {
	return tm.batch(refs, func(t *models.Task) error {
		return applyDone(t, opts.Reason, opts.CommitHash)
	}, nil)
}

func (tm *taskManager) ReopenTasks(refs []string) BatchResult {
	return tm.batch(refs, applyReopen, nil)
}

func (tm *taskManager) RetryTasks(refs []string) BatchResult {
	return tm.batch(refs, applyRetry, func(t models.Task) {
		logEvent(tm.events, "task.retried", map[string]any{"task_id": t.ID})
	})
}

// DeleteTask removes the task and strips its ID from every other task's
// blocked_by list in the same locked section.
func (tm *taskManager) DeleteTask(ref string) (*TaskDeleteResult, error) {
	var result TaskDeleteResult
	err := tm.store.WithLock(func() error {
		id, err := tm.resolver.Resolve(models.KindTask, ref)
		if err != nil {
			return err
		}
		task, cleaned, err := removeTask(tm.store, id, tm.now())
		if err != nil {
			return err
		}
		if task == nil {
			return &NotFoundError{Kind: models.KindTask, Input: ref}
		}
		result.Task = *task
		result.CleanedTaskIDs = cleaned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deleting task: %w", err)
	}
	logEvent(tm.events, "task.deleted", map[string]any{
		"task_id":      result.Task.ID,
		"status":       string(result.Task.Status),
		"cleaned_from": result.CleanedTaskIDs,
	})
	return &result, nil
}

func (tm *taskManager) DeleteTasks(refs []string) BatchResult {
	var result BatchResult
	for _, ref := range refs {
		deleted, err := tm.DeleteTask(ref)
		if err != nil {
			result.fail(ref, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, deleted.Task)
	}
	return result
}

func (tm *taskManager) MarkConsumed(ref string, pid int) (*models.Task, error) {
	at := tm.now()
	task, old, err := tm.mutate(ref, func(t *models.Task) error {
		return applyConsume(t, pid, at)
	})
	if err != nil {
		return nil, fmt.Errorf("consuming task: %w", err)
	}
	logEvent(tm.events, "task.consumed", map[string]any{"task_id": task.ID, "pid": pid})
	tm.logStatusChange(old, *task)
	return task, nil
}

func (tm *taskManager) RecordExit(ref string, exitCode int, output string) (*models.Task, error) {
	task, _, err := tm.mutate(ref, func(t *models.Task) error {
		return applyExit(t, exitCode, output)
	})
	if err != nil {
		return nil, fmt.Errorf("recording exit: %w", err)
	}
	logEvent(tm.events, "task.exited", map[string]any{"task_id": task.ID, "exit_code": exitCode})
	return task, nil
}

func (tm *taskManager) Readiness() (Readiness, error) {
	tasks, err := tm.store.LoadTasks()
	if err != nil {
		return Readiness{}, fmt.Errorf("classifying readiness: %w", err)
	}
	return ClassifyReadiness(tasks), nil
}

// mutate resolves ref and applies fn to a copy of the stored task under the
// store lock. Nothing is written when fn fails. It returns the saved task and
// the record as it was before.
func (tm *taskManager) mutate(ref string, fn func(t *models.Task) error) (*models.Task, models.Task, error) {
	var updated, old models.Task
	err := tm.store.WithLock(func() error {
		id, err := tm.resolver.Resolve(models.KindTask, ref)
		if err != nil {
			return err
		}
		stored, err := tm.store.LoadTask(id)
		if err != nil {
			return err
		}
		if stored == nil {
			return &NotFoundError{Kind: models.KindTask, Input: ref}
		}
		old = stored.Clone()
		next := stored.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		next.UpdatedAt = tm.now()
		if err := tm.store.SaveTask(next); err != nil {
			return fmt.Errorf("saving task %s: %w", id, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, models.Task{}, err
	}
	return &updated, old, nil
}

// batch applies fn to every ref independently. after, when set, runs for each
// task that was saved.
func (tm *taskManager) batch(refs []string, fn func(t *models.Task) error, after func(t models.Task)) BatchResult {
	var result BatchResult
	for _, ref := range refs {
		task, old, err := tm.mutate(ref, fn)
		if err != nil {
			result.fail(ref, err)
			continue
		}
		tm.logStatusChange(old, *task)
		if after != nil {
			after(*task)
		}
		result.Succeeded = append(result.Succeeded, *task)
	}
	return result
}

func (tm *taskManager) logStatusChange(old, updated models.Task) {
	if old.Status == updated.Status {
		return
	}
	logEvent(tm.events, "task.status_changed", map[string]any{
		"task_id":    updated.ID,
		"old_status": string(old.Status),
		"new_status": string(updated.Status),
	})
}

// removeTask deletes id, then strips it from every other task's blocked_by
// list. A failed delete leaves every record untouched. Callers must hold the
// store lock. It returns a nil task when id is
// not stored, and the sorted IDs of the cleaned tasks.
func removeTask(store TaskStore, id string, now time.Time) (*models.Task, []string, error) {
	tasks, err := store.LoadTasks()
	if err != nil {
		return nil, nil, err
	}
	index := indexTasks(tasks)
	task, ok := index[id]
	if !ok {
		return nil, nil, nil
	}

	if err := store.DeleteTask(id); err != nil {
		return nil, nil, err
	}

	var cleaned []string
	for _, other := range tasks {
		if other.ID == id || !other.HasBlocker(id) {
			continue
		}
		c := other.Clone()
		c.BlockedBy = removeString(c.BlockedBy, id)
		c.UpdatedAt = now
		if err := store.SaveTask(c); err != nil {
			return nil, nil, fmt.Errorf("cleaning blocker from %s: %w", other.ID, err)
		}
		cleaned = append(cleaned, other.ID)
	}
	sort.Strings(cleaned)
	return &task, cleaned, nil
}

func validateNewTask(t models.Task) error {
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if err := validateTaskType(t.Type); err != nil {
		return err
	}
	if err := validatePriority(t.Priority); err != nil {
		return err
	}
	if err := validateSize(t.Size); err != nil {
		return err
	}
	return validateComplexity(t.Complexity)
}
