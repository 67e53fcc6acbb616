package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/flow/pkg/models"
)

// PromoteOpts sets the task fields that a backlog item does not carry.
type PromoteOpts struct {
	Type       models.TaskType
	Priority   *int
	Labels     []string
	Size       models.Size
	Complexity models.Complexity
	EpicRef    string
}

// BacklogManager handles unscheduled ideas and their conversion to and from
// tasks.
type BacklogManager interface {
	AddItem(title, description string) (*models.BacklogItem, error)
	ListItems() ([]models.BacklogItem, error)
	GetItem(ref string) (*models.BacklogItem, error)
	RemoveItem(ref string) (*models.BacklogItem, error)
	Promote(ref string, opts PromoteOpts) (*models.Task, error)
	Defer(taskRef string) (*models.BacklogItem, error)
}

type backlogManager struct {
	store    Store
	resolver IDResolver
	ids      IDGenerator
	events   EventLogger
	defaults TaskDefaults
}

// NewBacklogManager creates a BacklogManager. Promoted tasks take unset fields
// from defaults. events may be nil.
func NewBacklogManager(store Store, resolver IDResolver, ids IDGenerator, events EventLogger, defaults TaskDefaults) BacklogManager {
	if defaults.Type == "" {
		defaults.Type = models.TaskTypeTask
	}
	if defaults.Complexity == "" {
		defaults.Complexity = models.ComplexitySimple
	}
	return &backlogManager{store: store, resolver: resolver, ids: ids, events: events, defaults: defaults}
}

func (bm *backlogManager) AddItem(title, description string) (*models.BacklogItem, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return nil, fmt.Errorf("adding backlog item: %w", err)
	}
	item := models.BacklogItem{Title: title, Description: description}
	err := bm.store.WithLock(func() error {
		id, err := bm.ids.NewID(models.KindBacklog)
		if err != nil {
			return err
		}
		item.ID = id
		item.CreatedAt = time.Now().UTC()
		return bm.store.SaveBacklogItem(item)
	})
	if err != nil {
		return nil, fmt.Errorf("adding backlog item: %w", err)
	}
	logEvent(bm.events, "backlog.added", map[string]any{"backlog_id": item.ID})
	return &item, nil
}

// ListItems returns backlog items oldest first.
func (bm *backlogManager) ListItems() ([]models.BacklogItem, error) {
	items, err := bm.store.LoadBacklog()
	if err != nil {
		return nil, fmt.Errorf("listing backlog: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (bm *backlogManager) GetItem(ref string) (*models.BacklogItem, error) {
	id, err := bm.resolver.Resolve(models.KindBacklog, ref)
	if err != nil {
		return nil, fmt.Errorf("getting backlog item: %w", err)
	}
	item, err := bm.store.LoadBacklogItem(id)
	if err != nil {
		return nil, fmt.Errorf("getting backlog item %s: %w", id, err)
	}
	if item == nil {
		return nil, fmt.Errorf("getting backlog item: %w", &NotFoundError{Kind: models.KindBacklog, Input: ref})
	}
	return item, nil
}

func (bm *backlogManager) RemoveItem(ref string) (*models.BacklogItem, error) {
	var removed models.BacklogItem
	err := bm.store.WithLock(func() error {
		item, err := bm.loadItem(ref)
		if err != nil {
			return err
		}
		removed = *item
		return bm.store.DeleteBacklogItem(item.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("removing backlog item: %w", err)
	}
	return &removed, nil
}

// Promote turns a backlog item into a new open task with a fresh ID and
// removes the item.
func (bm *backlogManager) Promote(ref string, opts PromoteOpts) (*models.Task, error) {
	task := models.Task{
		Type:       opts.Type,
		Priority:   bm.defaults.Priority,
		Labels:     normalizeLabels(opts.Labels),
		Size:       opts.Size,
		Complexity: opts.Complexity,
		Status:     models.StatusOpen,
	}
	if task.Type == "" {
		task.Type = bm.defaults.Type
	}
	if opts.Priority != nil {
		task.Priority = *opts.Priority
	}
	if task.Complexity == "" {
		task.Complexity = bm.defaults.Complexity
	}

	var itemID string
	err := bm.store.WithLock(func() error {
		item, err := bm.loadItem(ref)
		if err != nil {
			return err
		}
		itemID = item.ID
		task.Title = item.Title
		task.Description = item.Description
		if err := validateNewTask(task); err != nil {
			return err
		}
		if opts.EpicRef != "" {
			epicID, err := bm.resolver.Resolve(models.KindEpic, opts.EpicRef)
			if err != nil {
				return err
			}
			task.EpicID = epicID
		}

		id, err := bm.ids.NewID(models.KindTask)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		task.ID = id
		task.CreatedAt = now
		task.UpdatedAt = now
		if err := bm.store.SaveTask(task); err != nil {
			return err
		}
		return bm.store.DeleteBacklogItem(item.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("promoting backlog item: %w", err)
	}
	logEvent(bm.events, "backlog.promoted", map[string]any{"backlog_id": itemID, "task_id": task.ID})
	logEvent(bm.events, "task.created", map[string]any{
		"task_id":  task.ID,
		"type":     string(task.Type),
		"priority": task.Priority,
		"epic_id":  task.EpicID,
	})
	return &task, nil
}

// Defer moves a task back to the backlog. Only title and description survive;
// the task's ID is removed from other tasks' blocked_by lists as on delete.
func (bm *backlogManager) Defer(taskRef string) (*models.BacklogItem, error) {
	var item models.BacklogItem
	var taskID string
	var cleaned []string
	err := bm.store.WithLock(func() error {
		id, err := bm.resolver.Resolve(models.KindTask, taskRef)
		if err != nil {
			return err
		}
		itemID, err := bm.ids.NewID(models.KindBacklog)
		if err != nil {
			return err
		}
		task, err := bm.store.LoadTask(id)
		if err != nil {
			return err
		}
		if task == nil {
			return &NotFoundError{Kind: models.KindTask, Input: taskRef}
		}
		now := time.Now().UTC()
		item = models.BacklogItem{
			ID:          itemID,
			Title:       task.Title,
			Description: task.Description,
			CreatedAt:   now,
		}
		if err := bm.store.SaveBacklogItem(item); err != nil {
			return err
		}
		removed, c, err := removeTask(bm.store, id, now)
		if err == nil && removed == nil {
			err = &NotFoundError{Kind: models.KindTask, Input: taskRef}
		}
		if err != nil {
			return bm.rollbackDefer(item.ID, id, err)
		}
		taskID, cleaned = removed.ID, c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deferring task: %w", err)
	}
	logEvent(bm.events, "backlog.deferred", map[string]any{
		"task_id":      taskID,
		"backlog_id":   item.ID,
		"cleaned_from": cleaned,
	})
	return &item, nil
}

// rollbackDefer drops the new backlog item while the task it came from is
// still stored, so a failed defer leaves exactly one copy of the work.
func (bm *backlogManager) rollbackDefer(itemID, taskID string, cause error) error {
	task, err := bm.store.LoadTask(taskID)
	if err != nil {
		return errors.Join(cause, err)
	}
	if task == nil {
		return cause
	}
	if err := bm.store.DeleteBacklogItem(itemID); err != nil {
		return errors.Join(cause, fmt.Errorf("removing backlog item %s: %w", itemID, err))
	}
	return cause
}

func (bm *backlogManager) loadItem(ref string) (*models.BacklogItem, error) {
	id, err := bm.resolver.Resolve(models.KindBacklog, ref)
	if err != nil {
		return nil, err
	}
	item, err := bm.store.LoadBacklogItem(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &NotFoundError{Kind: models.KindBacklog, Input: ref}
	}
	return item, nil
}
