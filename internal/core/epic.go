package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/flow/pkg/models"
)

// EpicStatusFor derives an epic's status from the tasks linked to it. An epic
// with no tasks has not started; one with every task closed awaits review.
func EpicStatusFor(epicID string, tasks []models.Task) models.EpicStatus {
	linked := 0
	for _, t := range tasks {
		if t.EpicID != epicID {
			continue
		}
		linked++
		if t.Status != models.StatusClosed {
			return models.EpicInProgress
		}
	}
	if linked == 0 {
		return models.EpicNotStarted
	}
	return models.EpicReviewPending
}

// EpicView is an epic with its derived status and linked tasks.
type EpicView struct {
	Epic   models.Epic       `json:"epic"`
	Status models.EpicStatus `json:"status"`
	Tasks  []models.Task     `json:"tasks,omitempty"`
	Total  int               `json:"total"`
	Closed int               `json:"closed"`
}

// EpicDeleteResult reports the tasks that lost their epic link.
type EpicDeleteResult struct {
	Epic            models.Epic `json:"epic"`
	UnlinkedTaskIDs []string    `json:"unlinked_task_ids,omitempty"`
}

// EpicManager handles epic records and task linking.
type EpicManager interface {
	CreateEpic(title, description string) (*models.Epic, error)
	GetEpic(ref string) (*EpicView, error)
	ListEpics() ([]EpicView, error)
	DeleteEpic(ref string) (*EpicDeleteResult, error)
	LinkTasks(epicRef string, taskRefs []string) BatchResult
	UnlinkTasks(taskRefs []string) BatchResult
}

type epicManager struct {
	store    Store
	resolver IDResolver
	ids      IDGenerator
	events   EventLogger
}

// NewEpicManager creates an EpicManager. events may be nil.
func NewEpicManager(store Store, resolver IDResolver, ids IDGenerator, events EventLogger) EpicManager {
	return &epicManager{store: store, resolver: resolver, ids: ids, events: events}
}

func (em *epicManager) CreateEpic(title, description string) (*models.Epic, error) {
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return nil, fmt.Errorf("creating epic: %w", err)
	}
	epic := models.Epic{Title: title, Description: description}
	err := em.store.WithLock(func() error {
		id, err := em.ids.NewID(models.KindEpic)
		if err != nil {
			return err
		}
		epic.ID = id
		epic.CreatedAt = time.Now().UTC()
		return em.store.SaveEpic(epic)
	})
	if err != nil {
		return nil, fmt.Errorf("creating epic: %w", err)
	}
	logEvent(em.events, "epic.created", map[string]any{"epic_id": epic.ID})
	return &epic, nil
}

func (em *epicManager) GetEpic(ref string) (*EpicView, error) {
	id, err := em.resolver.Resolve(models.KindEpic, ref)
	if err != nil {
		return nil, fmt.Errorf("getting epic: %w", err)
	}
	epic, err := em.store.LoadEpic(id)
	if err != nil {
		return nil, fmt.Errorf("getting epic %s: %w", id, err)
	}
	if epic == nil {
		return nil, fmt.Errorf("getting epic: %w", &NotFoundError{Kind: models.KindEpic, Input: ref})
	}
	tasks, err := em.store.LoadTasks()
	if err != nil {
		return nil, fmt.Errorf("getting epic %s: %w", id, err)
	}
	view := buildEpicView(*epic, tasks, true)
	return &view, nil
}

// ListEpics returns every epic with derived status, oldest first.
func (em *epicManager) ListEpics() ([]EpicView, error) {
	epics, err := em.store.LoadEpics()
	if err != nil {
		return nil, fmt.Errorf("listing epics: %w", err)
	}
	tasks, err := em.store.LoadTasks()
	if err != nil {
		return nil, fmt.Errorf("listing epics: %w", err)
	}
	sort.SliceStable(epics, func(i, j int) bool {
		if !epics[i].CreatedAt.Equal(epics[j].CreatedAt) {
			return epics[i].CreatedAt.Before(epics[j].CreatedAt)
		}
		return epics[i].ID < epics[j].ID
	})
	views := make([]EpicView, 0, len(epics))
	for _, e := range epics {
		views = append(views, buildEpicView(e, tasks, false))
	}
	return views, nil
}

func buildEpicView(epic models.Epic, tasks []models.Task, withTasks bool) EpicView {
	view := EpicView{Epic: epic, Status: EpicStatusFor(epic.ID, tasks)}
	for _, t := range tasks {
		if t.EpicID != epic.ID {
			continue
		}
		view.Total++
		if t.Status == models.StatusClosed {
			view.Closed++
		}
		if withTasks {
			view.Tasks = append(view.Tasks, t)
		}
	}
	sortTasks(view.Tasks)
	return view
}

// DeleteEpic removes the epic and unlinks its tasks. Tasks are never deleted.
func (em *epicManager) DeleteEpic(ref string) (*EpicDeleteResult, error) {
	var result EpicDeleteResult
	err := em.store.WithLock(func() error {
		id, err := em.resolver.Resolve(models.KindEpic, ref)
		if err != nil {
			return err
		}
		epic, err := em.store.LoadEpic(id)
		if err != nil {
			return err
		}
		if epic == nil {
			return &NotFoundError{Kind: models.KindEpic, Input: ref}
		}
		tasks, err := em.store.LoadTasks()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, t := range tasks {
			if t.EpicID != id {
				continue
			}
			t = t.Clone()
			t.EpicID = ""
			t.UpdatedAt = now
			if err := em.store.SaveTask(t); err != nil {
				return fmt.Errorf("unlinking task %s: %w", t.ID, err)
			}
			result.UnlinkedTaskIDs = append(result.UnlinkedTaskIDs, t.ID)
		}
		if err := em.store.DeleteEpic(id); err != nil {
			return err
		}
		result.Epic = *epic
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deleting epic: %w", err)
	}
	sort.Strings(result.UnlinkedTaskIDs)
	logEvent(em.events, "epic.deleted", map[string]any{
		"epic_id":  result.Epic.ID,
		"unlinked": result.UnlinkedTaskIDs,
	})
	return &result, nil
}

// LinkTasks sets the epic on each task. A task already in another epic is
// moved.
func (em *epicManager) LinkTasks(epicRef string, taskRefs []string) BatchResult {
	epicID, err := em.resolver.Resolve(models.KindEpic, epicRef)
	if err != nil {
		var result BatchResult
		for _, ref := range taskRefs {
			result.fail(ref, fmt.Errorf("linking to epic: %w", err))
		}
		return result
	}
	return em.setEpic(taskRefs, epicID)
}

func (em *epicManager) UnlinkTasks(taskRefs []string) BatchResult {
	return em.setEpic(taskRefs, "")
}

func (em *epicManager) setEpic(taskRefs []string, epicID string) BatchResult {
	var result BatchResult
	for _, ref := range taskRefs {
		var saved models.Task
		err := em.store.WithLock(func() error {
			id, err := em.resolver.Resolve(models.KindTask, ref)
			if err != nil {
				return err
			}
			task, err := em.store.LoadTask(id)
			if err != nil {
				return err
			}
			if task == nil {
				return &NotFoundError{Kind: models.KindTask, Input: ref}
			}
			saved = task.Clone()
			if saved.EpicID == epicID {
				return nil
			}
			saved.EpicID = epicID
			saved.UpdatedAt = time.Now().UTC()
			return em.store.SaveTask(saved)
		})
		if err != nil {
			result.fail(ref, err)
			continue
		}
		logEvent(em.events, "task.updated", map[string]any{"task_id": saved.ID, "fields": []string{"epic_id"}})
		result.Succeeded = append(result.Succeeded, saved)
	}
	return result
}
