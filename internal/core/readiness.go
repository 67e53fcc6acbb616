package core

import (
	"sort"

	"github.com/valter-silva-au/flow/pkg/models"
)

// Readiness partitions the open tasks of a task set. Every open task is in
// exactly one of Ready or Blocked; tasks in any other status are in neither.
type Readiness struct {
	Ready   []models.Task
	Blocked []models.Task

	// OpenBlockers maps each blocked task ID to the blocker IDs that are not
	// yet closed, including blockers that no longer exist.
	OpenBlockers map[string][]string
}

// Available returns the count of actionable tasks.
func (r Readiness) Available() int {
	return len(r.Ready)
}

// ClassifyReadiness computes ready and blocked tasks from the full task set.
// A blocker is satisfied only when it exists and is closed. Both lists are
// sorted by priority, then creation time, then ID.
func ClassifyReadiness(tasks []models.Task) Readiness {
	index := indexTasks(tasks)
	r := Readiness{OpenBlockers: make(map[string][]string)}

	for _, t := range tasks {
		if t.Status != models.StatusOpen {
			continue
		}
		var open []string
		for _, blockerID := range t.BlockedBy {
			blocker, ok := index[blockerID]
			if !ok || blocker.Status != models.StatusClosed {
				open = append(open, blockerID)
			}
		}
		if len(open) == 0 {
			r.Ready = append(r.Ready, t)
			continue
		}
		r.Blocked = append(r.Blocked, t)
		r.OpenBlockers[t.ID] = open
	}

	sortTasks(r.Ready)
	sortTasks(r.Blocked)
	return r
}

// IsReady reports whether task is open with every blocker closed.
func IsReady(task models.Task, tasks []models.Task) bool {
	if task.Status != models.StatusOpen {
		return false
	}
	index := indexTasks(tasks)
	for _, blockerID := range task.BlockedBy {
		blocker, ok := index[blockerID]
		if !ok || blocker.Status != models.StatusClosed {
			return false
		}
	}
	return true
}

// sortTasks orders by priority ascending (0 first), then oldest first, then ID.
func sortTasks(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
