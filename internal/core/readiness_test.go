package core

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/valter-silva-au/flow/pkg/models"
	"pgregory.net/rapid"
)

func TestClassifyReadiness(t *testing.T) {
	tasks := []models.Task{
		seedTask("f-done", models.StatusClosed),
		seedTask("f-wip", models.StatusInProgress),
		seedTask("f-free", models.StatusOpen),
		seedTask("f-unblocked", models.StatusOpen, "f-done"),
		seedTask("f-waiting", models.StatusOpen, "f-done", "f-wip"),
		seedTask("f-orphan", models.StatusOpen, "f-deleted"),
		seedTask("f-review", models.StatusReview),
	}
	r := ClassifyReadiness(tasks)

	if got := taskIDs(r.Ready); !slices.Equal(got, []string{"f-free", "f-unblocked"}) {
		t.Errorf("Ready = %v", got)
	}
	if got := taskIDs(r.Blocked); !slices.Equal(got, []string{"f-orphan", "f-waiting"}) {
		t.Errorf("Blocked = %v", got)
	}
	if got := r.OpenBlockers["f-waiting"]; !slices.Equal(got, []string{"f-wip"}) {
		t.Errorf("OpenBlockers[f-waiting] = %v", got)
	}
	if got := r.OpenBlockers["f-orphan"]; !slices.Equal(got, []string{"f-deleted"}) {
		t.Errorf("a missing blocker should stay open, got %v", got)
	}
	if r.Available() != 2 {
		t.Errorf("Available() = %d, want 2", r.Available())
	}
}

func TestClassifyReadiness_Ordering(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id string, priority int, age time.Duration) models.Task {
		task := seedTask(id, models.StatusOpen)
		task.Priority = priority
		task.CreatedAt = base.Add(-age)
		return task
	}
	tasks := []models.Task{
		mk("f-p2-new", 2, time.Hour),
		mk("f-p0", 0, time.Minute),
		mk("f-p2-old", 2, 48*time.Hour),
		mk("f-p2-tie-b", 2, 24*time.Hour),
		mk("f-p2-tie-a", 2, 24*time.Hour),
		mk("f-p4", 4, 72*time.Hour),
	}
	r := ClassifyReadiness(tasks)
	want := []string{"f-p0", "f-p2-old", "f-p2-tie-a", "f-p2-tie-b", "f-p2-new", "f-p4"}
	if got := taskIDs(r.Ready); !slices.Equal(got, want) {
		t.Errorf("Ready order = %v, want %v", got, want)
	}
}

func TestIsReady(t *testing.T) {
	tasks := []models.Task{
		seedTask("f-1", models.StatusClosed),
		seedTask("f-2", models.StatusOpen, "f-1"),
		seedTask("f-3", models.StatusOpen, "f-2"),
	}
	if !IsReady(tasks[1], tasks) {
		t.Error("f-2 should be ready")
	}
	if IsReady(tasks[2], tasks) {
		t.Error("f-3 should be blocked")
	}
	if IsReady(tasks[0], tasks) {
		t.Error("closed tasks are never ready")
	}
}

var allStatuses = []models.TaskStatus{
	models.StatusOpen, models.StatusInProgress, models.StatusReview, models.StatusClosed,
}

// Every open task lands in exactly one of Ready or Blocked, and a task is
// ready exactly when all of its blockers exist and are closed.
func TestProperty_ReadinessPartition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "n")
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("f-%04d", i)
		}
		pool := append(append([]string(nil), ids...), "f-missing")

		tasks := make([]models.Task, n)
		for i, id := range ids {
			status := rapid.SampledFrom(allStatuses).Draw(rt, "status")
			blockers := rapid.SliceOfNDistinct(rapid.SampledFrom(pool), 0, 3, rapid.ID[string]).Draw(rt, "blockers")
			tasks[i] = seedTask(id, status, blockers...)
			tasks[i].Priority = rapid.IntRange(0, 4).Draw(rt, "priority")
		}

		r := ClassifyReadiness(tasks)
		index := indexTasks(tasks)
		seen := map[string]int{}
		for _, task := range r.Ready {
			seen[task.ID]++
		}
		for _, task := range r.Blocked {
			seen[task.ID]++
		}

		for _, task := range tasks {
			if task.Status != models.StatusOpen {
				if seen[task.ID] != 0 {
					rt.Fatalf("%s is %s but was classified", task.ID, task.Status)
				}
				continue
			}
			if seen[task.ID] != 1 {
				rt.Fatalf("open task %s classified %d times", task.ID, seen[task.ID])
			}
			satisfied := true
			for _, b := range task.BlockedBy {
				if bt, ok := index[b]; !ok || bt.Status != models.StatusClosed {
					satisfied = false
				}
			}
			if satisfied != IsReady(task, tasks) {
				rt.Fatalf("IsReady(%s) disagrees with blocker states", task.ID)
			}
			if satisfied != slices.ContainsFunc(r.Ready, func(x models.Task) bool { return x.ID == task.ID }) {
				rt.Fatalf("%s in wrong partition", task.ID)
			}
		}

		for i := 1; i < len(r.Ready); i++ {
			if r.Ready[i-1].Priority > r.Ready[i].Priority {
				rt.Fatalf("Ready not sorted by priority: %v", taskIDs(r.Ready))
			}
		}
	})
}
