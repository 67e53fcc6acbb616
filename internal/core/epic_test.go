package core

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/valter-silva-au/flow/pkg/models"
	"pgregory.net/rapid"
)

func TestEpicStatusFor(t *testing.T) {
	linked := func(id string, status models.TaskStatus, epic string) models.Task {
		task := seedTask(id, status)
		task.EpicID = epic
		return task
	}
	tests := []struct {
		name  string
		tasks []models.Task
		want  models.EpicStatus
	}{
		{"no tasks", nil, models.EpicNotStarted},
		{"only other epics", []models.Task{linked("f-1", models.StatusOpen, "e-other")}, models.EpicNotStarted},
		{"one open", []models.Task{linked("f-1", models.StatusOpen, "e-1")}, models.EpicInProgress},
		{"review counts as unfinished", []models.Task{
			linked("f-1", models.StatusClosed, "e-1"),
			linked("f-2", models.StatusReview, "e-1"),
		}, models.EpicInProgress},
		{"all closed", []models.Task{
			linked("f-1", models.StatusClosed, "e-1"),
			linked("f-2", models.StatusClosed, "e-1"),
			linked("f-3", models.StatusOpen, "e-other"),
		}, models.EpicReviewPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EpicStatusFor("e-1", tt.tasks); got != tt.want {
				t.Errorf("EpicStatusFor = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCreateEpic(t *testing.T) {
	f := newFixture(t)
	epic, err := f.epics.CreateEpic(" Launch ", "v1")
	if err != nil {
		t.Fatalf("CreateEpic failed: %v", err)
	}
	if epic.Title != "Launch" || epic.Description != "v1" || epic.ID[:2] != "e-" {
		t.Errorf("unexpected epic: %+v", epic)
	}
	if _, err := f.epics.CreateEpic("", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("empty title: expected ErrValidation, got %v", err)
	}
}

func TestGetEpic_CountsAndTasks(t *testing.T) {
	f := newFixture(t)
	epic, _ := f.epics.CreateEpic("E", "")
	a, _ := f.tasks.CreateTask(CreateTaskOpts{Title: "A", EpicRef: epic.ID})
	f.create(t, "unlinked")
	if res := f.tasks.DoneTasks([]string{a.ID}, DoneOpts{}); !res.OK() {
		t.Fatal(res.Err())
	}
	if _, err := f.tasks.CreateTask(CreateTaskOpts{Title: "B", EpicRef: epic.ID}); err != nil {
		t.Fatal(err)
	}

	view, err := f.epics.GetEpic(HashSegment(epic.ID))
	if err != nil {
		t.Fatalf("GetEpic failed: %v", err)
	}
	if view.Total != 2 || view.Closed != 1 || len(view.Tasks) != 2 {
		t.Errorf("view = %+v", view)
	}
	if view.Status != models.EpicInProgress {
		t.Errorf("Status = %s", view.Status)
	}

	list, err := f.epics.ListEpics()
	if err != nil || len(list) != 1 {
		t.Fatalf("ListEpics = %v, %v", list, err)
	}
	if list[0].Tasks != nil || list[0].Total != 2 {
		t.Errorf("list view should carry counts only: %+v", list[0])
	}
}

func TestDeleteEpic_UnlinksTasks(t *testing.T) {
	f := newFixture(t)
	epic, _ := f.epics.CreateEpic("E", "")
	a, _ := f.tasks.CreateTask(CreateTaskOpts{Title: "A", EpicRef: epic.ID})

	res, err := f.epics.DeleteEpic(epic.ID)
	if err != nil {
		t.Fatalf("DeleteEpic failed: %v", err)
	}
	if !slices.Equal(res.UnlinkedTaskIDs, []string{a.ID}) {
		t.Errorf("UnlinkedTaskIDs = %v", res.UnlinkedTaskIDs)
	}
	if got := f.reload(t, a.ID); got.EpicID != "" {
		t.Errorf("task still linked to %s", got.EpicID)
	}
	if _, err := f.epics.GetEpic(epic.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted epic still resolvable: %v", err)
	}
}

func TestLinkAndUnlinkTasks(t *testing.T) {
	f := newFixture(t)
	e1, _ := f.epics.CreateEpic("one", "")
	e2, _ := f.epics.CreateEpic("two", "")
	a := f.create(t, "A")
	b := f.create(t, "B")

	res := f.epics.LinkTasks(e1.ID, []string{a.ID, b.ID, "missing"})
	if len(res.Succeeded) != 2 || len(res.Failed) != 1 {
		t.Fatalf("LinkTasks = %+v", res)
	}

	// Linking to another epic moves the task.
	if res := f.epics.LinkTasks(e2.ID, []string{a.ID}); !res.OK() {
		t.Fatal(res.Err())
	}
	if got := f.reload(t, a.ID).EpicID; got != e2.ID {
		t.Errorf("A epic = %s, want %s", got, e2.ID)
	}

	if res := f.epics.UnlinkTasks([]string{b.ID}); !res.OK() {
		t.Fatal(res.Err())
	}
	if got := f.reload(t, b.ID).EpicID; got != "" {
		t.Errorf("B epic = %s, want none", got)
	}

	res = f.epics.LinkTasks("e-nothere", []string{a.ID})
	if res.OK() || !errors.Is(res.Err(), ErrNotFound) {
		t.Errorf("unknown epic: %+v", res)
	}
}

// Closing the last unfinished task moves the epic to review_pending, and
// reopening any task moves it back.
func TestProperty_EpicStatusMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		tasks := make([]models.Task, n)
		for i := range tasks {
			tasks[i] = seedTask(fmt.Sprintf("f-%d", i), rapid.SampledFrom(allStatuses).Draw(rt, "status"))
			tasks[i].EpicID = "e-1"
		}

		for i := range tasks {
			tasks[i].Status = models.StatusClosed
			got := EpicStatusFor("e-1", tasks)
			if i < n-1 && slices.ContainsFunc(tasks, func(x models.Task) bool { return x.Status != models.StatusClosed }) {
				if got != models.EpicInProgress {
					rt.Fatalf("with unfinished tasks, status = %s", got)
				}
			}
		}
		if got := EpicStatusFor("e-1", tasks); got != models.EpicReviewPending {
			rt.Fatalf("all closed, status = %s", got)
		}

		k := rapid.IntRange(0, n-1).Draw(rt, "reopen")
		if err := applyReopen(&tasks[k]); err != nil {
			rt.Fatalf("reopen: %v", err)
		}
		if got := EpicStatusFor("e-1", tasks); got != models.EpicInProgress {
			rt.Fatalf("after reopen, status = %s", got)
		}
	})
}
