package core

import (
	"errors"
	"testing"
	"time"
)

func TestRecordRun(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "T")
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	code := 0

	run, err := f.recs.RecordRun(HashSegment(task.ID), RunOpts{
		Agent:     " claude ",
		Model:     "sonnet",
		StartedAt: start,
		EndedAt:   &end,
		ExitCode:  &code,
		CostUSD:   0.25,
	})
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if run.TaskID != task.ID || run.Agent != "claude" || run.RunID == "" {
		t.Errorf("unexpected run: %+v", run)
	}
	if run.Duration() != 90*time.Second {
		t.Errorf("Duration = %v", run.Duration())
	}
	if len(f.events.ofType("run.recorded")) != 1 {
		t.Error("expected run.recorded event")
	}

	if _, err := f.recs.RecordRun(task.ID, RunOpts{StartedAt: start}); err != nil {
		t.Fatal(err)
	}
	summary, err := f.recs.ListRuns(task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Runs) != 2 || summary.TotalCostUSD != 0.25 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRecordRun_Validation(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "T")
	start := time.Now().UTC()
	before := start.Add(-time.Minute)

	if _, err := f.recs.RecordRun(task.ID, RunOpts{CostUSD: -1}); !errors.Is(err, ErrValidation) {
		t.Errorf("negative cost: expected ErrValidation, got %v", err)
	}
	if _, err := f.recs.RecordRun(task.ID, RunOpts{StartedAt: start, EndedAt: &before}); !errors.Is(err, ErrValidation) {
		t.Errorf("end before start: expected ErrValidation, got %v", err)
	}
	if _, err := f.recs.RecordRun("f-00000000", RunOpts{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown task: expected ErrNotFound, got %v", err)
	}
	if len(f.runs.runs) != 0 {
		t.Errorf("rejected runs were stored: %d", len(f.runs.runs))
	}
}

func TestListRuns_SurvivesTaskDeletion(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "T")
	if _, err := f.recs.RecordRun(task.ID, RunOpts{CostUSD: 1.5}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.tasks.DeleteTask(task.ID); err != nil {
		t.Fatal(err)
	}

	summary, err := f.recs.ListRuns(task.ID)
	if err != nil {
		t.Fatalf("ListRuns by full id after delete: %v", err)
	}
	if len(summary.Runs) != 1 || summary.TotalCostUSD != 1.5 {
		t.Errorf("summary = %+v", summary)
	}

	// A partial ID of a deleted task cannot be resolved.
	if _, err := f.recs.ListRuns(HashSegment(task.ID)[:4]); !errors.Is(err, ErrNotFound) {
		t.Errorf("partial id of deleted task: expected ErrNotFound, got %v", err)
	}
}
