package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/pkg/models"
)

func TestTaskCmd_Subcommands(t *testing.T) {
	task := findCommand(rootCmd, "task")
	if task == nil {
		t.Fatal("task command not registered on root")
	}
	expected := []string{"create", "show", "list", "update", "start", "done", "reopen", "retry", "delete", "consume", "exit"}
	for _, name := range expected {
		if findCommand(task, name) == nil {
			t.Errorf("task subcommand %q not registered", name)
		}
	}
}

func TestTaskCmd_NilTaskManager(t *testing.T) {
	saveGlobals(t)
	for _, args := range [][]string{
		{"task", "create", "x"},
		{"task", "list"},
		{"task", "start", "f-1"},
		{"task", "done", "f-1"},
		{"ready"},
	} {
		_, err := execute(t, args...)
		if err == nil || !strings.Contains(err.Error(), "not initialized") {
			t.Errorf("flow %v: expected not initialized error, got %v", args, err)
		}
	}
}

func TestTaskCreate(t *testing.T) {
	setupEnv(t)
	out := mustExecute(t, "task", "create", "Add login", "-t", "feature", "-p", "0", "-l", "auth", "-l", "ui", "--size", "m")
	if !strings.Contains(out, "Created task f-") {
		t.Fatalf("unexpected output: %q", out)
	}

	tasks, err := TaskMgr.ListTasks(core.TaskFilter{})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %v, %v", tasks, err)
	}
	task := tasks[0]
	if task.Type != models.TaskTypeFeature || task.Priority != 0 || task.Size != models.SizeM {
		t.Errorf("created task = %+v", task)
	}
	if strings.Join(task.Labels, ",") != "auth,ui" {
		t.Errorf("labels = %v", task.Labels)
	}
}

func TestTaskCreate_DefaultsWhenFlagsOmitted(t *testing.T) {
	setupEnv(t)
	mustExecute(t, "task", "create", "Plain")
	tasks, _ := TaskMgr.ListTasks(core.TaskFilter{})
	if len(tasks) != 1 || tasks[0].Priority != 2 || tasks[0].Type != models.TaskTypeTask {
		t.Errorf("defaults not applied: %+v", tasks)
	}
}

func TestTaskCreate_JSON(t *testing.T) {
	setupEnv(t)
	out := mustExecute(t, "--json", "task", "create", "JSON task")
	var task models.Task
	if err := json.Unmarshal([]byte(out), &task); err != nil {
		t.Fatalf("output is not a task: %v\n%s", err, out)
	}
	if task.Title != "JSON task" || task.Status != models.StatusOpen {
		t.Errorf("task = %+v", task)
	}
}

func TestTaskCreate_InvalidPriority(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "task", "create", "x", "-p", "9")
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestTaskList_HidesClosedByDefault(t *testing.T) {
	setupEnv(t)
	open := createTask(t, "still open")
	closed := createTask(t, "finished")
	mustExecute(t, "task", "done", closed)

	out := mustExecute(t, "task", "list")
	if !strings.Contains(out, open) || strings.Contains(out, closed) {
		t.Errorf("default list:\n%s", out)
	}
	out = mustExecute(t, "task", "list", "--all")
	if !strings.Contains(out, closed) {
		t.Errorf("--all list missing closed task:\n%s", out)
	}
	out = mustExecute(t, "task", "list", "-s", "closed")
	if strings.Contains(out, open) || !strings.Contains(out, closed) {
		t.Errorf("status filter:\n%s", out)
	}
}

func TestTaskList_Empty(t *testing.T) {
	setupEnv(t)
	if out := mustExecute(t, "task", "list"); !strings.Contains(out, "No tasks found.") {
		t.Errorf("got %q", out)
	}
	out := mustExecute(t, "--json", "task", "list")
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("empty JSON list = %q", out)
	}
}

func TestTaskShow_PartialID(t *testing.T) {
	setupEnv(t)
	blocker := createTask(t, "blocker")
	id := createTask(t, "blocked", blocker)

	out := mustExecute(t, "task", "show", strings.TrimPrefix(id, "f-")[:6])
	if !strings.Contains(out, id) || !strings.Contains(out, "Blocked by:") || !strings.Contains(out, blocker) {
		t.Errorf("show output:\n%s", out)
	}
}

func TestTaskShow_NotFound(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "task", "show", "f-zzzzzzzz")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTaskUpdate(t *testing.T) {
	setupEnv(t)
	id := createTask(t, "old title")
	mustExecute(t, "task", "update", id, "--title", "new title", "-s", "review", "--add-label", "x")

	task, err := TaskMgr.GetTask(id)
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "new title" || task.Status != models.StatusReview || strings.Join(task.Labels, ",") != "x" {
		t.Errorf("updated task = %+v", task)
	}
}

func TestTaskUpdate_StatusClosedRejected(t *testing.T) {
	setupEnv(t)
	id := createTask(t, "x")
	_, err := execute(t, "task", "update", id, "-s", "closed")
	if !errors.Is(err, core.ErrInvalidTransition) || !strings.Contains(err.Error(), "use done") {
		t.Errorf("expected transition error, got %v", err)
	}
}

func TestTaskUpdate_StatusOpenClearsFailedRun(t *testing.T) {
	env := setupEnv(t)
	env.procs[4242] = true
	id := createTask(t, "flaky")
	mustExecute(t, "task", "consume", id, "--pid", "4242")
	mustExecute(t, "task", "exit", id, "--code", "1", "--output", "boom")

	mustExecute(t, "task", "update", id, "-s", "open")
	mustExecute(t, "task", "start", id)
	if out := mustExecute(t, "stuck"); !strings.Contains(out, "No stuck tasks.") {
		t.Errorf("restarted task still reported stuck:\n%s", out)
	}
}

func TestTaskLifecycle(t *testing.T) {
	setupEnv(t)
	id := createTask(t, "lifecycle")

	if out := mustExecute(t, "task", "start", id); !strings.Contains(out, "Started "+id) {
		t.Errorf("start output %q", out)
	}
	if _, err := execute(t, "task", "start", id); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("second start: %v", err)
	}

	out := mustExecute(t, "task", "done", id, "-r", "shipped", "-c", "abc123")
	if !strings.Contains(out, "Closed "+id) {
		t.Errorf("done output %q", out)
	}
	task, _ := TaskMgr.GetTask(id)
	if task.Status != models.StatusClosed || task.Reason != "shipped" || task.CommitHash != "abc123" {
		t.Errorf("closed task = %+v", task)
	}

	mustExecute(t, "task", "reopen", id)
	task, _ = TaskMgr.GetTask(id)
	if task.Status != models.StatusOpen || task.Reason != "" {
		t.Errorf("reopened task = %+v", task)
	}
}

func TestTaskDone_BatchReportsFailures(t *testing.T) {
	setupEnv(t)
	a := createTask(t, "a")
	b := createTask(t, "b")
	mustExecute(t, "task", "done", b)

	out, err := execute(t, "task", "done", a, b, "f-nope0000")
	if err == nil {
		t.Fatal("expected batch error")
	}
	if !strings.Contains(out, "Closed "+a) {
		t.Errorf("successful item not reported:\n%s", out)
	}
	if !strings.Contains(out, "already closed") || !strings.Contains(out, "f-nope0000") {
		t.Errorf("failures not reported:\n%s", out)
	}
	if !errors.Is(err, core.ErrInvalidTransition) || !errors.Is(err, core.ErrNotFound) {
		t.Errorf("joined error lost causes: %v", err)
	}
}

func TestTaskConsumeExitRetry(t *testing.T) {
	setupEnv(t)
	id := createTask(t, "agent work")

	mustExecute(t, "task", "consume", id, "--pid", "4242")
	outFile := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(outFile, []byte("panic: boom"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := mustExecute(t, "task", "exit", id, "--code", "2", "--output-file", outFile)
	if !strings.Contains(out, "Recorded exit 2") {
		t.Errorf("exit output %q", out)
	}
	task, _ := TaskMgr.GetTask(id)
	if task.ConsumedExitCode == nil || *task.ConsumedExitCode != 2 || task.ConsumedOutput != "panic: boom" {
		t.Errorf("exit not recorded: %+v", task)
	}

	mustExecute(t, "task", "retry", id)
	task, _ = TaskMgr.GetTask(id)
	if task.Status != models.StatusOpen || task.Consumed {
		t.Errorf("retried task = %+v", task)
	}
}

func TestTaskExit_NotConsumed(t *testing.T) {
	setupEnv(t)
	id := createTask(t, "x")
	if _, err := execute(t, "task", "exit", id, "--code", "1"); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("expected transition error, got %v", err)
	}
}

func TestTaskDelete_CleansBlockers(t *testing.T) {
	setupEnv(t)
	blocker := createTask(t, "blocker")
	dependent := createTask(t, "dependent", blocker)

	out := mustExecute(t, "task", "delete", blocker)
	if !strings.Contains(out, "Deleted "+blocker) || !strings.Contains(out, "removed as blocker of "+dependent) {
		t.Errorf("delete output:\n%s", out)
	}
	task, _ := TaskMgr.GetTask(dependent)
	if len(task.BlockedBy) != 0 {
		t.Errorf("blocker not cleaned: %v", task.BlockedBy)
	}
}

func TestTaskDelete_PartialFailure(t *testing.T) {
	setupEnv(t)
	id := createTask(t, "x")
	out, err := execute(t, "task", "delete", "f-missing0", id)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if !strings.Contains(out, "Deleted "+id) {
		t.Errorf("valid delete skipped:\n%s", out)
	}
}
