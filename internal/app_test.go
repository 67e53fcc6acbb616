package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/flow/internal/cli"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/internal/storage"
	"github.com/valter-silva-au/flow/pkg/models"
)

func TestResolveBasePath_FlowHomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FLOW_HOME", tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsFlowConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte("id:\n  length: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLOW_HOME", "")
	t.Chdir(subDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FLOW_HOME", "")
	t.Chdir(tmpDir)

	if got := ResolveBasePath(); got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func newTestApp(t *testing.T, config string) *App {
	t.Helper()
	base := t.TempDir()
	if config != "" {
		if err := os.WriteFile(filepath.Join(base, core.ConfigFileName), []byte(config), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	app, err := NewApp(base)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewApp_Defaults(t *testing.T) {
	app := newTestApp(t, "")

	if app.DataDir != filepath.Join(app.BasePath, ".flow") {
		t.Errorf("DataDir = %q", app.DataDir)
	}
	if info, err := os.Stat(app.DataDir); err != nil || !info.IsDir() {
		t.Fatalf("data directory not created: %v", err)
	}
	if _, ok := app.RunStore.(*storage.JSONLRunLog); !ok {
		t.Errorf("default run store = %T, want JSONL", app.RunStore)
	}
	if app.EventLog == nil || app.AlertEngine == nil || app.MetricsCalc == nil {
		t.Error("observability services not wired")
	}
	if app.Notifier != nil {
		t.Error("notifier should stay nil without a webhook")
	}
	if cli.TaskMgr != app.TaskMgr || cli.Store != app.Store || cli.BasePath != app.BasePath {
		t.Error("CLI package variables not wired to the app")
	}
}

func TestNewApp_SQLiteRunsAndNotifier(t *testing.T) {
	app := newTestApp(t, `storage:
  dir: data
  runs_backend: sqlite
notifications:
  enabled: true
  slack:
    webhook_url: https://hooks.example.com/x
`)
	if _, ok := app.RunStore.(*storage.SQLiteRunStore); !ok {
		t.Errorf("run store = %T, want SQLite", app.RunStore)
	}
	if _, err := os.Stat(filepath.Join(app.BasePath, "data", storage.RunsDBFile)); err != nil {
		t.Errorf("sqlite file missing: %v", err)
	}
	if app.Notifier == nil {
		t.Error("notifier not wired")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, core.ConfigFileName), []byte("storage:\n  runs_backend: postgres\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(base); err == nil {
		t.Fatal("expected validation error for unknown runs backend")
	}
}

func TestApp_EndToEnd(t *testing.T) {
	app := newTestApp(t, "")

	blocker, err := app.TaskMgr.CreateTask(core.CreateTaskOpts{Title: "schema"})
	if err != nil {
		t.Fatal(err)
	}
	task, err := app.TaskMgr.CreateTask(core.CreateTaskOpts{Title: "api", BlockedBy: []string{blocker.ID}})
	if err != nil {
		t.Fatal(err)
	}

	counter := &readyCounter{tasks: app.TaskMgr}
	if n, err := counter.ReadyCount(); err != nil || n != 1 {
		t.Fatalf("ReadyCount = %d, %v; want 1", n, err)
	}

	if res := app.TaskMgr.DoneTasks([]string{blocker.ID}, core.DoneOpts{}); !res.OK() {
		t.Fatalf("done failed: %v", res.Err())
	}
	readiness, err := app.TaskMgr.Readiness()
	if err != nil {
		t.Fatal(err)
	}
	if len(readiness.Ready) != 1 || readiness.Ready[0].ID != task.ID {
		t.Errorf("ready after closing blocker = %+v", readiness.Ready)
	}

	reloaded, err := storage.NewFileStore(app.DataDir, app.Config.Storage.LockTimeout)
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := reloaded.LoadTasks()
	if err != nil || len(tasks) != 2 {
		t.Fatalf("persisted tasks = %d, %v", len(tasks), err)
	}

	m, err := app.MetricsCalc.Calculate(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if m.TasksCreated != 2 || m.TasksByStatus[string(models.StatusClosed)] != 1 {
		t.Errorf("metrics = %+v", m)
	}
}
