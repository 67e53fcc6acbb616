package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/internal/observability"
	"github.com/valter-silva-au/flow/internal/storage"
	"github.com/valter-silva-au/flow/pkg/models"
)

type fakeProcs map[int]bool

func (f fakeProcs) IsProcessAlive(pid int) bool { return f[pid] }

// testEnv wires real services over a temporary data directory into the
// package variables and restores the previous values on cleanup.
type testEnv struct {
	dir   string
	store *storage.FileStore
	log   observability.EventLog
	procs fakeProcs
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	saveGlobals(t)

	dir := t.TempDir()
	store, err := storage.NewFileStore(filepath.Join(dir, ".flow"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	log, err := observability.NewJSONLEventLog(filepath.Join(dir, ".flow", observability.EventsFile))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = log.Close() })

	env := &testEnv{dir: dir, store: store, log: log, procs: fakeProcs{}}
	events := observability.NewRecorder(log)
	defaults := core.TaskDefaults{Type: models.TaskTypeTask, Priority: 2, Complexity: models.ComplexitySimple}
	resolver := core.NewIDResolver(store)
	ids := core.NewIDGenerator(store, 8)

	BasePath = dir
	ConfigMgr = core.NewConfigurationManager(dir)
	Store = store
	TaskMgr = core.NewTaskManager(store, resolver, ids, events, defaults)
	DepGraph = core.NewDependencyGraph(store, resolver, events)
	EpicMgr = core.NewEpicManager(store, resolver, ids, events)
	BacklogMgr = core.NewBacklogManager(store, resolver, ids, events, defaults)
	StuckDt = core.NewStuckDetector(store, env.procs)
	RunRec = core.NewRunRecorder(storage.NewJSONLRunLog(filepath.Join(dir, ".flow", storage.RunsFile)), resolver, events)
	EventLog = log
	MetricsCalc = observability.NewMetricsCalculator(log)
	AlertEngine = observability.NewAlertEngine(log, nil, observability.DefaultAlertThresholds())
	Notifier = nil
	return env
}

// saveGlobals clears every service variable for the test and restores the
// previous values afterwards.
func saveGlobals(t *testing.T) {
	t.Helper()
	prevBase, prevCfgMgr, prevCfg, prevStore := BasePath, ConfigMgr, Config, Store
	prevTask, prevDep, prevEpic, prevBacklog := TaskMgr, DepGraph, EpicMgr, BacklogMgr
	prevStuck, prevRun := StuckDt, RunRec
	prevLog, prevAlerts, prevMetrics, prevNotifier := EventLog, AlertEngine, MetricsCalc, Notifier
	t.Cleanup(func() {
		BasePath, ConfigMgr, Config, Store = prevBase, prevCfgMgr, prevCfg, prevStore
		TaskMgr, DepGraph, EpicMgr, BacklogMgr = prevTask, prevDep, prevEpic, prevBacklog
		StuckDt, RunRec = prevStuck, prevRun
		EventLog, AlertEngine, MetricsCalc, Notifier = prevLog, prevAlerts, prevMetrics, prevNotifier
	})
	BasePath, ConfigMgr, Config, Store = "", nil, nil, nil
	TaskMgr, DepGraph, EpicMgr, BacklogMgr = nil, nil, nil, nil
	StuckDt, RunRec = nil, nil
	EventLog, AlertEngine, MetricsCalc, Notifier = nil, nil, nil, nil
}

// execute runs the root command with args and returns everything written to
// stdout and stderr. Flag values are reset afterwards since cobra keeps them
// between executions.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	defer func() {
		resetFlags(rootCmd)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// mustExecute fails the test when the command returns an error.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("flow %v: %v\n%s", args, err, out)
	}
	return out
}

// createTask creates a task through the task manager and returns its ID.
func createTask(t *testing.T, title string, blockedBy ...string) string {
	t.Helper()
	task, err := TaskMgr.CreateTask(core.CreateTaskOpts{Title: title, BlockedBy: blockedBy})
	if err != nil {
		t.Fatalf("creating %q: %v", title, err)
	}
	return task.ID
}

func findCommand(parent *cobra.Command, name string) *cobra.Command {
	for _, c := range parent.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}
