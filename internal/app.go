// Package internal provides the App struct that wires every flow component
// together and hands the services to the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/flow/internal/cli"
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/internal/integration"
	"github.com/valter-silva-au/flow/internal/observability"
	"github.com/valter-silva-au/flow/internal/storage"
	"github.com/valter-silva-au/flow/pkg/models"
)

// App holds all service dependencies for flow.
type App struct {
	BasePath string
	DataDir  string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.GlobalConfig

	// Storage layer
	Store    *storage.FileStore
	RunStore core.RunStore

	// Core services
	Resolver   core.IDResolver
	IDGen      core.IDGenerator
	TaskMgr    core.TaskManager
	DepGraph   core.DependencyGraph
	EpicMgr    core.EpicManager
	BacklogMgr core.BacklogManager
	StuckDt    core.StuckDetector
	RunRec     core.RunRecorder

	// Integration services
	Procs *integration.ProcessChecker

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier

	closers []func() error
}

// NewApp loads configuration from basePath, opens the data directory it names
// and wires every service. The CLI package variables are set as a side effect.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Storage layer ---
	app.DataDir = cfg.Storage.Dir
	if !filepath.IsAbs(app.DataDir) {
		app.DataDir = filepath.Join(basePath, app.DataDir)
	}
	app.Store, err = storage.NewFileStore(app.DataDir, cfg.Storage.LockTimeout)
	if err != nil {
		return nil, err
	}
	switch cfg.Storage.RunsBackend {
	case models.RunsBackendSQLite:
		runs, err := storage.OpenSQLiteRunStore(filepath.Join(app.DataDir, storage.RunsDBFile))
		if err != nil {
			return nil, err
		}
		app.RunStore = runs
		app.closers = append(app.closers, runs.Close)
	default:
		app.RunStore = storage.NewJSONLRunLog(filepath.Join(app.DataDir, storage.RunsFile))
	}

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(app.DataDir, observability.EventsFile))
	if err != nil {
		// Non-fatal: run without an event log.
		app.EventLog = nil
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = observability.NewRecorder(app.EventLog)
		app.closers = append(app.closers, app.EventLog.Close)
	}

	// --- Core services ---
	defaults := core.TaskDefaults{
		Type:       cfg.Defaults.Type,
		Priority:   cfg.Defaults.Priority,
		Complexity: cfg.Defaults.Complexity,
	}
	app.Resolver = core.NewIDResolver(app.Store)
	app.IDGen = core.NewIDGenerator(app.Store, cfg.ID.Length)
	app.TaskMgr = core.NewTaskManager(app.Store, app.Resolver, app.IDGen, events, defaults)
	app.DepGraph = core.NewDependencyGraph(app.Store, app.Resolver, events)
	app.EpicMgr = core.NewEpicManager(app.Store, app.Resolver, app.IDGen, events)
	app.BacklogMgr = core.NewBacklogManager(app.Store, app.Resolver, app.IDGen, events, defaults)
	app.RunRec = core.NewRunRecorder(app.RunStore, app.Resolver, events)

	// --- Integration services ---
	app.Procs = integration.NewProcessChecker()
	app.StuckDt = core.NewStuckDetector(app.Store, app.Procs)

	if app.EventLog != nil {
		thresholds := observability.DefaultAlertThresholds()
		if cfg.Alerts.StaleDays > 0 {
			thresholds.StaleDays = cfg.Alerts.StaleDays
		}
		if cfg.Alerts.ReviewDays > 0 {
			thresholds.ReviewDays = cfg.Alerts.ReviewDays
		}
		if cfg.Alerts.MaxRetries > 0 {
			thresholds.MaxRetries = cfg.Alerts.MaxRetries
		}
		if cfg.Alerts.MaxReady > 0 {
			thresholds.MaxReady = cfg.Alerts.MaxReady
		}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, &readyCounter{tasks: app.TaskMgr}, thresholds)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.ConfigMgr = app.ConfigMgr
	cli.Config = cfg
	cli.Store = app.Store
	cli.TaskMgr = app.TaskMgr
	cli.DepGraph = app.DepGraph
	cli.EpicMgr = app.EpicMgr
	cli.BacklogMgr = app.BacklogMgr
	cli.StuckDt = app.StuckDt
	cli.RunRec = app.RunRec

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// Close releases the event log and run store handles.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing app: %w", err)
		}
	}
	a.closers = nil
	return firstErr
}

// ResolveBasePath determines the directory holding .flowconfig. FLOW_HOME
// wins; otherwise the nearest ancestor of the working directory with a
// .flowconfig, falling back to the working directory itself.
func ResolveBasePath() string {
	if home := os.Getenv("FLOW_HOME"); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

// --- Adapters ---

// readyCounter adapts core.TaskManager to observability.ReadyCounter.
type readyCounter struct {
	tasks core.TaskManager
}

func (r *readyCounter) ReadyCount() (int, error) {
	readiness, err := r.tasks.Readiness()
	if err != nil {
		return 0, err
	}
	return readiness.Available(), nil
}
