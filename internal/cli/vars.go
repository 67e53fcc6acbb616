package cli

import (
	"github.com/valter-silva-au/flow/internal/core"
	"github.com/valter-silva-au/flow/internal/observability"
	"github.com/valter-silva-au/flow/pkg/models"
)

// BasePath is the directory holding .flowconfig, set by app.go.
var BasePath string

// Core service instances, set during app initialization in app.go.
var (
	ConfigMgr  core.ConfigurationManager
	Config     *models.GlobalConfig
	Store      core.Store
	TaskMgr    core.TaskManager
	DepGraph   core.DependencyGraph
	EpicMgr    core.EpicManager
	BacklogMgr core.BacklogManager
	StuckDt    core.StuckDetector
	RunRec     core.RunRecorder
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)
