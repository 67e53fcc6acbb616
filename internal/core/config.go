// Package core contains the business logic for flow: the task state
// machine, dependency graph, readiness and epic status derivation, stuck
// detection, identifier resolution, and configuration.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/flow/pkg/models"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the configuration file in the base directory.
const ConfigFileName = ".flowconfig"

// ConfigurationManager defines the interface for loading and validating the
// .flowconfig file.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
	WriteDefaultConfig() (string, error)
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the root directory where .flowconfig resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns a GlobalConfig populated with defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		Defaults: models.DefaultsConfig{
			Type:       models.TaskTypeTask,
			Priority:   2,
			Complexity: models.ComplexitySimple,
		},
		ID: models.IDConfig{Length: DefaultIDLength},
		Storage: models.StorageConfig{
			Dir:         ".flow",
			RunsBackend: models.RunsBackendJSONL,
			LockTimeout: 5 * time.Second,
		},
		Alerts: models.AlertConfig{
			StaleDays:  3,
			ReviewDays: 5,
			MaxRetries: 3,
			MaxReady:   25,
		},
	}
}

// LoadGlobalConfig reads .flowconfig from the base path using Viper. Keys
// can be overridden with FLOW_* environment variables (FLOW_STORAGE_RUNS_BACKEND
// for storage.runs_backend). A missing file yields the defaults.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	def := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("FLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("defaults.type", string(def.Defaults.Type))
	v.SetDefault("defaults.priority", def.Defaults.Priority)
	v.SetDefault("defaults.complexity", string(def.Defaults.Complexity))
	v.SetDefault("id.length", def.ID.Length)
	v.SetDefault("storage.dir", def.Storage.Dir)
	v.SetDefault("storage.runs_backend", def.Storage.RunsBackend)
	v.SetDefault("storage.lock_timeout", def.Storage.LockTimeout)
	v.SetDefault("alerts.stale_days", def.Alerts.StaleDays)
	v.SetDefault("alerts.review_days", def.Alerts.ReviewDays)
	v.SetDefault("alerts.max_retries", def.Alerts.MaxRetries)
	v.SetDefault("alerts.max_ready", def.Alerts.MaxReady)
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.slack.webhook_url", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg := &models.GlobalConfig{
		Defaults: models.DefaultsConfig{
			Type:       models.TaskType(v.GetString("defaults.type")),
			Priority:   v.GetInt("defaults.priority"),
			Complexity: models.Complexity(v.GetString("defaults.complexity")),
		},
		ID: models.IDConfig{Length: v.GetInt("id.length")},
		Storage: models.StorageConfig{
			Dir:         v.GetString("storage.dir"),
			RunsBackend: v.GetString("storage.runs_backend"),
			LockTimeout: v.GetDuration("storage.lock_timeout"),
		},
		Alerts: models.AlertConfig{
			StaleDays:  v.GetInt("alerts.stale_days"),
			ReviewDays: v.GetInt("alerts.review_days"),
			MaxRetries: v.GetInt("alerts.max_retries"),
			MaxReady:   v.GetInt("alerts.max_ready"),
		},
		Notifications: models.NotificationConfig{
			Enabled: v.GetBool("notifications.enabled"),
			Slack:   models.SlackConfig{WebhookURL: v.GetString("notifications.slack.webhook_url")},
		},
	}
	return cfg, nil
}

// ValidateConfig checks every field and reports all problems at once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if err := validateTaskType(cfg.Defaults.Type); err != nil {
		errs = append(errs, fmt.Sprintf("defaults.type %q is invalid, must be one of: %s", cfg.Defaults.Type, joinValues(models.TaskTypes)))
	}
	if err := validatePriority(cfg.Defaults.Priority); err != nil {
		errs = append(errs, fmt.Sprintf("defaults.priority %d is invalid, must be between 0 and 4", cfg.Defaults.Priority))
	}
	if err := validateComplexity(cfg.Defaults.Complexity); err != nil {
		errs = append(errs, fmt.Sprintf("defaults.complexity %q is invalid, must be one of: %s", cfg.Defaults.Complexity, joinValues(models.Complexities)))
	}
	if cfg.ID.Length < 4 || cfg.ID.Length > 32 {
		errs = append(errs, fmt.Sprintf("id.length %d is invalid, must be between 4 and 32", cfg.ID.Length))
	}
	if strings.TrimSpace(cfg.Storage.Dir) == "" {
		errs = append(errs, "storage.dir must not be empty")
	}
	switch cfg.Storage.RunsBackend {
	case models.RunsBackendJSONL, models.RunsBackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf("storage.runs_backend %q is invalid, must be one of: jsonl, sqlite", cfg.Storage.RunsBackend))
	}
	if cfg.Storage.LockTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("storage.lock_timeout %s must be positive", cfg.Storage.LockTimeout))
	}
	if cfg.Alerts.StaleDays < 1 {
		errs = append(errs, fmt.Sprintf("alerts.stale_days must be at least 1, got %d", cfg.Alerts.StaleDays))
	}
	if cfg.Alerts.ReviewDays < 1 {
		errs = append(errs, fmt.Sprintf("alerts.review_days must be at least 1, got %d", cfg.Alerts.ReviewDays))
	}
	if cfg.Alerts.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("alerts.max_retries must be non-negative, got %d", cfg.Alerts.MaxRetries))
	}
	if cfg.Alerts.MaxReady < 0 {
		errs = append(errs, fmt.Sprintf("alerts.max_ready must be non-negative, got %d", cfg.Alerts.MaxReady))
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL == "" {
		errs = append(errs, "notifications.slack.webhook_url must be set when notifications are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("global config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// configFile is the on-disk layout of .flowconfig.
type configFile struct {
	Defaults struct {
		Type       string `yaml:"type"`
		Priority   int    `yaml:"priority"`
		Complexity string `yaml:"complexity"`
	} `yaml:"defaults"`
	ID struct {
		Length int `yaml:"length"`
	} `yaml:"id"`
	Storage struct {
		Dir         string `yaml:"dir"`
		RunsBackend string `yaml:"runs_backend"`
		LockTimeout string `yaml:"lock_timeout"`
	} `yaml:"storage"`
	Alerts        models.AlertConfig        `yaml:"alerts"`
	Notifications models.NotificationConfig `yaml:"notifications"`
}

// WriteDefaultConfig writes a .flowconfig with default values to the base
// path. An existing file is left untouched. It returns the file path.
func (cm *viperConfigManager) WriteDefaultConfig() (string, error) {
	path := filepath.Join(cm.basePath, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	def := DefaultGlobalConfig()
	var f configFile
	f.Defaults.Type = string(def.Defaults.Type)
	f.Defaults.Priority = def.Defaults.Priority
	f.Defaults.Complexity = string(def.Defaults.Complexity)
	f.ID.Length = def.ID.Length
	f.Storage.Dir = def.Storage.Dir
	f.Storage.RunsBackend = def.Storage.RunsBackend
	f.Storage.LockTimeout = def.Storage.LockTimeout.String()
	f.Alerts = def.Alerts
	f.Notifications = def.Notifications

	data, err := yaml.Marshal(&f)
	if err != nil {
		return "", fmt.Errorf("marshalling default config: %w", err)
	}
	if err := os.MkdirAll(cm.basePath, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", cm.basePath, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
