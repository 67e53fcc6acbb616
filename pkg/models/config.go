package models

import "time"

// Runs backends accepted in storage.runs_backend.
const (
	RunsBackendJSONL  = "jsonl"
	RunsBackendSQLite = "sqlite"
)

// DefaultsConfig holds the values applied to new tasks when flags are omitted.
type DefaultsConfig struct {
	Type       TaskType   `yaml:"type" mapstructure:"type"`
	Priority   int        `yaml:"priority" mapstructure:"priority"`
	Complexity Complexity `yaml:"complexity" mapstructure:"complexity"`
}

// IDConfig controls generated identifiers.
type IDConfig struct {
	Length int `yaml:"length" mapstructure:"length"`
}

// StorageConfig controls where and how entities are persisted.
type StorageConfig struct {
	Dir         string        `yaml:"dir" mapstructure:"dir"`
	RunsBackend string        `yaml:"runs_backend" mapstructure:"runs_backend"`
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// AlertConfig holds alert thresholds from the alerts section.
type AlertConfig struct {
	StaleDays  int `yaml:"stale_days" mapstructure:"stale_days"`
	ReviewDays int `yaml:"review_days" mapstructure:"review_days"`
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
	MaxReady   int `yaml:"max_ready" mapstructure:"max_ready"`
}

// SlackConfig holds the incoming webhook used for alert notifications.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig controls outbound alert delivery.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// GlobalConfig holds the settings read from .flowconfig via Viper.
type GlobalConfig struct {
	Defaults      DefaultsConfig     `yaml:"defaults" mapstructure:"defaults"`
	ID            IDConfig           `yaml:"id" mapstructure:"id"`
	Storage       StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Alerts        AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}
