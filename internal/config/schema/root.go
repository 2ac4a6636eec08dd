// Package schema defines configuration structure types
package schema

import "time"

// Root is the top-level configuration structure
type Root struct {
	App       AppConfig       `yaml:"app" json:"app"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Executor  ExecutorConfig  `yaml:"executor" json:"executor"`
	Xray      XrayConfig      `yaml:"xray" json:"xray"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Broker    BrokerConfig    `yaml:"broker" json:"broker"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Monitor   MonitorConfig   `yaml:"monitor" json:"monitor"`
	API       APIConfig       `yaml:"api" json:"api"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// AppConfig contains process-wide settings
type AppConfig struct {
	Env string `yaml:"env" json:"env"` // development / production, selects .env.{env}
}

// SchedulerConfig controls the periodic jobs
type SchedulerConfig struct {
	Timezone        string        `yaml:"timezone" json:"timezone"`
	MonitorInterval time.Duration `yaml:"monitor_interval" json:"monitor_interval"`
	ExpiryInterval  time.Duration `yaml:"expiry_interval" json:"expiry_interval"`
	RunOnStart      bool          `yaml:"run_on_start" json:"run_on_start"`
}

// MonitorConfig controls device-limit enforcement
type MonitorConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// ReleaseIdleBlocked treats blocked users absent from the access log as having no devices
	ReleaseIdleBlocked bool `yaml:"release_idle_blocked" json:"release_idle_blocked"`
}

// APIConfig contains the provisioning HTTP API settings
type APIConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	Listen         string  `yaml:"listen" json:"listen"`
	Token          Secret  `yaml:"token" json:"token"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// MetricsConfig selects the metrics backend
type MetricsConfig struct {
	Type string `yaml:"type" json:"type"` // memory / prometheus
}

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LogConfig contains logging configuration
type LogConfig struct {
	Level   string `yaml:"level" json:"level"`     // debug/info/warn/error
	Format  string `yaml:"format" json:"format"`   // text/json
	File    string `yaml:"file" json:"file"`       // log file path
	Console bool   `yaml:"console" json:"console"` // also output to console
}
