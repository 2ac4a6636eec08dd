package source

import (
	"time"

	"ghostline-core/internal/config/schema"
)

// DefaultSource provides default configuration values
type DefaultSource struct{}

// NewDefaultSource creates a new DefaultSource
func NewDefaultSource() *DefaultSource {
	return &DefaultSource{}
}

// Name returns the source name
func (s *DefaultSource) Name() string {
	return "defaults"
}

// Priority returns the source priority
func (s *DefaultSource) Priority() int {
	return PriorityDefaults
}

// LoadInto loads default values into the configuration
func (s *DefaultSource) LoadInto(cfg *schema.Root) error {
	cfg.App.Env = "production"

	cfg.Log.Level = "info"
	cfg.Log.Format = schema.LogFormatText
	cfg.Log.Console = true

	cfg.Executor.Mode = schema.ExecutorModeLocal
	cfg.Executor.CommandTimeout = 30 * time.Second
	cfg.Executor.Remote.Port = 22
	cfg.Executor.Remote.User = "root"
	cfg.Executor.Remote.UseSudo = true
	cfg.Executor.Remote.DialTimeout = 10 * time.Second

	cfg.Xray.ConfigPath = "/usr/local/etc/xray/config.json"
	cfg.Xray.LogsPath = "/var/log/xray/access.log"
	cfg.Xray.RestartCommand = "docker restart ghostline_xray"
	cfg.Xray.LinkTag = "ghostline"
	cfg.Xray.LinkPort = 443
	cfg.Xray.SNI = "www.microsoft.com"
	cfg.Xray.DefaultDevicesLimit = 3

	cfg.Database.Type = schema.DatabaseMemory
	cfg.Database.MaxConns = 10
	cfg.Database.MinConns = 1
	cfg.Database.MaxConnLifetime = time.Hour

	cfg.Broker.Type = schema.BrokerMemory
	cfg.Broker.ChannelPrefix = "ghostline"
	cfg.Broker.Redis.Addr = "localhost:6379"
	cfg.Broker.Redis.PoolSize = 10

	cfg.Scheduler.Timezone = "Europe/Moscow"
	cfg.Scheduler.MonitorInterval = 5 * time.Minute
	cfg.Scheduler.ExpiryInterval = time.Minute
	cfg.Scheduler.RunOnStart = true

	cfg.Monitor.Enabled = true

	cfg.API.Enabled = false
	cfg.API.Listen = "127.0.0.1:8080"
	cfg.API.RateLimitRPS = 10
	cfg.API.RateLimitBurst = 20

	cfg.Metrics.Type = "memory"

	return nil
}
