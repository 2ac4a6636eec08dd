package source

import (
	"os"
	"strconv"
	"time"

	"ghostline-core/internal/config/schema"
)

// EnvSource loads configuration from PREFIX_* environment variables
type EnvSource struct {
	prefix string
}

// NewEnvSource creates a new EnvSource with the specified prefix
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{
		prefix: prefix,
	}
}

// Name returns the source name
func (s *EnvSource) Name() string {
	return "env"
}

// Priority returns the source priority
func (s *EnvSource) Priority() int {
	return PriorityEnv
}

// LoadInto loads environment variables into the config structure
func (s *EnvSource) LoadInto(cfg *schema.Root) error {
	s.loadString("APP_ENV", &cfg.App.Env)

	// Log
	s.loadString("LOG_LEVEL", &cfg.Log.Level)
	s.loadString("LOG_FORMAT", &cfg.Log.Format)
	s.loadString("LOG_FILE", &cfg.Log.File)
	s.loadBool("LOG_CONSOLE", &cfg.Log.Console)

	// Executor
	s.loadString("EXECUTOR_MODE", &cfg.Executor.Mode)
	s.loadDuration("EXECUTOR_COMMAND_TIMEOUT", &cfg.Executor.CommandTimeout)
	s.loadString("REMOTE_HOST", &cfg.Executor.Remote.Host)
	s.loadInt("REMOTE_PORT", &cfg.Executor.Remote.Port)
	s.loadString("REMOTE_USER", &cfg.Executor.Remote.User)
	s.loadString("REMOTE_KEY_PATH", &cfg.Executor.Remote.KeyPath)
	s.loadSecret("REMOTE_KEY_PASSPHRASE", &cfg.Executor.Remote.KeyPassphrase)
	s.loadString("REMOTE_KNOWN_HOSTS", &cfg.Executor.Remote.KnownHosts)
	s.loadBool("REMOTE_USE_SUDO", &cfg.Executor.Remote.UseSudo)
	s.loadDuration("REMOTE_DIAL_TIMEOUT", &cfg.Executor.Remote.DialTimeout)

	// Xray
	s.loadString("XRAY_CONFIG_PATH", &cfg.Xray.ConfigPath)
	s.loadString("XRAY_LOGS_PATH", &cfg.Xray.LogsPath)
	s.loadString("XRAY_RESTART_COMMAND", &cfg.Xray.RestartCommand)
	s.loadString("XRAY_FLOW", &cfg.Xray.Flow)
	s.loadString("XRAY_PUBLIC_KEY", &cfg.Xray.PublicKey)
	s.loadSecret("XRAY_PRIVATE_KEY", &cfg.Xray.PrivateKey)
	s.loadString("XRAY_SHORT_ID", &cfg.Xray.ShortID)
	s.loadBool("XRAY_INJECT_KEYS", &cfg.Xray.InjectKeys)
	s.loadString("XRAY_LISTEN_ADDRESS", &cfg.Xray.ListenAddress)
	s.loadString("XRAY_LINK_TAG", &cfg.Xray.LinkTag)
	s.loadInt("XRAY_LINK_PORT", &cfg.Xray.LinkPort)
	s.loadString("XRAY_SNI", &cfg.Xray.SNI)
	s.loadInt("XRAY_DEFAULT_DEVICES_LIMIT", &cfg.Xray.DefaultDevicesLimit)

	// Database
	s.loadString("DATABASE_TYPE", &cfg.Database.Type)
	s.loadSecret("DATABASE_DSN", &cfg.Database.DSN)
	s.loadInt32("DATABASE_MAX_CONNS", &cfg.Database.MaxConns)
	s.loadInt32("DATABASE_MIN_CONNS", &cfg.Database.MinConns)
	s.loadDuration("DATABASE_MAX_CONN_LIFETIME", &cfg.Database.MaxConnLifetime)
	s.loadBool("DATABASE_AUTO_MIGRATE", &cfg.Database.AutoMigrate)

	// Broker
	s.loadString("BROKER_TYPE", &cfg.Broker.Type)
	s.loadString("BROKER_CHANNEL_PREFIX", &cfg.Broker.ChannelPrefix)
	s.loadString("REDIS_ADDR", &cfg.Broker.Redis.Addr)
	s.loadSecret("REDIS_PASSWORD", &cfg.Broker.Redis.Password)
	s.loadInt("REDIS_DB", &cfg.Broker.Redis.DB)
	s.loadInt("REDIS_POOL_SIZE", &cfg.Broker.Redis.PoolSize)

	// Scheduler / monitor
	s.loadString("SCHEDULER_TIMEZONE", &cfg.Scheduler.Timezone)
	s.loadDuration("SCHEDULER_MONITOR_INTERVAL", &cfg.Scheduler.MonitorInterval)
	s.loadDuration("SCHEDULER_EXPIRY_INTERVAL", &cfg.Scheduler.ExpiryInterval)
	s.loadBool("SCHEDULER_RUN_ON_START", &cfg.Scheduler.RunOnStart)
	s.loadBool("MONITOR_ENABLED", &cfg.Monitor.Enabled)
	s.loadBool("MONITOR_RELEASE_IDLE_BLOCKED", &cfg.Monitor.ReleaseIdleBlocked)

	// API
	s.loadBool("API_ENABLED", &cfg.API.Enabled)
	s.loadString("API_LISTEN", &cfg.API.Listen)
	s.loadSecret("API_TOKEN", &cfg.API.Token)
	s.loadFloat("API_RATE_LIMIT_RPS", &cfg.API.RateLimitRPS)
	s.loadInt("API_RATE_LIMIT_BURST", &cfg.API.RateLimitBurst)

	s.loadString("METRICS_TYPE", &cfg.Metrics.Type)

	return nil
}

// getEnv gets environment variable with the configured prefix
func (s *EnvSource) getEnv(key string) (string, bool) {
	if v := os.Getenv(s.prefix + "_" + key); v != "" {
		return v, true
	}
	return "", false
}

func (s *EnvSource) loadString(key string, target *string) {
	if v, ok := s.getEnv(key); ok {
		*target = v
	}
}

func (s *EnvSource) loadSecret(key string, target *schema.Secret) {
	if v, ok := s.getEnv(key); ok {
		*target = schema.Secret(v)
	}
}

func (s *EnvSource) loadBool(key string, target *bool) {
	if v, ok := s.getEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func (s *EnvSource) loadInt(key string, target *int) {
	if v, ok := s.getEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func (s *EnvSource) loadInt32(key string, target *int32) {
	if v, ok := s.getEnv(key); ok {
		if i, err := strconv.ParseInt(v, 10, 32); err == nil {
			*target = int32(i)
		}
	}
}

func (s *EnvSource) loadFloat(key string, target *float64) {
	if v, ok := s.getEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func (s *EnvSource) loadDuration(key string, target *time.Duration) {
	if v, ok := s.getEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
