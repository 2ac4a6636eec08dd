package app

import (
	"context"
	"time"

	"ghostline-core/internal/api"
	"ghostline-core/internal/broker"
	"ghostline-core/internal/core/metrics"
	"ghostline-core/internal/executor"
	"ghostline-core/internal/health"
	"ghostline-core/internal/monitor"
	"ghostline-core/internal/provision"
	"ghostline-core/internal/repos"
	"ghostline-core/internal/scheduler"
	"ghostline-core/internal/subscription"
	"ghostline-core/internal/xray/accesslog"
	"ghostline-core/internal/xray/account"
	"ghostline-core/internal/xray/link"
	"ghostline-core/internal/xray/xrayconf"
)

// MetricsComponent 指标收集器
type MetricsComponent struct{}

func (c *MetricsComponent) Name() string { return "metrics" }

func (c *MetricsComponent) Initialize(_ context.Context, deps *Dependencies) error {
	m, err := metrics.New(metrics.MetricsType(deps.Config.Metrics.Type))
	if err != nil {
		return err
	}
	metrics.SetGlobal(m)
	deps.Metrics = m
	deps.OnClose(c.Name(), m.Close)
	return nil
}

// ExecutorComponent 本地或 SSH 执行后端
type ExecutorComponent struct{}

func (c *ExecutorComponent) Name() string { return "executor" }

func (c *ExecutorComponent) Initialize(_ context.Context, deps *Dependencies) error {
	backend, err := executor.New(deps.Config.Executor, deps.Logger, deps.Metrics)
	if err != nil {
		return err
	}
	deps.Backend = backend
	deps.OnClose(c.Name(), backend.Close)
	deps.Logger.Infof("execution backend: %s", backend.Name())
	return nil
}

// StorageComponent 账户与订阅仓库
type StorageComponent struct{}

func (c *StorageComponent) Name() string { return "storage" }

func (c *StorageComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	set, err := repos.Open(ctx, deps.Config.Database, deps.Logger)
	if err != nil {
		return err
	}
	deps.Repos = set
	deps.OnClose(c.Name(), set.Close)
	return nil
}

// BrokerComponent 事件消息代理
type BrokerComponent struct{}

func (c *BrokerComponent) Name() string { return "broker" }

func (c *BrokerComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	b, err := broker.New(ctx, deps.Config.Broker, deps.Instance, deps.Logger)
	if err != nil {
		return err
	}
	deps.Broker = b
	deps.OnClose(c.Name(), b.Close)
	return nil
}

// XrayComponent 代理配置访问、账户同步与链接生成
type XrayComponent struct{}

func (c *XrayComponent) Name() string { return "xray" }

func (c *XrayComponent) Initialize(ctx context.Context, deps *Dependencies) error {
	if deps.Backend == nil {
		return requires(c.Name(), "executor")
	}
	cfg := deps.Config

	deps.Store = xrayconf.NewStore(deps.Backend, cfg.Xray.ConfigPath, deps.Logger)
	deps.Sync = account.New(account.Config{
		Backend:        deps.Backend,
		Store:          deps.Store,
		Flow:           cfg.Xray.Flow,
		RestartCommand: cfg.Xray.RestartCommand,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
		Publisher:      deps.publisher(),
	})
	deps.Links = link.NewGenerator(deps.Store, link.OptionsFromConfig(cfg), deps.Logger)

	if cfg.Xray.InjectKeys {
		changed, err := deps.Sync.ApplyRealityKeys(ctx, cfg.Xray.PrivateKey.Value(), cfg.Xray.ShortID)
		if err != nil {
			return err
		}
		if changed {
			deps.Logger.Infof("reality keys written to %s", cfg.Xray.ConfigPath)
		}
	}
	return nil
}

// SubscriptionComponent 订阅服务与到期扫描
type SubscriptionComponent struct{}

func (c *SubscriptionComponent) Name() string { return "subscription" }

func (c *SubscriptionComponent) Initialize(_ context.Context, deps *Dependencies) error {
	if deps.Repos == nil || deps.Sync == nil {
		return requires(c.Name(), "storage", "xray")
	}
	deps.Subscriptions = subscription.NewService(subscription.ServiceConfig{
		Subscriptions: deps.Repos.Subscriptions,
		Location:      deps.Location,
		Clock:         deps.Clock,
		Logger:        deps.Logger,
		Metrics:       deps.Metrics,
		Publisher:     deps.publisher(),
	})
	deps.Expiry = subscription.NewExpiryJob(subscription.ExpiryConfig{
		Subscriptions: deps.Repos.Subscriptions,
		Remover:       deps.Sync,
		Location:      deps.Location,
		Clock:         deps.Clock,
		Logger:        deps.Logger,
		Metrics:       deps.Metrics,
		Publisher:     deps.publisher(),
	})
	return nil
}

// ProvisionComponent 开通入口
type ProvisionComponent struct{}

func (c *ProvisionComponent) Name() string { return "provision" }

func (c *ProvisionComponent) Initialize(_ context.Context, deps *Dependencies) error {
	if deps.Subscriptions == nil {
		return requires(c.Name(), "subscription")
	}
	cfg := deps.Config
	opts := link.OptionsFromConfig(cfg)
	deps.Provision = provision.New(provision.Config{
		Accounts:      deps.Repos.Accounts,
		Subscriptions: deps.Subscriptions,
		Syncer:        deps.Sync,
		Links:         deps.Links,
		ProxyConfig:   deps.Store,
		Defaults: provision.AccountDefaults{
			Server:       opts.Host,
			Port:         opts.Port,
			PublicKey:    cfg.Xray.PublicKey,
			SNI:          cfg.Xray.SNI,
			Flow:         cfg.Xray.Flow,
			DevicesLimit: cfg.Xray.DefaultDevicesLimit,
		},
		Logger: deps.Logger,
	})
	return nil
}

// MonitorComponent 设备数监控
type MonitorComponent struct{}

func (c *MonitorComponent) Name() string { return "monitor" }

func (c *MonitorComponent) Initialize(_ context.Context, deps *Dependencies) error {
	if deps.Repos == nil || deps.Sync == nil {
		return requires(c.Name(), "storage", "xray")
	}
	deps.Monitor = monitor.New(monitor.Config{
		Backend:            deps.Backend,
		LogsPath:           deps.Config.Xray.LogsPath,
		Parser:             accesslog.NewRegexParser(deps.Location),
		Accounts:           deps.Repos.Accounts,
		Subscriptions:      deps.Repos.Subscriptions,
		Syncer:             deps.Sync,
		ReleaseIdleBlocked: deps.Config.Monitor.ReleaseIdleBlocked,
		Clock:              deps.Clock,
		Logger:             deps.Logger,
		Metrics:            deps.Metrics,
		Publisher:          deps.publisher(),
	})
	return nil
}

// HealthComponent 服务状态与组件检查
type HealthComponent struct{}

func (c *HealthComponent) Name() string { return "health" }

func (c *HealthComponent) Initialize(_ context.Context, deps *Dependencies) error {
	deps.Health = health.NewHealthManager(deps.Instance, deps.Config.App.Env, deps.Clock)
	deps.Health.SetDetail("executor", deps.Config.Executor.Mode)
	deps.Health.SetDetail("database", deps.Config.Database.Type)

	deps.Checker = health.NewCompositeHealthChecker(5 * time.Second)
	if deps.Repos != nil {
		deps.Checker.RegisterChecker("storage", health.NewStorageHealthChecker(deps.Repos))
	}
	if deps.Broker != nil {
		deps.Checker.RegisterChecker("broker", health.NewBrokerHealthChecker(deps.Broker))
	}
	if deps.Store != nil {
		store := deps.Store
		deps.Checker.RegisterChecker("proxy_config", health.NewPingHealthChecker("proxy_config",
			health.PingFunc(func(ctx context.Context) error {
				_, err := store.Read(ctx)
				return err
			}), health.ComponentStatusUnhealthy))
	}
	return nil
}

// SchedulerComponent 周期任务
type SchedulerComponent struct{}

func (c *SchedulerComponent) Name() string { return "scheduler" }

func (c *SchedulerComponent) Initialize(_ context.Context, deps *Dependencies) error {
	cfg := deps.Config.Scheduler
	s := scheduler.New(deps.Location, deps.Logger, deps.Metrics)

	if deps.Expiry != nil {
		if err := s.Register(scheduler.Every(cfg.ExpiryInterval), deps.Expiry); err != nil {
			return err
		}
	}
	if deps.Monitor != nil && deps.Config.Monitor.Enabled {
		if err := s.Register(scheduler.Every(cfg.MonitorInterval), deps.Monitor); err != nil {
			return err
		}
	}
	deps.Scheduler = s
	return nil
}

// APIComponent 开通 HTTP API
type APIComponent struct{}

func (c *APIComponent) Name() string { return "api" }

func (c *APIComponent) Initialize(_ context.Context, deps *Dependencies) error {
	if !deps.Config.API.Enabled {
		return nil
	}
	if deps.Provision == nil {
		return requires(c.Name(), "provision")
	}
	deps.API = api.NewServer(deps.Config.API, api.Deps{
		Provision: deps.Provision,
		Clients:   deps.Sync,
		Health:    deps.Health,
		Checker:   deps.Checker,
		Metrics:   deps.Metrics,
		Logger:    deps.Logger,
	})
	return nil
}
