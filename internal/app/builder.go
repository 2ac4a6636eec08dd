package app

import (
	"context"
	"os"

	"github.com/coder/quartz"

	"ghostline-core/internal/config/schema"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/subscription"
)

// Builder 应用构建器
// 按依赖顺序组装组件，一次性命令只组装需要的部分
type Builder struct {
	config     *schema.Root
	logger     corelog.Logger
	clock      quartz.Clock
	components []Component
}

// NewBuilder 创建应用构建器
func NewBuilder(cfg *schema.Root, logger corelog.Logger) *Builder {
	if logger == nil {
		logger = corelog.Default()
	}
	return &Builder{config: cfg, logger: logger}
}

// WithClock 替换时钟（测试用）
func (b *Builder) WithClock(clock quartz.Clock) *Builder {
	b.clock = clock
	return b
}

// With 添加组件
func (b *Builder) With(components ...Component) *Builder {
	b.components = append(b.components, components...)
	return b
}

// WithProxy 只访问代理配置（link、clients、cleanup 命令）
func (b *Builder) WithProxy() *Builder {
	return b.With(
		&MetricsComponent{},
		&ExecutorComponent{},
		&XrayComponent{},
	)
}

// WithServices 全部业务组件，不含调度器和 HTTP API
func (b *Builder) WithServices() *Builder {
	return b.With(
		&MetricsComponent{},
		&ExecutorComponent{},
		&StorageComponent{},
		&BrokerComponent{},
		&XrayComponent{},
		&SubscriptionComponent{},
		&ProvisionComponent{},
		&MonitorComponent{},
		&HealthComponent{},
	)
}

// WithDefaults serve 命令使用的完整组合
func (b *Builder) WithDefaults() *Builder {
	return b.WithServices().With(
		&SchedulerComponent{},
		&APIComponent{},
	)
}

// Build 按顺序初始化所有组件；任何组件失败都会关闭已初始化的部分
func (b *Builder) Build(ctx context.Context) (*App, error) {
	loc, err := subscription.LoadLocation(b.config.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}
	clock := b.clock
	if clock == nil {
		clock = quartz.NewReal()
	}

	deps := &Dependencies{
		Config:   b.config,
		Logger:   b.logger,
		Clock:    clock,
		Location: loc,
		Instance: instanceName(),
	}
	a := &App{deps: deps, logger: b.logger.WithField(corelog.FieldComponent, "app")}

	for _, c := range b.components {
		a.logger.Debugf("initializing component: %s", c.Name())
		if err := c.Initialize(ctx, deps); err != nil {
			if closeErr := a.Close(); closeErr != nil {
				a.logger.WithError(closeErr).Warnf("cleanup after failed start")
			}
			return nil, NewComponentError(c.Name(), err)
		}
	}
	return a, nil
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "ghostline"
	}
	return "ghostline@" + host
}

// mustHave 一次性命令在组件缺失时的错误
func mustHave(ok bool, what string) error {
	if ok {
		return nil
	}
	return coreerrors.Newf(coreerrors.CodeNotConfigured, "%s is not initialized", what)
}
