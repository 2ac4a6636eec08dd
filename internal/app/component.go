// Package app 组装并运行 ghostline 的各个组件
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"ghostline-core/internal/api"
	"ghostline-core/internal/broker"
	"ghostline-core/internal/config/schema"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
	"ghostline-core/internal/executor"
	"ghostline-core/internal/health"
	"ghostline-core/internal/monitor"
	"ghostline-core/internal/provision"
	"ghostline-core/internal/repos"
	"ghostline-core/internal/scheduler"
	"ghostline-core/internal/subscription"
	"ghostline-core/internal/xray/account"
	"ghostline-core/internal/xray/link"
	"ghostline-core/internal/xray/xrayconf"
)

// Component 应用组件
// 每个组件从 Dependencies 取依赖，初始化完成后把自己的产出写回
type Component interface {
	// Name 返回组件名称（用于日志和错误信息）
	Name() string

	// Initialize 初始化组件；返回 error 时应用停止启动
	Initialize(ctx context.Context, deps *Dependencies) error
}

// Dependencies 依赖容器
type Dependencies struct {
	Config   *schema.Root
	Logger   corelog.Logger
	Clock    quartz.Clock
	Location *time.Location
	Instance string

	// 基础设施层
	Metrics metrics.Metrics
	Backend executor.Backend
	Repos   *repos.Set
	Broker  broker.MessageBroker

	// 代理配置
	Store *xrayconf.Store
	Sync  *account.Synchronizer
	Links *link.Generator

	// 业务层
	Subscriptions *subscription.Service
	Expiry        *subscription.ExpiryJob
	Provision     *provision.Service
	Monitor       *monitor.Monitor

	// 运行时
	Scheduler *scheduler.Scheduler
	Health    *health.HealthManager
	Checker   *health.CompositeHealthChecker
	API       *api.Server

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// OnClose 注册关闭动作，按注册的逆序执行
func (d *Dependencies) OnClose(name string, fn func() error) {
	d.closers = append(d.closers, namedCloser{name: name, fn: fn})
}

// publisher 未配置消息代理时返回 nil 接口
func (d *Dependencies) publisher() broker.Publisher {
	if d.Broker == nil {
		return nil
	}
	return d.Broker
}

// ComponentError 组件初始化错误
type ComponentError struct {
	ComponentName string
	Err           error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s initialization failed: %v", e.ComponentName, e.Err)
}

func (e *ComponentError) Unwrap() error {
	return e.Err
}

// NewComponentError 创建组件错误
func NewComponentError(name string, err error) *ComponentError {
	return &ComponentError{
		ComponentName: name,
		Err:           err,
	}
}

func requires(component string, missing ...string) error {
	return fmt.Errorf("%s requires %v", component, missing)
}
