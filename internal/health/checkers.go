package health

import (
	"context"
	"time"
)

// Pinger 可被探测的依赖（存储、消息代理、执行后端）
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 把函数适配为 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PingHealthChecker 基于 Ping 的检查器
type PingHealthChecker struct {
	name      string
	target    Pinger
	onFailure ComponentStatus
}

// NewPingHealthChecker 创建检查器；Ping 失败时报告 onFailure 状态
func NewPingHealthChecker(name string, target Pinger, onFailure ComponentStatus) *PingHealthChecker {
	if onFailure == "" {
		onFailure = ComponentStatusUnhealthy
	}
	return &PingHealthChecker{name: name, target: target, onFailure: onFailure}
}

// NewStorageHealthChecker 存储不可用即不健康
func NewStorageHealthChecker(storage Pinger) *PingHealthChecker {
	return NewPingHealthChecker("storage", storage, ComponentStatusUnhealthy)
}

// NewBrokerHealthChecker 事件发布是旁路功能，失败只算降级
func NewBrokerHealthChecker(broker Pinger) *PingHealthChecker {
	return NewPingHealthChecker("broker", broker, ComponentStatusDegraded)
}

// Check 检查依赖健康状态
func (c *PingHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	if c.target == nil {
		return &ComponentHealth{
			Name:      c.name,
			Status:    c.onFailure,
			Message:   c.name + " not configured",
			LastCheck: time.Now(),
		}, nil
	}

	if err := c.target.Ping(ctx); err != nil {
		return &ComponentHealth{
			Name:      c.name,
			Status:    c.onFailure,
			Message:   err.Error(),
			LastCheck: time.Now(),
		}, nil
	}

	return &ComponentHealth{
		Name:      c.name,
		Status:    ComponentStatusHealthy,
		LastCheck: time.Now(),
	}, nil
}
