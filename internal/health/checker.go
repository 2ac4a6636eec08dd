// Package health 组件健康检查与服务状态
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ComponentStatus 组件状态
type ComponentStatus string

const (
	ComponentStatusHealthy   ComponentStatus = "healthy"
	ComponentStatusDegraded  ComponentStatus = "degraded"  // 降级，部分功能不可用
	ComponentStatusUnhealthy ComponentStatus = "unhealthy" // 不健康，完全不可用
)

// ComponentHealth 组件健康信息
type ComponentHealth struct {
	Name      string          `json:"name"`
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LastCheck time.Time       `json:"last_check"`
}

// HealthChecker 健康检查器接口
type HealthChecker interface {
	// Check 执行健康检查，返回组件健康信息
	Check(ctx context.Context) (*ComponentHealth, error)
}

// Report 一次完整检查的结果
type Report struct {
	Status     ComponentStatus             `json:"status"`
	Components map[string]*ComponentHealth `json:"components"`
}

// CompositeHealthChecker 组合健康检查器
// 各组件并发检查，每个组件单独超时
type CompositeHealthChecker struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// NewCompositeHealthChecker 创建组合健康检查器
func NewCompositeHealthChecker(timeout time.Duration) *CompositeHealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CompositeHealthChecker{
		checkers: make(map[string]HealthChecker),
		timeout:  timeout,
	}
}

// RegisterChecker 注册健康检查器
func (c *CompositeHealthChecker) RegisterChecker(name string, checker HealthChecker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkers[name] = checker
}

// Names 已注册的组件名（排序）
func (c *CompositeHealthChecker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checkers))
	for name := range c.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll 检查所有注册的组件
func (c *CompositeHealthChecker) CheckAll(ctx context.Context) map[string]*ComponentHealth {
	c.mu.RLock()
	checkers := make(map[string]HealthChecker, len(c.checkers))
	for name, checker := range c.checkers {
		checkers[name] = checker
	}
	c.mu.RUnlock()

	var mu sync.Mutex
	results := make(map[string]*ComponentHealth, len(checkers))

	var g errgroup.Group
	for name, checker := range checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			health, err := checker.Check(checkCtx)
			if err != nil {
				health = &ComponentHealth{
					Name:      name,
					Status:    ComponentStatusUnhealthy,
					Message:   err.Error(),
					LastCheck: time.Now(),
				}
			}
			if health == nil {
				return nil
			}

			mu.Lock()
			results[name] = health
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Check 检查所有组件并汇总整体状态
// 有组件不健康返回 unhealthy，有组件降级返回 degraded
func (c *CompositeHealthChecker) Check(ctx context.Context) *Report {
	components := c.CheckAll(ctx)
	return &Report{Status: Overall(components), Components: components}
}

// Overall 汇总组件状态
func Overall(components map[string]*ComponentHealth) ComponentStatus {
	hasDegraded := false
	for _, health := range components {
		switch health.Status {
		case ComponentStatusUnhealthy:
			return ComponentStatusUnhealthy
		case ComponentStatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return ComponentStatusDegraded
	}
	return ComponentStatusHealthy
}
