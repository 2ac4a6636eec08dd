package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHealthChecker 模拟健康检查器
type mockHealthChecker struct {
	health *ComponentHealth
	err    error
	delay  time.Duration
}

func (m *mockHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return m.health, m.err
}

func TestCompositeHealthChecker_CheckAll(t *testing.T) {
	checker := NewCompositeHealthChecker(5 * time.Second)
	checker.RegisterChecker("healthy", &mockHealthChecker{
		health: &ComponentHealth{Name: "healthy", Status: ComponentStatusHealthy},
	})
	checker.RegisterChecker("degraded", &mockHealthChecker{
		health: &ComponentHealth{Name: "degraded", Status: ComponentStatusDegraded, Message: "degraded message"},
	})
	checker.RegisterChecker("error", &mockHealthChecker{err: errors.New("check failed")})
	checker.RegisterChecker("silent", &mockHealthChecker{})

	results := checker.CheckAll(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, ComponentStatusHealthy, results["healthy"].Status)
	assert.Equal(t, ComponentStatusDegraded, results["degraded"].Status)
	// 检查出错视为不健康
	assert.Equal(t, ComponentStatusUnhealthy, results["error"].Status)
	assert.Equal(t, "check failed", results["error"].Message)
	assert.Equal(t, []string{"degraded", "error", "healthy", "silent"}, checker.Names())
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	checker := NewCompositeHealthChecker(50 * time.Millisecond)
	checker.RegisterChecker("slow", &mockHealthChecker{delay: time.Second})

	start := time.Now()
	results := checker.CheckAll(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Contains(t, results, "slow")
	assert.Equal(t, ComponentStatusUnhealthy, results["slow"].Status)
}

func TestCompositeHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ComponentStatus
		expected ComponentStatus
	}{
		{"all healthy", []ComponentStatus{ComponentStatusHealthy, ComponentStatusHealthy}, ComponentStatusHealthy},
		{"has degraded", []ComponentStatus{ComponentStatusHealthy, ComponentStatusDegraded}, ComponentStatusDegraded},
		{"has unhealthy", []ComponentStatus{ComponentStatusHealthy, ComponentStatusUnhealthy}, ComponentStatusUnhealthy},
		{"degraded and unhealthy", []ComponentStatus{ComponentStatusDegraded, ComponentStatusUnhealthy}, ComponentStatusUnhealthy},
		{"empty", nil, ComponentStatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCompositeHealthChecker(time.Second)
			for i, s := range tt.statuses {
				checker.RegisterChecker(string(rune('a'+i)), &mockHealthChecker{health: &ComponentHealth{Status: s}})
			}
			report := checker.Check(context.Background())
			assert.Equal(t, tt.expected, report.Status)
			assert.Len(t, report.Components, len(tt.statuses))
		})
	}
}

func TestPingHealthChecker(t *testing.T) {
	ctx := context.Background()

	ok, err := NewStorageHealthChecker(PingFunc(func(context.Context) error { return nil })).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, "storage", ok.Name)
	assert.Equal(t, ComponentStatusHealthy, ok.Status)

	down, err := NewStorageHealthChecker(PingFunc(func(context.Context) error { return errors.New("connection refused") })).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ComponentStatusUnhealthy, down.Status)
	assert.Equal(t, "connection refused", down.Message)

	// 消息代理失败只算降级
	broker, err := NewBrokerHealthChecker(PingFunc(func(context.Context) error { return errors.New("closed") })).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ComponentStatusDegraded, broker.Status)

	missing, err := NewPingHealthChecker("proxy", nil, "").Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ComponentStatusUnhealthy, missing.Status)
	assert.Equal(t, "proxy not configured", missing.Message)
}
