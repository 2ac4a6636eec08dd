package health

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// HealthStatus 服务状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"   // 正常处理请求
	HealthStatusDraining  HealthStatus = "draining"  // 关闭中，不再接受开通请求
	HealthStatusUnhealthy HealthStatus = "unhealthy" // 不可用
)

// HealthInfo 健康信息
type HealthInfo struct {
	Status           HealthStatus      `json:"status"`
	Uptime           int64             `json:"uptime_seconds"`
	Instance         string            `json:"instance,omitempty"`
	Version          string            `json:"version,omitempty"`
	Details          map[string]string `json:"details,omitempty"`
	LastStatusChange time.Time         `json:"last_status_change"`
	Ready            bool              `json:"ready"`
}

// HealthManager 服务状态管理器
//
// 优雅关闭时先切换为 draining，使 /readyz 提前返回 503。
type HealthManager struct {
	mu sync.RWMutex

	clock            quartz.Clock
	status           HealthStatus
	startTime        time.Time
	lastStatusChange time.Time
	instance         string
	version          string
	details          map[string]string
}

// NewHealthManager 创建服务状态管理器
func NewHealthManager(instance, version string, clock quartz.Clock) *HealthManager {
	if clock == nil {
		clock = quartz.NewReal()
	}
	now := clock.Now()
	return &HealthManager{
		clock:            clock,
		status:           HealthStatusHealthy,
		startTime:        now,
		lastStatusChange: now,
		instance:         instance,
		version:          version,
		details:          make(map[string]string),
	}
}

// GetStatus 获取当前状态
func (m *HealthManager) GetStatus() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SetStatus 设置状态
func (m *HealthManager) SetStatus(status HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(status)
}

func (m *HealthManager) setStatusLocked(status HealthStatus) {
	if m.status != status {
		m.status = status
		m.lastStatusChange = m.clock.Now()
	}
}

// IsReady 只有 healthy 状态接受新请求
func (m *HealthManager) IsReady() bool {
	return m.GetStatus() == HealthStatusHealthy
}

// MarkDraining 标记为关闭中
func (m *HealthManager) MarkDraining() {
	m.SetStatus(HealthStatusDraining)
}

// MarkUnhealthy 标记为不健康
func (m *HealthManager) MarkUnhealthy(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(HealthStatusUnhealthy)
	m.details["unhealthy_reason"] = reason
}

// SetDetail 设置详细信息
func (m *HealthManager) SetDetail(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[key] = value
}

// GetHealthInfo 获取完整健康信息
func (m *HealthManager) GetHealthInfo() *HealthInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	details := make(map[string]string, len(m.details))
	for k, v := range m.details {
		details[k] = v
	}

	return &HealthInfo{
		Status:           m.status,
		Uptime:           int64(m.clock.Since(m.startTime).Seconds()),
		Instance:         m.instance,
		Version:          m.version,
		Details:          details,
		LastStatusChange: m.lastStatusChange,
		Ready:            m.status == HealthStatusHealthy,
	}
}
