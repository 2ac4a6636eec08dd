package metrics

import (
	"fmt"
	"net/http"
	"sync"
)

// MetricsType 指标类型
type MetricsType string

const (
	MetricsTypeMemory     MetricsType = "memory"
	MetricsTypePrometheus MetricsType = "prometheus"
)

// New 按类型创建指标收集器
func New(metricsType MetricsType) (Metrics, error) {
	switch metricsType {
	case MetricsTypeMemory, "":
		return NewMemoryMetrics(), nil
	case MetricsTypePrometheus:
		return NewPrometheusMetrics(), nil
	default:
		return nil, fmt.Errorf("unsupported metrics type: %s", metricsType)
	}
}

// Handler 返回指标的 HTTP 暴露端点；内存实现不支持抓取时返回 nil
func Handler(m Metrics) http.Handler {
	if p, ok := m.(*PrometheusMetrics); ok {
		return p.Handler()
	}
	return nil
}

var (
	globalMetrics Metrics = NewMemoryMetrics()
	globalMu      sync.RWMutex
)

// SetGlobal 设置全局 Metrics 实例
func SetGlobal(m Metrics) {
	if m == nil {
		return
	}
	globalMu.Lock()
	globalMetrics = m
	globalMu.Unlock()
}

// Global 获取全局 Metrics 实例
func Global() Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
