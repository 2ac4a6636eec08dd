package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryMetrics 内存指标实现
type MemoryMetrics struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMemoryMetrics 创建内存指标收集器
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *MemoryMetrics) IncrementCounter(name string, labels map[string]string) error {
	return m.AddCounter(name, 1, labels)
}

func (m *MemoryMetrics) AddCounter(name string, value float64, labels map[string]string) error {
	if value < 0 {
		return fmt.Errorf("metrics: counter %s cannot decrease", name)
	}
	key := buildKey(name, labels)
	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
	return nil
}

func (m *MemoryMetrics) GetCounter(name string, labels map[string]string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[buildKey(name, labels)], nil
}

func (m *MemoryMetrics) SetGauge(name string, value float64, labels map[string]string) error {
	m.mu.Lock()
	m.gauges[buildKey(name, labels)] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryMetrics) GetGauge(name string, labels map[string]string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[buildKey(name, labels)], nil
}

// ObserveHistogram 只保留原始观测值，供 Snapshot 统计次数
func (m *MemoryMetrics) ObserveHistogram(name string, value float64, labels map[string]string) error {
	key := buildKey(name, labels)
	m.mu.Lock()
	m.histograms[key] = append(m.histograms[key], value)
	m.mu.Unlock()
	return nil
}

// Snapshot 返回所有计数器和 Gauge 的当前值（直方图以 _count 后缀给出次数）
func (m *MemoryMetrics) Snapshot() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.counters)+len(m.gauges)+len(m.histograms))
	for k, v := range m.counters {
		out[k] = v
	}
	for k, v := range m.gauges {
		out[k] = v
	}
	for k, v := range m.histograms {
		out[k+"_count"] = float64(len(v))
	}
	return out
}

func (m *MemoryMetrics) Close() error {
	return nil
}

// buildKey 构建指标键名，标签按键名排序
func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}
