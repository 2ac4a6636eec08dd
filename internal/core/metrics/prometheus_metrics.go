package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics 将指标导出到 Prometheus 注册表
//
// 向量按 (名称, 标签键集合) 懒创建；读取接口由内存影子实现提供。
type PrometheusMetrics struct {
	registry *prometheus.Registry
	shadow   *MemoryMetrics

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics 创建带进程与 Go 运行时采集器的注册表
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &PrometheusMetrics{
		registry:   reg,
		shadow:     NewMemoryMetrics(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry 返回底层注册表
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler 返回 /metrics 处理器
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusMetrics) IncrementCounter(name string, labels map[string]string) error {
	return p.AddCounter(name, 1, labels)
}

func (p *PrometheusMetrics) AddCounter(name string, value float64, labels map[string]string) error {
	if err := p.shadow.AddCounter(name, value, labels); err != nil {
		return err
	}
	names := labelNames(labels)
	key := vecKey(name, names)

	p.mu.Lock()
	vec, ok := p.counters[key]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, names)
		if err := p.registry.Register(vec); err != nil {
			p.mu.Unlock()
			return err
		}
		p.counters[key] = vec
	}
	p.mu.Unlock()

	c, err := vec.GetMetricWith(labels)
	if err != nil {
		return err
	}
	c.Add(value)
	return nil
}

func (p *PrometheusMetrics) GetCounter(name string, labels map[string]string) (float64, error) {
	return p.shadow.GetCounter(name, labels)
}

func (p *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) error {
	_ = p.shadow.SetGauge(name, value, labels)
	names := labelNames(labels)
	key := vecKey(name, names)

	p.mu.Lock()
	vec, ok := p.gauges[key]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, names)
		if err := p.registry.Register(vec); err != nil {
			p.mu.Unlock()
			return err
		}
		p.gauges[key] = vec
	}
	p.mu.Unlock()

	g, err := vec.GetMetricWith(labels)
	if err != nil {
		return err
	}
	g.Set(value)
	return nil
}

func (p *PrometheusMetrics) GetGauge(name string, labels map[string]string) (float64, error) {
	return p.shadow.GetGauge(name, labels)
}

func (p *PrometheusMetrics) ObserveHistogram(name string, value float64, labels map[string]string) error {
	names := labelNames(labels)
	key := vecKey(name, names)

	p.mu.Lock()
	vec, ok := p.histograms[key]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, names)
		if err := p.registry.Register(vec); err != nil {
			p.mu.Unlock()
			return err
		}
		p.histograms[key] = vec
	}
	p.mu.Unlock()

	h, err := vec.GetMetricWith(labels)
	if err != nil {
		return err
	}
	h.Observe(value)
	return nil
}

func (p *PrometheusMetrics) Close() error {
	return nil
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func vecKey(name string, labelNames []string) string {
	return name + "|" + strings.Join(labelNames, ",")
}
