// Package metrics 指标收集
//
// 内存实现用于单机和测试，Prometheus 实现用于生产抓取；两者实现同一接口。
package metrics

// Metrics 指标收集接口
type Metrics interface {
	IncrementCounter(name string, labels map[string]string) error
	AddCounter(name string, value float64, labels map[string]string) error
	GetCounter(name string, labels map[string]string) (float64, error)

	SetGauge(name string, value float64, labels map[string]string) error
	GetGauge(name string, labels map[string]string) (float64, error)

	ObserveHistogram(name string, value float64, labels map[string]string) error

	Close() error
}

// 指标名称
const (
	AccountsAdded        = "ghostline_accounts_added_total"
	AccountsRemoved      = "ghostline_accounts_removed_total"
	ProxyRestarts        = "ghostline_proxy_restarts_total"
	ConfigClients        = "ghostline_config_clients"
	ExecutorCommands     = "ghostline_executor_commands_total"
	ExecutorDuration     = "ghostline_executor_command_duration_seconds"
	MonitorCycles        = "ghostline_monitor_cycles_total"
	MonitorBans          = "ghostline_monitor_bans_total"
	MonitorUnbans        = "ghostline_monitor_unbans_total"
	MonitorActiveUsers   = "ghostline_monitor_active_users"
	SubscriptionsExpired = "ghostline_subscriptions_expired_total"
	SubscriptionsCreated = "ghostline_subscriptions_created_total"
	JobRuns              = "ghostline_job_runs_total"
	HTTPRequests         = "ghostline_http_requests_total"
)

// Result 标签值
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Labels 构造标签（成对的 key, value）
func Labels(kv ...string) map[string]string {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

// Result 把 error 映射为结果标签
func Result(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultOK
}
