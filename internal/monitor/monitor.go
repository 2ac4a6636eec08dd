// Package monitor 按访问日志统计每个用户的设备数，超限封禁、恢复后解封
package monitor

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"

	"ghostline-core/internal/broker"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
	"ghostline-core/internal/executor"
	"ghostline-core/internal/repos"
	"ghostline-core/internal/xray/accesslog"
)

// AccountSyncer 监控所需的账户同步能力
type AccountSyncer interface {
	AddAccounts(ctx context.Context, userIDs []string) ([]string, error)
	RemoveAccount(ctx context.Context, userID string) (bool, error)
}

// Config 监控依赖
type Config struct {
	Backend       executor.Backend
	LogsPath      string
	Parser        accesslog.Parser
	Accounts      repos.VpnAccountRepository
	Subscriptions repos.SubscriptionRepository
	Syncer        AccountSyncer

	// ReleaseIdleBlocked 日志中没有出现的已封禁用户按 0 个设备处理
	ReleaseIdleBlocked bool

	Clock     quartz.Clock
	Logger    corelog.Logger
	Metrics   metrics.Metrics
	Publisher broker.Publisher
}

// CycleReport 一轮监控的结果
type CycleReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Records   int           `json:"records"`
	Users     int           `json:"users"`
	Decisions []Decision    `json:"decisions"`
	Skipped   []string      `json:"skipped,omitempty"`
	Truncated bool          `json:"truncated"`
}

// Count 指定动作的判定数
func (r *CycleReport) Count(a Action) int {
	n := 0
	for _, d := range r.Decisions {
		if d.Action == a {
			n++
		}
	}
	return n
}

// ErrCycleRunning 上一轮尚未结束
var ErrCycleRunning = coreerrors.New(coreerrors.CodeConflict, "monitor cycle already running")

// Monitor 连接监控
type Monitor struct {
	cfg     Config
	clock   quartz.Clock
	logger  corelog.Logger
	metrics metrics.Metrics

	running atomic.Bool
}

// New 创建监控
func New(cfg Config) *Monitor {
	if cfg.Parser == nil {
		cfg.Parser = accesslog.NewRegexParser(time.Local)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = corelog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewMemoryMetrics()
	}
	return &Monitor{
		cfg:     cfg,
		clock:   clock,
		logger:  logger.WithField(corelog.FieldComponent, "monitor"),
		metrics: m,
	}
}

// Name 任务名
func (m *Monitor) Name() string { return "monitor" }

// Run 供调度器调用
func (m *Monitor) Run(ctx context.Context) error {
	_, err := m.RunCycle(ctx)
	return err
}

// RunCycle 执行一轮：读取日志 → 解析 → 按用户判定 → 执行 → 清空日志
//
// 任一步骤失败都不清空日志，下一轮会重新统计同一批记录。
// 读取和清空之间写入的日志行会随清空一起丢失。
func (m *Monitor) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer m.running.Store(false)

	report := &CycleReport{StartedAt: m.clock.Now()}
	err := m.runCycle(ctx, report)
	report.Duration = m.clock.Since(report.StartedAt)

	_ = m.metrics.IncrementCounter(metrics.MonitorCycles, metrics.Labels("result", metrics.Result(err)))
	logger := m.logger.WithFields(corelog.Fields{
		"records":   report.Records,
		"users":     report.Users,
		"bans":      report.Count(ActionBan),
		"unbans":    report.Count(ActionUnban),
		"truncated": report.Truncated,
	})
	if err != nil {
		logger.WithError(err).Errorf("monitor cycle failed, access log kept")
		return report, err
	}
	logger.Infof("monitor cycle finished")
	return report, nil
}

func (m *Monitor) runCycle(ctx context.Context, report *CycleReport) error {
	data, err := m.cfg.Backend.ReadFile(ctx, m.cfg.LogsPath)
	if err != nil {
		return err
	}

	records := m.cfg.Parser.Parse(data)
	report.Records = len(records)
	groups := accesslog.GroupIPs(records)

	if m.cfg.ReleaseIdleBlocked {
		if err := m.addIdleBlocked(ctx, groups); err != nil {
			return err
		}
	}

	users := make([]string, 0, len(groups))
	for u := range groups {
		users = append(users, u)
	}
	sort.Strings(users)
	report.Users = len(users)
	_ = m.metrics.SetGauge(metrics.MonitorActiveUsers, float64(len(users)), nil)

	var errs []error
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		account, err := m.cfg.Accounts.FindByUserID(ctx, userID)
		if err != nil {
			if coreerrors.IsCode(err, coreerrors.CodeAccountNotFound) {
				m.logger.WithField(corelog.FieldUserID, userID).Warnf("user in access log has no vpn account, skipped")
				report.Skipped = append(report.Skipped, userID)
				continue
			}
			errs = append(errs, err)
			continue
		}

		d := Decision{
			UserID:  userID,
			IPs:     groups[userID],
			Limit:   account.DevicesLimit,
			Blocked: account.IsBlocked,
			Action:  Decide(len(groups[userID]), account.DevicesLimit, account.IsBlocked),
		}
		if d.Action != ActionNone {
			if err := m.apply(ctx, &d); err != nil {
				d.Error = err.Error()
				errs = append(errs, err)
			} else {
				d.Applied = true
			}
		}
		report.Decisions = append(report.Decisions, d)
	}

	if len(errs) > 0 {
		return coreerrors.Join(errs...)
	}

	if err := m.cfg.Backend.WriteFile(ctx, m.cfg.LogsPath, nil); err != nil {
		return err
	}
	report.Truncated = true
	return nil
}

// addIdleBlocked 把日志中未出现的已封禁用户以空 IP 集合加入统计
func (m *Monitor) addIdleBlocked(ctx context.Context, groups map[string][]string) error {
	accounts, err := m.cfg.Accounts.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if _, seen := groups[a.UserID]; a.IsBlocked && !seen {
			groups[a.UserID] = nil
		}
	}
	return nil
}

func (m *Monitor) apply(ctx context.Context, d *Decision) error {
	logger := m.logger.WithFields(corelog.Fields{
		corelog.FieldUserID: d.UserID,
		"ips":               len(d.IPs),
		"limit":             d.Limit,
	})

	switch d.Action {
	case ActionBan:
		_, err := m.cfg.Syncer.RemoveAccount(ctx, d.UserID)
		if err != nil && !coreerrors.IsCode(err, coreerrors.CodeRestartFailed) {
			return err
		}
		// 客户端已从配置移除；即便重启失败也要落封禁标记
		if _, flagErr := m.cfg.Accounts.ToggleBlock(ctx, d.UserID, true); flagErr != nil {
			return coreerrors.Join(err, flagErr)
		}
		_ = m.metrics.IncrementCounter(metrics.MonitorBans, nil)
		m.publish(ctx, broker.TopicAccountBanned, d)
		logger.Warnf("device limit exceeded, account banned")
		return err

	case ActionUnban:
		var err error
		active, findErr := m.cfg.Subscriptions.FindActive(ctx, d.UserID)
		if findErr != nil {
			return findErr
		}
		if active != nil && active.ValidAt(m.clock.Now()) {
			_, err = m.cfg.Syncer.AddAccounts(ctx, []string{d.UserID})
			if err != nil && !coreerrors.IsCode(err, coreerrors.CodeRestartFailed) {
				return err
			}
		} else {
			logger.Infof("no active subscription, clearing block flag without restoring access")
		}
		if _, flagErr := m.cfg.Accounts.ToggleBlock(ctx, d.UserID, false); flagErr != nil {
			return coreerrors.Join(err, flagErr)
		}
		_ = m.metrics.IncrementCounter(metrics.MonitorUnbans, nil)
		m.publish(ctx, broker.TopicAccountUnbanned, d)
		logger.Infof("device count back within limit, account unbanned")
		return err
	}
	return nil
}

func (m *Monitor) publish(ctx context.Context, topic string, d *Decision) {
	if m.cfg.Publisher == nil {
		return
	}
	ev := broker.AccountEvent{
		UserIDs: []string{d.UserID},
		Reason:  "device_limit",
		IPs:     len(d.IPs),
		Limit:   d.Limit,
		At:      m.clock.Now(),
	}
	if err := broker.PublishJSON(ctx, m.cfg.Publisher, topic, ev); err != nil {
		m.logger.WithError(err).Warnf("failed to publish %s", topic)
	}
}
