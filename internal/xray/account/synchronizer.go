// Package account 把订阅者同步到代理配置的客户端列表
//
// 所有修改都走同一个流程：读取配置 → 修改客户端列表 → 写回 → 重启代理。
// 整个流程持有进程内互斥锁，同一时刻只有一个写者；不支持多实例同时写同一份配置。
package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"ghostline-core/internal/broker"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
	"ghostline-core/internal/executor"
	"ghostline-core/internal/xray/xrayconf"
)

// Config 同步器依赖
type Config struct {
	Backend        executor.Backend
	Store          *xrayconf.Store
	Flow           string
	RestartCommand string

	Logger    corelog.Logger
	Metrics   metrics.Metrics
	Publisher broker.Publisher
}

// Synchronizer 账户同步器
type Synchronizer struct {
	backend        executor.Backend
	store          *xrayconf.Store
	flow           string
	restartCommand string

	logger    corelog.Logger
	metrics   metrics.Metrics
	publisher broker.Publisher
	now       func() time.Time

	mu sync.Mutex
}

// New 创建同步器
func New(cfg Config) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = corelog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewMemoryMetrics()
	}
	return &Synchronizer{
		backend:        cfg.Backend,
		store:          cfg.Store,
		flow:           cfg.Flow,
		restartCommand: cfg.RestartCommand,
		logger:         logger.WithField(corelog.FieldComponent, "account"),
		metrics:        m,
		publisher:      cfg.Publisher,
		now:            time.Now,
	}
}

// ReconcileResult 一次对账的结果
type ReconcileResult struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged int      `json:"unchanged"`
}

// Changed 配置是否被改写
func (r *ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// AddAccounts 把用户加入客户端列表
//
// 已存在的 ID 和批内重复 ID 被跳过；没有新增时不写配置也不重启，返回空结果。
// flow 未配置时整批失败，且不做任何 I/O。
func (s *Synchronizer) AddAccounts(ctx context.Context, userIDs []string) ([]string, error) {
	if s.flow == "" {
		return nil, coreerrors.ErrFlowNotConfigured
	}
	ids := normalizeIDs(userIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	var added []string
	changed, err := s.mutate(ctx, "add", func(cfg *xrayconf.ProxyConfig) bool {
		present := make(map[string]bool)
		for _, id := range cfg.ClientIDs() {
			present[id] = true
		}
		clients := cfg.Clients()
		for _, id := range ids {
			if present[id] {
				continue
			}
			present[id] = true
			clients = append(clients, xrayconf.NewClientEntry(id, s.flow))
			added = append(added, id)
		}
		if len(added) == 0 {
			return false
		}
		cfg.SetClients(dedupeClients(clients))
		return true
	})
	if !changed {
		return nil, err
	}

	_ = s.metrics.AddCounter(metrics.AccountsAdded, float64(len(added)), nil)
	s.publish(ctx, broker.TopicAccountProvisioned, broker.AccountEvent{UserIDs: added, At: s.now()})
	s.logger.WithField("count", len(added)).Infof("accounts added: %s", strings.Join(added, ", "))
	return added, err
}

// RemoveAccount 从客户端列表移除用户
//
// 用户不在列表中时返回 false，配置保持原样（不写、不重启）。
func (s *Synchronizer) RemoveAccount(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, coreerrors.ErrMissingParam
	}

	changed, err := s.mutate(ctx, "remove", func(cfg *xrayconf.ProxyConfig) bool {
		if _, ok := cfg.FindClient(userID); !ok {
			return false
		}
		kept := make([]xrayconf.ClientEntry, 0, len(cfg.Clients()))
		for _, e := range cfg.Clients() {
			if e.ID != userID {
				kept = append(kept, e)
			}
		}
		cfg.SetClients(kept)
		return true
	})
	if !changed {
		return false, err
	}

	_ = s.metrics.IncrementCounter(metrics.AccountsRemoved, nil)
	s.publish(ctx, broker.TopicAccountRemoved, broker.AccountEvent{UserIDs: []string{userID}, At: s.now()})
	s.logger.WithField(corelog.FieldUserID, userID).Infof("account removed")
	return true, err
}

// FindActive 返回用户的客户端条目；不存在时返回 nil
func (s *Synchronizer) FindActive(ctx context.Context, userID string) (*xrayconf.ClientEntry, error) {
	cfg, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := cfg.FindClient(userID)
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// ListClients 返回当前客户端列表
func (s *Synchronizer) ListClients(ctx context.Context) ([]xrayconf.ClientEntry, error) {
	cfg, err := s.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Clients(), nil
}

// Restart 执行代理重启命令
func (s *Synchronizer) Restart(ctx context.Context) error {
	if s.restartCommand == "" {
		return coreerrors.New(coreerrors.CodeNotConfigured, "restart command is not configured")
	}
	start := s.now()
	_, err := s.backend.RunCommand(ctx, s.restartCommand)
	_ = s.metrics.IncrementCounter(metrics.ProxyRestarts, metrics.Labels("result", metrics.Result(err)))
	if err != nil {
		return err
	}
	s.logger.WithField(corelog.FieldDuration, s.now().Sub(start).String()).Infof("proxy restarted")
	return nil
}

// Reconcile 使客户端列表包含 desired 中的全部用户；prune 时移除不在 desired 中的条目
func (s *Synchronizer) Reconcile(ctx context.Context, desired []string, prune bool) (*ReconcileResult, error) {
	want := normalizeIDs(desired)
	if len(want) > 0 && s.flow == "" {
		return nil, coreerrors.ErrFlowNotConfigured
	}

	res := &ReconcileResult{}
	_, err := s.mutate(ctx, "reconcile", func(cfg *xrayconf.ProxyConfig) bool {
		wanted := make(map[string]bool, len(want))
		for _, id := range want {
			wanted[id] = true
		}

		present := make(map[string]bool)
		var clients []xrayconf.ClientEntry
		for _, e := range dedupeClients(cfg.Clients()) {
			if prune && !wanted[e.ID] {
				res.Removed = append(res.Removed, e.ID)
				continue
			}
			present[e.ID] = true
			clients = append(clients, e)
		}
		for _, id := range want {
			if present[id] {
				res.Unchanged++
				continue
			}
			clients = append(clients, xrayconf.NewClientEntry(id, s.flow))
			res.Added = append(res.Added, id)
		}

		// 重复条目被合并也算改动
		dupes := len(cfg.Clients()) != len(dedupeClients(cfg.Clients()))
		if !res.Changed() && !dupes {
			return false
		}
		cfg.SetClients(clients)
		return true
	})
	if err != nil && !coreerrors.IsCode(err, coreerrors.CodeRestartFailed) {
		return nil, err
	}

	if len(res.Added) > 0 {
		_ = s.metrics.AddCounter(metrics.AccountsAdded, float64(len(res.Added)), nil)
		s.publish(ctx, broker.TopicAccountProvisioned, broker.AccountEvent{UserIDs: res.Added, Reason: "reconcile", At: s.now()})
	}
	if len(res.Removed) > 0 {
		_ = s.metrics.AddCounter(metrics.AccountsRemoved, float64(len(res.Removed)), nil)
		s.publish(ctx, broker.TopicAccountRemoved, broker.AccountEvent{UserIDs: res.Removed, Reason: "reconcile", At: s.now()})
	}
	s.logger.WithFields(corelog.Fields{
		"added":     len(res.Added),
		"removed":   len(res.Removed),
		"unchanged": res.Unchanged,
	}).Infof("reconcile finished")
	return res, err
}

// ClearClients 清空客户端列表，返回被移除的条目数
func (s *Synchronizer) ClearClients(ctx context.Context) (int, error) {
	var removed []string
	_, err := s.mutate(ctx, "clear", func(cfg *xrayconf.ProxyConfig) bool {
		removed = cfg.ClientIDs()
		if len(removed) == 0 {
			return false
		}
		cfg.SetClients(nil)
		return true
	})
	if err != nil && !coreerrors.IsCode(err, coreerrors.CodeRestartFailed) {
		return 0, err
	}
	if len(removed) > 0 {
		_ = s.metrics.AddCounter(metrics.AccountsRemoved, float64(len(removed)), nil)
		s.publish(ctx, broker.TopicAccountRemoved, broker.AccountEvent{UserIDs: removed, Reason: "cleanup", At: s.now()})
		s.logger.WithField("count", len(removed)).Infof("client list cleared")
	}
	return len(removed), err
}

// ApplyRealityKeys 写入 REALITY 私钥和首个 shortId，返回配置是否改变
func (s *Synchronizer) ApplyRealityKeys(ctx context.Context, privateKey, shortID string) (bool, error) {
	if privateKey == "" && shortID == "" {
		return false, nil
	}
	var applyErr error
	changed, err := s.mutate(ctx, "reality_keys", func(cfg *xrayconf.ProxyConfig) bool {
		changed, err := cfg.ApplyRealityKeys(privateKey, shortID)
		if err != nil {
			applyErr = &coreerrors.ConfigCorruptError{Path: s.store.Path(), Cause: err}
			return false
		}
		return changed
	})
	if applyErr != nil {
		return false, applyErr
	}
	if changed {
		s.logger.Infof("reality keys applied")
	}
	return changed, err
}

// mutate 读取配置并执行 fn；fn 返回 true 时写回并重启代理
//
// 写入和重启不随调用方取消而中断，只受后端自身的超时约束。
// 返回值 changed 表示配置已成功写入；重启失败时 changed 为 true 且 err 为 *RestartError。
func (s *Synchronizer) mutate(ctx context.Context, op string, fn func(cfg *xrayconf.ProxyConfig) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.WithField(corelog.FieldOp, op)

	cfg, err := s.store.Read(ctx)
	if err != nil {
		logger.WithError(err).Errorf("config read failed")
		return false, err
	}
	if !fn(cfg) {
		return false, nil
	}

	detached := context.WithoutCancel(ctx)
	if err := s.store.Write(detached, cfg); err != nil {
		logger.WithError(err).Errorf("config write failed")
		return false, err
	}
	_ = s.metrics.SetGauge(metrics.ConfigClients, float64(len(cfg.Clients())), nil)

	if err := s.Restart(detached); err != nil {
		restartErr := &coreerrors.RestartError{Command: s.restartCommand, Cause: err}
		logger.WithError(err).WithField("partial_failure", true).Errorf("proxy restart failed after config write")
		return true, restartErr
	}
	return true, nil
}

func (s *Synchronizer) publish(ctx context.Context, topic string, ev broker.AccountEvent) {
	if s.publisher == nil {
		return
	}
	if err := broker.PublishJSON(context.WithoutCancel(ctx), s.publisher, topic, ev); err != nil {
		s.logger.WithError(err).Warnf("failed to publish %s", topic)
	}
}

// normalizeIDs 去除空白和空 ID，保持首次出现的顺序去重
func normalizeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// dedupeClients 按 ID 去重，保留首个条目
func dedupeClients(clients []xrayconf.ClientEntry) []xrayconf.ClientEntry {
	seen := make(map[string]bool, len(clients))
	out := make([]xrayconf.ClientEntry, 0, len(clients))
	for _, e := range clients {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}
