package subscription

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
	"ghostline-core/internal/models"
	"ghostline-core/internal/repos"
)

// AccountRemover 到期后撤销访问
type AccountRemover interface {
	RemoveAccount(ctx context.Context, userID string) (bool, error)
}

// ExpiryConfig 到期任务依赖
type ExpiryConfig struct {
	Subscriptions repos.SubscriptionRepository
	Remover       AccountRemover
	Location      *time.Location
	Clock         quartz.Clock
	Logger        corelog.Logger
	Metrics       metrics.Metrics
	Publisher     broker.Publisher
}

// ExpiryReport 一次扫描的结果
type ExpiryReport struct {
	Now     time.Time `json:"now"`
	Scanned int       `json:"scanned"`
	Expired int       `json:"expired"`
	Revoked []string  `json:"revoked,omitempty"`
	Kept    []string  `json:"kept,omitempty"`
	Failed  []string  `json:"failed,omitempty"`
}

// ExpiryJob 扫描到期订阅，标记 expired 并撤销访问
type ExpiryJob struct {
	subs      repos.SubscriptionRepository
	remover   AccountRemover
	loc       *time.Location
	clock     quartz.Clock
	logger    corelog.Logger
	metrics   metrics.Metrics
	publisher broker.Publisher

	running atomic.Bool
}

// ErrScanRunning 上一次扫描尚未结束
var ErrScanRunning = coreerrors.New(coreerrors.CodeConflict, "expiry scan already running")

// NewExpiryJob 创建到期任务
func NewExpiryJob(cfg ExpiryConfig) *ExpiryJob {
	j := &ExpiryJob{
		subs:      cfg.Subscriptions,
		remover:   cfg.Remover,
		loc:       cfg.Location,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
	}
	if j.loc == nil {
		j.loc = time.UTC
	}
	if j.clock == nil {
		j.clock = quartz.NewReal()
	}
	if j.logger == nil {
		j.logger = corelog.Default()
	}
	j.logger = j.logger.WithField(corelog.FieldComponent, "expiry")
	if j.metrics == nil {
		j.metrics = metrics.NewMemoryMetrics()
	}
	return j
}

func (j *ExpiryJob) Name() string { return "expiry" }

func (j *ExpiryJob) Run(ctx context.Context) error {
	_, err := j.Scan(ctx)
	return err
}

// Scan 扫描一次
//
// 按用户处理：先标记到期订阅，再撤销访问；用户仍有未到期的 active 订阅（续费）时保留访问。
// 单个用户失败只记录日志，扫描继续，最后汇总返回。
func (j *ExpiryJob) Scan(ctx context.Context) (*ExpiryReport, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrScanRunning
	}
	defer j.running.Store(false)

	now := j.clock.Now().In(j.loc)
	report := &ExpiryReport{Now: now}

	all, err := j.subs.FindAll(ctx)
	if err != nil {
		j.logger.WithError(err).Errorf("failed to load subscriptions")
		return report, err
	}
	report.Scanned = len(all)

	due := make(map[string][]*models.Subscription)
	for _, s := range all {
		if s.IsDue(now) {
			due[s.UserID] = append(due[s.UserID], s)
		}
	}
	users := make([]string, 0, len(due))
	for u := range due {
		users = append(users, u)
	}
	sort.Strings(users)

	var errs []error
	for _, userID := range users {
		if err := j.expireUser(ctx, userID, due[userID], now, report); err != nil {
			report.Failed = append(report.Failed, userID)
			errs = append(errs, err)
			j.logger.WithError(err).WithField(corelog.FieldUserID, userID).Errorf("failed to expire subscription")
		}
	}

	if report.Expired > 0 || len(errs) > 0 {
		j.logger.WithFields(corelog.Fields{
			"expired": report.Expired,
			"revoked": len(report.Revoked),
			"failed":  len(report.Failed),
		}).Infof("expiry scan finished")
	}
	return report, coreerrors.Join(errs...)
}

func (j *ExpiryJob) expireUser(ctx context.Context, userID string, subs []*models.Subscription, now time.Time, report *ExpiryReport) error {
	n, err := j.subs.MarkExpired(ctx, userID, now)
	if err != nil {
		return err
	}
	report.Expired += n
	_ = j.metrics.AddCounter(metrics.SubscriptionsExpired, float64(n), nil)

	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		j.logger.WithFields(corelog.Fields{
			corelog.FieldUserID: userID,
			"plan":              string(s.Plan),
			"end_date":          s.EndDate.In(j.loc).Format(time.RFC3339),
		}).Infof("subscription expired")
		j.publish(ctx, s, now)
	}

	active, err := j.subs.FindActive(ctx, userID)
	if err != nil {
		return err
	}
	if active != nil && active.ValidAt(now) {
		report.Kept = append(report.Kept, userID)
		return nil
	}

	removed, err := j.remover.RemoveAccount(ctx, userID)
	if removed {
		report.Revoked = append(report.Revoked, userID)
	}
	return err
}

func (j *ExpiryJob) publish(ctx context.Context, s *models.Subscription, now time.Time) {
	if j.publisher == nil {
		return
	}
	ev := broker.SubscriptionEvent{
		SubscriptionID: s.ID,
		UserID:         s.UserID,
		Plan:           string(s.Plan),
		EndDate:        s.EndDate,
		At:             now,
	}
	if err := broker.PublishJSON(ctx, j.publisher, broker.TopicSubscriptionExpired, ev); err != nil {
		j.logger.WithError(err).Warnf("failed to publish %s", broker.TopicSubscriptionExpired)
	}
}
