package subscription

import (
	"context"
	"strings"
	"time"

	"github.com/coder/quartz"

	"ghostline-core/internal/broker"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
	"ghostline-core/internal/models"
	"ghostline-core/internal/repos"
)

// ServiceConfig 订阅服务依赖
type ServiceConfig struct {
	Subscriptions repos.SubscriptionRepository
	Location      *time.Location
	Clock         quartz.Clock
	Logger        corelog.Logger
	Metrics       metrics.Metrics
	Publisher     broker.Publisher
}

// Service 创建订阅（试用或付费）
type Service struct {
	subs      repos.SubscriptionRepository
	loc       *time.Location
	clock     quartz.Clock
	logger    corelog.Logger
	metrics   metrics.Metrics
	publisher broker.Publisher

	// 同一用户的检查与插入串行执行
	locks userLocks
}

// NewService 创建订阅服务
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		subs:      cfg.Subscriptions,
		loc:       cfg.Location,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.clock == nil {
		s.clock = quartz.NewReal()
	}
	if s.logger == nil {
		s.logger = corelog.Default()
	}
	s.logger = s.logger.WithField(corelog.FieldComponent, "subscription")
	if s.metrics == nil {
		s.metrics = metrics.NewMemoryMetrics()
	}
	return s
}

// Active 返回用户当前有效的订阅；没有时返回 nil
func (s *Service) Active(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.subs.FindActive(ctx, userID)
	if err != nil || sub == nil {
		return nil, err
	}
	if !sub.ValidAt(s.now()) {
		return nil, nil
	}
	return sub, nil
}

// CreateTrial 创建试用订阅
//
// 用过试用（任意状态）或存在 active 订阅时拒绝；检查在任何账户变更之前完成。
func (s *Service) CreateTrial(ctx context.Context, userID string) (*models.Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, coreerrors.ErrMissingParam
	}
	defer s.locks.lock(userID)()

	used, err := s.subs.HasPlan(ctx, userID, models.PlanTrial)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, coreerrors.ErrTrialAlreadyUsed
	}
	active, err := s.subs.FindActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, coreerrors.ErrActiveSubscription
	}

	now := s.now()
	return s.create(ctx, userID, models.PlanTrial, now, now)
}

// CreatePaid 创建付费订阅（支付已确认）
//
// 已有 active 订阅时新订阅从旧结束时间续上剩余时长，旧订阅标记为 canceled。
func (s *Service) CreatePaid(ctx context.Context, userID string, plan models.Plan) (*models.Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, coreerrors.ErrMissingParam
	}
	if !plan.Valid() {
		return nil, &coreerrors.UnknownPlanError{Plan: string(plan)}
	}
	if !plan.IsPaid() {
		return nil, coreerrors.Newf(coreerrors.CodeInvalidParam, "plan %s cannot be purchased", plan)
	}

	defer s.locks.lock(userID)()

	now := s.now()
	base := now
	active, err := s.subs.FindActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil && active.EndDate.After(base) {
		base = active.EndDate.In(s.loc)
	}

	sub, err := s.create(ctx, userID, plan, now, base)
	if err != nil {
		return nil, err
	}

	// 新订阅写入后再取消旧订阅；取消失败时两条并存，FindActive 取结束最晚的一条
	if active != nil {
		logger := s.logger.WithFields(corelog.Fields{
			corelog.FieldUserID: userID,
			"previous_id":       active.ID,
			"previous_plan":     string(active.Plan),
		})
		if err := s.subs.Cancel(ctx, active.ID); err != nil {
			logger.WithError(err).Errorf("failed to cancel previous subscription")
		} else {
			logger.Infof("previous subscription canceled by renewal")
		}
	}
	return sub, nil
}

// create 插入 active 订阅；结束时间从 from 起算
func (s *Service) create(ctx context.Context, userID string, plan models.Plan, start, from time.Time) (*models.Subscription, error) {
	end, err := EndDate(plan, from)
	if err != nil {
		return nil, err
	}
	sub := &models.Subscription{
		UserID:    userID,
		Plan:      plan,
		Status:    models.StatusActive,
		StartDate: start,
		EndDate:   end,
	}
	if err := s.insert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) insert(ctx context.Context, sub *models.Subscription) error {
	if err := s.subs.Create(ctx, sub); err != nil {
		return err
	}
	_ = s.metrics.IncrementCounter(metrics.SubscriptionsCreated, metrics.Labels("plan", string(sub.Plan)))
	s.logger.WithFields(corelog.Fields{
		corelog.FieldUserID: sub.UserID,
		"plan":              string(sub.Plan),
		"end_date":          sub.EndDate.Format(time.RFC3339),
	}).Infof("subscription created")

	if s.publisher != nil {
		ev := broker.SubscriptionEvent{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			Plan:           string(sub.Plan),
			EndDate:        sub.EndDate,
			At:             s.now(),
		}
		if err := broker.PublishJSON(ctx, s.publisher, broker.TopicSubscriptionCreated, ev); err != nil {
			s.logger.WithError(err).Warnf("failed to publish %s", broker.TopicSubscriptionCreated)
		}
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.loc)
}
