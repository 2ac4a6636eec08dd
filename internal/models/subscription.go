// Package models 持久化实体
package models

import (
	"strings"
	"time"

	coreerrors "ghostline-core/internal/core/errors"
)

// Plan 订阅套餐
type Plan string

const (
	PlanTrial    Plan = "trial"
	PlanOneMonth Plan = "1_month"
	PlanSixMonth Plan = "6_months"
)

// Valid 是否为已知套餐
func (p Plan) Valid() bool {
	switch p {
	case PlanTrial, PlanOneMonth, PlanSixMonth:
		return true
	}
	return false
}

// planAliases 外部名称到存储值
var planAliases = map[string]Plan{
	"trial":      PlanTrial,
	"1_month":    PlanOneMonth,
	"one_month":  PlanOneMonth,
	"6_months":   PlanSixMonth,
	"six_months": PlanSixMonth,
}

// ParsePlan 解析外部传入的套餐名，接受 1_month/one_month 与 6_months/six_months 两种写法，
// 忽略大小写和首尾空白
func ParsePlan(s string) (Plan, error) {
	if p, ok := planAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p, nil
	}
	return "", &coreerrors.UnknownPlanError{Plan: s}
}

// IsPaid 付费套餐
func (p Plan) IsPaid() bool {
	return p == PlanOneMonth || p == PlanSixMonth
}

// SubscriptionStatus 订阅状态
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusExpired  SubscriptionStatus = "expired"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Subscription 订阅周期
//
// 状态迁移：active → expired（到期扫描）；active → canceled（续费时旧记录）。
// expired 不会回到 active。
type Subscription struct {
	ID        int64              `json:"id"`
	UserID    string             `json:"user_id"`
	Plan      Plan               `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	StartDate time.Time          `json:"start_date"`
	EndDate   time.Time          `json:"end_date"`
	CreatedAt time.Time          `json:"created_at"`
}

// IsActive 状态为 active
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsDue 在 now 时刻已到期但尚未标记 expired
func (s *Subscription) IsDue(now time.Time) bool {
	return s.Status != StatusExpired && !s.EndDate.After(now)
}

// ValidAt 在 now 时刻处于有效期内
func (s *Subscription) ValidAt(now time.Time) bool {
	return s.IsActive() && s.EndDate.After(now)
}

// Clone 返回副本
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SubscriptionFilter 查询条件，零值字段不参与过滤
type SubscriptionFilter struct {
	UserID    string
	Plan      Plan
	Status    SubscriptionStatus
	EndBefore time.Time // end_date <= EndBefore
}

// Match 内存实现使用的过滤逻辑
func (f SubscriptionFilter) Match(s *Subscription) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.Plan != "" && s.Plan != f.Plan {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if !f.EndBefore.IsZero() && s.EndDate.After(f.EndBefore) {
		return false
	}
	return true
}
