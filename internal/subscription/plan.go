// Package subscription 订阅的创建与到期
package subscription

import (
	"time"

	coreerrors "ghostline-core/internal/core/errors"
	"ghostline-core/internal/models"
)

// TrialDays 试用期天数
const TrialDays = 7

// EndDate 计算套餐结束时间；月份按 start 所在时区的日历计算
func EndDate(plan models.Plan, start time.Time) (time.Time, error) {
	switch plan {
	case models.PlanTrial:
		return start.AddDate(0, 0, TrialDays), nil
	case models.PlanOneMonth:
		return start.AddDate(0, 1, 0), nil
	case models.PlanSixMonth:
		return start.AddDate(0, 6, 0), nil
	default:
		return time.Time{}, &coreerrors.UnknownPlanError{Plan: string(plan)}
	}
}

// DefaultTimezone 到期判断使用的时区
const DefaultTimezone = "Europe/Moscow"

// LoadLocation 解析时区名，空字符串使用 DefaultTimezone
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "invalid timezone %q", name)
	}
	return loc, nil
}
