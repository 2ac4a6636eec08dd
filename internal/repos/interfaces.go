package repos

import (
	"context"
	"time"

	"ghostline-core/internal/models"
)

// =============================================================================
// Repository 接口定义
// =============================================================================
//
// 账户和订阅以关系库为准；代理配置中的客户端列表只是它的投影。
// 两种实现：PostgreSQL（生产）和内存（测试、单机试运行）。
//
// =============================================================================

// VpnAccountRepository VPN 账户数据访问接口
type VpnAccountRepository interface {
	// Create 创建账户；同一 UserID 已存在时返回 CodeAlreadyExists
	Create(ctx context.Context, account *models.VpnAccount) error

	// FindAll 列出所有账户（按 ID 升序）
	FindAll(ctx context.Context) ([]*models.VpnAccount, error)

	// FindByUserID 获取账户；不存在时返回 CodeAccountNotFound
	FindByUserID(ctx context.Context, userID string) (*models.VpnAccount, error)

	// ToggleBlock 设置封禁标记，返回账户是否存在
	ToggleBlock(ctx context.Context, userID string, blocked bool) (bool, error)
}

// SubscriptionRepository 订阅数据访问接口
type SubscriptionRepository interface {
	// Create 创建订阅，回填 ID 和 CreatedAt
	//
	// 每个用户最多一条 trial 记录（任意状态），重复时返回 ErrTrialAlreadyUsed
	Create(ctx context.Context, sub *models.Subscription) error

	// FindAll 列出所有订阅（按 ID 升序）
	FindAll(ctx context.Context) ([]*models.Subscription, error)

	// Find 按条件查询
	Find(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, error)

	// FindActive 返回用户结束时间最晚的 active 订阅；没有时返回 nil, nil
	FindActive(ctx context.Context, userID string) (*models.Subscription, error)

	// HasPlan 用户是否有过该套餐的订阅（任意状态）
	HasPlan(ctx context.Context, userID string, plan models.Plan) (bool, error)

	// MarkExpired 将用户 end_date <= asOf 且未过期的订阅标记为 expired，返回更新行数
	MarkExpired(ctx context.Context, userID string, asOf time.Time) (int, error)

	// Cancel 将 active 订阅标记为 canceled
	Cancel(ctx context.Context, id int64) error
}
