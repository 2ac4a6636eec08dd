// Package repos 账户与订阅的数据访问层
package repos

import (
	"context"
	"sort"
	"sync"
	"time"

	coreerrors "ghostline-core/internal/core/errors"
	"ghostline-core/internal/models"
)

var (
	_ VpnAccountRepository   = (*MemoryVpnAccountRepository)(nil)
	_ SubscriptionRepository = (*MemorySubscriptionRepository)(nil)
)

// MemoryVpnAccountRepository 内存账户仓库
type MemoryVpnAccountRepository struct {
	mu       sync.RWMutex
	byUserID map[string]*models.VpnAccount
	nextID   int64
	now      func() time.Time
}

func NewMemoryVpnAccountRepository() *MemoryVpnAccountRepository {
	return &MemoryVpnAccountRepository{
		byUserID: make(map[string]*models.VpnAccount),
		now:      time.Now,
	}
}

func (r *MemoryVpnAccountRepository) Create(_ context.Context, account *models.VpnAccount) error {
	if account == nil {
		return coreerrors.New(coreerrors.CodeInvalidParam, "account is nil")
	}
	if account.UserID == "" {
		return coreerrors.New(coreerrors.CodeMissingParam, "user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUserID[account.UserID]; exists {
		return coreerrors.Newf(coreerrors.CodeAlreadyExists, "vpn account for user %s already exists", account.UserID)
	}
	r.nextID++
	account.ID = r.nextID
	if account.CreatedAt.IsZero() {
		account.CreatedAt = r.now()
	}
	r.byUserID[account.UserID] = account.Clone()
	return nil
}

func (r *MemoryVpnAccountRepository) FindAll(_ context.Context) ([]*models.VpnAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.VpnAccount, 0, len(r.byUserID))
	for _, a := range r.byUserID {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryVpnAccountRepository) FindByUserID(_ context.Context, userID string) (*models.VpnAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byUserID[userID]
	if !ok {
		return nil, coreerrors.Newf(coreerrors.CodeAccountNotFound, "vpn account for user %s not found", userID)
	}
	return a.Clone(), nil
}

func (r *MemoryVpnAccountRepository) ToggleBlock(_ context.Context, userID string, blocked bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byUserID[userID]
	if !ok {
		return false, nil
	}
	a.IsBlocked = blocked
	return true, nil
}

// MemorySubscriptionRepository 内存订阅仓库
type MemorySubscriptionRepository struct {
	mu     sync.RWMutex
	subs   []*models.Subscription
	nextID int64
	now    func() time.Time
}

func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{now: time.Now}
}

func (r *MemorySubscriptionRepository) Create(_ context.Context, sub *models.Subscription) error {
	if sub == nil {
		return coreerrors.New(coreerrors.CodeInvalidParam, "subscription is nil")
	}
	if !sub.Plan.Valid() {
		return &coreerrors.UnknownPlanError{Plan: string(sub.Plan)}
	}
	if sub.Status == "" {
		sub.Status = models.StatusActive
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.Plan == models.PlanTrial {
		for _, s := range r.subs {
			if s.UserID == sub.UserID && s.Plan == models.PlanTrial {
				return coreerrors.ErrTrialAlreadyUsed
			}
		}
	}

	r.nextID++
	sub.ID = r.nextID
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = r.now()
	}
	r.subs = append(r.subs, sub.Clone())
	return nil
}

func (r *MemorySubscriptionRepository) FindAll(ctx context.Context) ([]*models.Subscription, error) {
	return r.Find(ctx, models.SubscriptionFilter{})
}

func (r *MemorySubscriptionRepository) Find(_ context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Subscription
	for _, s := range r.subs {
		if filter.Match(s) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (r *MemorySubscriptionRepository) FindActive(_ context.Context, userID string) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.Subscription
	for _, s := range r.subs {
		if s.UserID != userID || !s.IsActive() {
			continue
		}
		if best == nil || s.EndDate.After(best.EndDate) {
			best = s
		}
	}
	return best.Clone(), nil
}

func (r *MemorySubscriptionRepository) HasPlan(_ context.Context, userID string, plan models.Plan) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.subs {
		if s.UserID == userID && s.Plan == plan {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemorySubscriptionRepository) MarkExpired(_ context.Context, userID string, asOf time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.subs {
		if s.UserID == userID && s.IsDue(asOf) {
			s.Status = models.StatusExpired
			n++
		}
	}
	return n, nil
}

func (r *MemorySubscriptionRepository) Cancel(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.ID != id {
			continue
		}
		if !s.IsActive() {
			return coreerrors.Newf(coreerrors.CodeInvalidState, "subscription %d is %s", id, s.Status)
		}
		s.Status = models.StatusCanceled
		return nil
	}
	return coreerrors.Newf(coreerrors.CodeNotFound, "subscription %d not found", id)
}
