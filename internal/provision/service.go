// Package provision 面向机器人和支付端的开通入口
//
// 把订阅创建、账户记录、代理配置同步和链接生成串成一次调用。
package provision

import (
	"context"
	"strings"

	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/models"
	"ghostline-core/internal/repos"
	"ghostline-core/internal/subscription"
	"ghostline-core/internal/xray/account"
	"ghostline-core/internal/xray/xrayconf"
)

// Syncer 代理配置同步
type Syncer interface {
	AddAccounts(ctx context.Context, userIDs []string) ([]string, error)
	RemoveAccount(ctx context.Context, userID string) (bool, error)
	FindActive(ctx context.Context, userID string) (*xrayconf.ClientEntry, error)
	Reconcile(ctx context.Context, desired []string, prune bool) (*account.ReconcileResult, error)
}

// LinkGenerator 链接生成
type LinkGenerator interface {
	Generate(ctx context.Context, userID string) (string, error)
}

// ConfigReader 读取代理配置，用于取 serverNames[0]
type ConfigReader interface {
	Read(ctx context.Context) (*xrayconf.ProxyConfig, error)
}

// AccountDefaults 新建 VpnAccount 的默认值
type AccountDefaults struct {
	Server       string
	Port         int
	PublicKey    string
	SNI          string
	Flow         string
	DevicesLimit int
}

// Config 开通服务依赖
type Config struct {
	Accounts      repos.VpnAccountRepository
	Subscriptions *subscription.Service
	Syncer        Syncer
	Links         LinkGenerator
	ProxyConfig   ConfigReader
	Defaults      AccountDefaults
	Logger        corelog.Logger
}

// Service 开通服务
type Service struct {
	accounts repos.VpnAccountRepository
	subs     *subscription.Service
	syncer   Syncer
	links    LinkGenerator
	proxy    ConfigReader
	defaults AccountDefaults
	logger   corelog.Logger
}

// New 创建开通服务
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = corelog.Default()
	}
	if cfg.Defaults.DevicesLimit <= 0 {
		cfg.Defaults.DevicesLimit = 3
	}
	return &Service{
		accounts: cfg.Accounts,
		subs:     cfg.Subscriptions,
		syncer:   cfg.Syncer,
		links:    cfg.Links,
		proxy:    cfg.ProxyConfig,
		defaults: cfg.Defaults,
		logger:   logger.WithField(corelog.FieldComponent, "provision"),
	}
}

// ActivateTrial 开通试用并返回链接
func (s *Service) ActivateTrial(ctx context.Context, userID string) (string, error) {
	if _, err := s.subs.CreateTrial(ctx, userID); err != nil {
		return "", err
	}
	return s.grant(ctx, userID, false)
}

// ActivatePaid 支付确认后开通或续费并返回链接
//
// 付费会解除封禁并重新加入客户端列表；仍超出设备上限时由监控再次封禁。
func (s *Service) ActivatePaid(ctx context.Context, userID string, plan models.Plan) (string, error) {
	if _, err := s.subs.CreatePaid(ctx, userID, plan); err != nil {
		return "", err
	}
	return s.grant(ctx, userID, true)
}

// ActivateAccess 为已有有效订阅的用户确保访问并返回链接
func (s *Service) ActivateAccess(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", coreerrors.ErrMissingParam
	}
	active, err := s.subs.Active(ctx, userID)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", coreerrors.ErrNoSubscription
	}
	return s.grant(ctx, userID, false)
}

// Deprovision 撤销访问，订阅记录不变
func (s *Service) Deprovision(ctx context.Context, userID string) (bool, error) {
	return s.syncer.RemoveAccount(ctx, userID)
}

// Link 返回用户的连接链接
func (s *Service) Link(ctx context.Context, userID string) (string, error) {
	return s.links.Generate(ctx, userID)
}

// SyncFromStore 让代理配置与库中未封禁且订阅有效的账户一致
func (s *Service) SyncFromStore(ctx context.Context, prune bool) (*account.ReconcileResult, error) {
	all, err := s.accounts.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	desired := make([]string, 0, len(all))
	for _, a := range all {
		if a.IsBlocked {
			continue
		}
		active, err := s.subs.Active(ctx, a.UserID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			desired = append(desired, a.UserID)
		}
	}
	return s.syncer.Reconcile(ctx, desired, prune)
}

// grant 确保账户记录存在、加入客户端列表并生成链接
//
// unblock 为 false 时封禁账户返回 ErrAccountBlocked。
// 重启失败时配置已写入，仍返回链接和 *RestartError。
func (s *Service) grant(ctx context.Context, userID string, unblock bool) (string, error) {
	logger := s.logger.WithField(corelog.FieldUserID, userID)

	acc, err := s.ensureAccount(ctx, userID)
	if err != nil {
		return "", err
	}
	if acc.IsBlocked {
		if !unblock {
			logger.Warnf("account is blocked, access not granted")
			return "", coreerrors.ErrAccountBlocked
		}
		if _, err := s.accounts.ToggleBlock(ctx, userID, false); err != nil {
			return "", err
		}
		logger.Infof("block lifted by payment")
	}

	_, syncErr := s.syncer.AddAccounts(ctx, []string{userID})
	if syncErr != nil && !coreerrors.IsCode(syncErr, coreerrors.CodeRestartFailed) {
		return "", syncErr
	}

	link, err := s.links.Generate(ctx, userID)
	if err != nil {
		return "", err
	}
	logger.Infof("access granted")
	return link, syncErr
}

func (s *Service) ensureAccount(ctx context.Context, userID string) (*models.VpnAccount, error) {
	acc, err := s.accounts.FindByUserID(ctx, userID)
	if err == nil {
		return acc, nil
	}
	if !coreerrors.IsCode(err, coreerrors.CodeAccountNotFound) {
		return nil, err
	}

	acc = &models.VpnAccount{
		UserID:       userID,
		Server:       s.defaults.Server,
		Port:         s.defaults.Port,
		PublicKey:    s.defaults.PublicKey,
		SNI:          s.serverName(ctx),
		Flow:         s.defaults.Flow,
		DevicesLimit: s.defaults.DevicesLimit,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		// 并发开通时另一方已创建
		if coreerrors.IsCode(err, coreerrors.CodeAlreadyExists) {
			return s.accounts.FindByUserID(ctx, userID)
		}
		return nil, err
	}
	s.logger.WithField(corelog.FieldUserID, userID).Infof("vpn account created")
	return acc, nil
}

func (s *Service) serverName(ctx context.Context) string {
	if s.proxy != nil {
		if cfg, err := s.proxy.Read(ctx); err == nil {
			if sni := cfg.Stream.FirstServerName(); sni != "" {
				return sni
			}
		}
	}
	return s.defaults.SNI
}
