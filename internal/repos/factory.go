package repos

import (
	"context"
	"fmt"

	"ghostline-core/internal/config/schema"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/storage/postgres"
)

// Set 一组仓库及其底层连接
type Set struct {
	Accounts      VpnAccountRepository
	Subscriptions SubscriptionRepository

	// PG 仅 postgres 类型时非空
	PG *postgres.Storage
}

// Ping 检查存储连通性（内存实现总是可用）
func (s *Set) Ping(ctx context.Context) error {
	if s.PG == nil {
		return nil
	}
	return s.PG.Ping(ctx)
}

func (s *Set) Close() error {
	if s.PG == nil {
		return nil
	}
	return s.PG.Close()
}

// Open 按配置创建仓库
func Open(ctx context.Context, cfg schema.DatabaseConfig, logger corelog.Logger) (*Set, error) {
	switch cfg.Type {
	case schema.DatabaseMemory, "":
		return &Set{
			Accounts:      NewMemoryVpnAccountRepository(),
			Subscriptions: NewMemorySubscriptionRepository(),
		}, nil
	case schema.DatabasePostgres:
		pg, err := postgres.New(ctx, postgres.ConfigFromSchema(cfg), logger)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		return &Set{
			Accounts:      NewPgVpnAccountRepository(pg),
			Subscriptions: NewPgSubscriptionRepository(pg),
			PG:            pg,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
