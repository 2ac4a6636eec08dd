package broker

import (
	"context"
	"fmt"

	"ghostline-core/internal/config/schema"
	corelog "ghostline-core/internal/core/log"
)

// New 按配置创建消息代理
func New(ctx context.Context, cfg schema.BrokerConfig, source string, logger corelog.Logger) (MessageBroker, error) {
	switch cfg.Type {
	case schema.BrokerMemory, "":
		return NewMemoryBroker(source, logger), nil
	case schema.BrokerRedis:
		return NewRedisBroker(ctx, &RedisBrokerConfig{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password.Value(),
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			ChannelPrefix: cfg.ChannelPrefix,
		}, source, logger)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Type)
	}
}
