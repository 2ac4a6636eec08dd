// Package broker 事件分发
//
// 账户与订阅状态变化以事件形式发布，供机器人和支付前端订阅（单机用内存实现，多进程用 Redis Pub/Sub）。
package broker

import (
	"context"
	"time"
)

// MessageBroker 消息代理接口
type MessageBroker interface {
	// Publish 发布消息到指定主题
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe 订阅主题，返回消息通道
	Subscribe(ctx context.Context, topic string) (<-chan *Message, error)

	// Unsubscribe 取消订阅并关闭对应通道
	Unsubscribe(ctx context.Context, topic string) error

	// Ping 检查代理是否可用
	Ping(ctx context.Context) error

	Close() error
}

// Message 消息结构
type Message struct {
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // 发布者实例名
}

// 主题
const (
	TopicAccountProvisioned  = "account.provisioned"  // 客户端条目写入代理配置
	TopicAccountRemoved      = "account.removed"      // 客户端条目从代理配置移除
	TopicAccountBanned       = "account.banned"       // 设备数超限被封禁
	TopicAccountUnbanned     = "account.unbanned"     // 设备数恢复后解封
	TopicSubscriptionCreated = "subscription.created" // 新订阅（试用或付费）
	TopicSubscriptionExpired = "subscription.expired" // 订阅到期
)
