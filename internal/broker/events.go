package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AccountEvent 账户类事件载荷
type AccountEvent struct {
	UserIDs []string  `json:"user_ids"`
	Reason  string    `json:"reason,omitempty"`
	IPs     int       `json:"ips,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	At      time.Time `json:"at"`
}

// SubscriptionEvent 订阅类事件载荷
type SubscriptionEvent struct {
	SubscriptionID int64     `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	Plan           string    `json:"plan"`
	EndDate        time.Time `json:"end_date"`
	At             time.Time `json:"at"`
}

// Publisher 只需要发布能力的组件依赖此接口
type Publisher interface {
	Publish(ctx context.Context, topic string, message []byte) error
}

// PublishJSON 序列化 v 并发布
func PublishJSON(ctx context.Context, p Publisher, topic string, v interface{}) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	return p.Publish(ctx, topic, data)
}

// Decode 解析消息载荷
func Decode[T any](msg *Message) (T, error) {
	var v T
	err := json.Unmarshal(msg.Payload, &v)
	return v, err
}
