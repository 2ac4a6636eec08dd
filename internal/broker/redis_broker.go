package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	corelog "ghostline-core/internal/core/log"
)

// RedisBrokerConfig Redis Broker 配置
type RedisBrokerConfig struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	ChannelPrefix string
}

// RedisBroker 基于 Redis Pub/Sub 的消息代理
type RedisBroker struct {
	client redis.UniversalClient
	prefix string
	source string
	logger corelog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	pubsub      *redis.PubSub
	subscribers map[string]chan *Message
	closed      bool
	loopDone    chan struct{}
}

// NewRedisBroker 创建 Redis 消息代理并检查连通性
func NewRedisBroker(parentCtx context.Context, config *RedisBrokerConfig, source string, logger corelog.Logger) (*RedisBroker, error) {
	if config == nil {
		return nil, fmt.Errorf("redis broker config is required")
	}
	if logger == nil {
		logger = corelog.Default()
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	prefix := config.ChannelPrefix
	if prefix == "" {
		prefix = "ghostline"
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{config.Addr},
		Password: config.Password,
		DB:       config.DB,
		PoolSize: poolSize,
	})

	pingCtx, pingCancel := context.WithTimeout(parentCtx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	b := &RedisBroker{
		client:      client,
		prefix:      prefix,
		source:      source,
		logger:      logger.WithFields(corelog.Fields{corelog.FieldComponent: "broker", "addr": config.Addr}),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[string]chan *Message),
	}
	b.logger.Infof("redis broker connected")
	return b, nil
}

func (r *RedisBroker) channel(topic string) string {
	return r.prefix + ":" + topic
}

// Publish 发布消息（带元数据的 JSON 信封）
func (r *RedisBroker) Publish(ctx context.Context, topic string, message []byte) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return fmt.Errorf("broker is closed")
	}

	data, err := json.Marshal(&Message{
		Topic:     topic,
		Payload:   message,
		Timestamp: time.Now(),
		Source:    r.source,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel(topic), data).Err(); err != nil {
		r.logger.WithError(err).Errorf("failed to publish to %s", topic)
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

// Subscribe 订阅主题；每个主题只允许一个订阅者
func (r *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan *Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("broker is closed")
	}
	if _, exists := r.subscribers[topic]; exists {
		return nil, fmt.Errorf("already subscribed to topic: %s", topic)
	}

	startLoop := false
	if r.pubsub == nil {
		r.pubsub = r.client.Subscribe(r.ctx)
		startLoop = true
	}
	if err := r.pubsub.Subscribe(ctx, r.channel(topic)); err != nil {
		return nil, fmt.Errorf("failed to subscribe to Redis: %w", err)
	}
	// 首次订阅时等待确认，保证返回后发布的消息不会丢失；之后的确认由接收循环跳过
	if startLoop {
		if _, err := r.pubsub.Receive(ctx); err != nil {
			_ = r.pubsub.Close()
			r.pubsub = nil
			return nil, fmt.Errorf("failed to confirm Redis subscription: %w", err)
		}
	}

	ch := make(chan *Message, 100)
	r.subscribers[topic] = ch

	if startLoop {
		r.loopDone = make(chan struct{})
		go r.receiveLoop(r.pubsub, r.loopDone)
	}
	return ch, nil
}

func (r *RedisBroker) receiveLoop(ps *redis.PubSub, done chan struct{}) {
	defer close(done)
	for {
		msg, err := ps.ReceiveMessage(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.WithError(err).Warnf("failed to receive message")
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		var message Message
		if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
			r.logger.WithError(err).Warnf("dropping malformed message on %s", msg.Channel)
			continue
		}

		r.mu.RLock()
		ch, exists := r.subscribers[message.Topic]
		if exists {
			select {
			case ch <- &message:
			default:
				r.logger.Warnf("subscriber channel full for topic %s, dropping message", message.Topic)
			}
		}
		r.mu.RUnlock()
	}
}

// Unsubscribe 取消订阅
func (r *RedisBroker) Unsubscribe(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.subscribers[topic]
	if !exists {
		return fmt.Errorf("not subscribed to topic: %s", topic)
	}
	if r.pubsub != nil {
		if err := r.pubsub.Unsubscribe(ctx, r.channel(topic)); err != nil {
			r.logger.WithError(err).Warnf("failed to unsubscribe from Redis")
		}
	}
	delete(r.subscribers, topic)
	close(ch)
	return nil
}

// Close 停止接收循环并关闭连接
// Ping 检查 Redis 连接
func (r *RedisBroker) Ping(ctx context.Context) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return fmt.Errorf("broker is closed")
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisBroker) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.cancel()
	ps, done := r.pubsub, r.loopDone
	r.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
	}
	if done != nil {
		<-done
	}

	r.mu.Lock()
	for topic, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, topic)
	}
	r.mu.Unlock()

	return r.client.Close()
}
