package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	corelog "ghostline-core/internal/core/log"
)

// MemoryBroker 内存消息代理（单进程，无持久化）
type MemoryBroker struct {
	subscribers map[string][]chan *Message
	mu          sync.RWMutex
	source      string
	closed      bool
	logger      corelog.Logger
}

// NewMemoryBroker 创建内存消息代理
func NewMemoryBroker(source string, logger corelog.Logger) *MemoryBroker {
	if logger == nil {
		logger = corelog.Default()
	}
	return &MemoryBroker{
		subscribers: make(map[string][]chan *Message),
		source:      source,
		logger:      logger.WithField(corelog.FieldComponent, "broker"),
	}
}

// Publish 投递给当前所有订阅者；通道满时丢弃，不阻塞发布方
func (m *MemoryBroker) Publish(ctx context.Context, topic string, message []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("broker is closed")
	}

	subscribers := m.subscribers[topic]
	if len(subscribers) == 0 {
		return nil
	}

	msg := &Message{
		Topic:     topic,
		Payload:   message,
		Timestamp: time.Now(),
		Source:    m.source,
	}
	for _, ch := range subscribers {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			m.logger.Warnf("subscriber channel full for topic %s, dropping message", topic)
		}
	}
	return nil
}

// Subscribe 订阅主题
func (m *MemoryBroker) Subscribe(ctx context.Context, topic string) (<-chan *Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	ch := make(chan *Message, 100)
	m.subscribers[topic] = append(m.subscribers[topic], ch)
	return ch, nil
}

// Unsubscribe 关闭主题下所有订阅通道
func (m *MemoryBroker) Unsubscribe(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subscribers[topic] {
		close(ch)
	}
	delete(m.subscribers, topic)
	return nil
}

func (m *MemoryBroker) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("broker is closed")
	}
	return nil
}

func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for topic, chans := range m.subscribers {
		for _, ch := range chans {
			close(ch)
		}
		delete(m.subscribers, topic)
	}
	return nil
}
