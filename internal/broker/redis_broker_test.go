package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostline-core/internal/config/schema"
)

func newTestRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker(context.Background(), &RedisBrokerConfig{Addr: mr.Addr(), ChannelPrefix: "test"}, "node-a", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedisBroker(t)

	ch, err := b.Subscribe(ctx, TopicSubscriptionExpired)
	require.NoError(t, err)

	ev := SubscriptionEvent{SubscriptionID: 7, UserID: "abc", Plan: "trial", At: time.Unix(200, 0).UTC()}
	require.NoError(t, PublishJSON(ctx, b, TopicSubscriptionExpired, ev))

	select {
	case msg := <-ch:
		assert.Equal(t, TopicSubscriptionExpired, msg.Topic)
		assert.Equal(t, "node-a", msg.Source)
		got, err := Decode[SubscriptionEvent](msg)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestRedisBroker_ChannelPrefix(t *testing.T) {
	b, mr := newTestRedisBroker(t)
	_, err := b.Subscribe(context.Background(), TopicAccountBanned)
	require.NoError(t, err)

	assert.Contains(t, mr.PubSubChannels(""), "test:account.banned")
}

func TestRedisBroker_DuplicateSubscribe(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedisBroker(t)

	_, err := b.Subscribe(ctx, TopicAccountRemoved)
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, TopicAccountRemoved)
	assert.Error(t, err)
}

func TestRedisBroker_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedisBroker(t)

	ch, err := b.Subscribe(ctx, TopicAccountUnbanned)
	require.NoError(t, err)
	require.NoError(t, b.Unsubscribe(ctx, TopicAccountUnbanned))

	_, ok := <-ch
	assert.False(t, ok)
	assert.Error(t, b.Unsubscribe(ctx, TopicAccountUnbanned))
}

func TestRedisBroker_ConnectFailure(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), &RedisBrokerConfig{Addr: "127.0.0.1:1"}, "", nil)
	assert.Error(t, err)
}

func TestNew_Types(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, schema.BrokerConfig{Type: schema.BrokerMemory}, "n", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBroker{}, b)
	require.NoError(t, b.Close())

	mr := miniredis.RunT(t)
	cfg := schema.BrokerConfig{Type: schema.BrokerRedis, ChannelPrefix: "gl"}
	cfg.Redis.Addr = mr.Addr()
	b, err = New(ctx, cfg, "n", nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisBroker{}, b)
	require.NoError(t, b.Ping(ctx))
	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(ctx))

	_, err = New(ctx, schema.BrokerConfig{Type: "kafka"}, "n", nil)
	assert.Error(t, err)
}
