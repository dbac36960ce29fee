package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel 记录发布的消息
type fakeChannel struct {
	mu       sync.Mutex
	exchange string
	key      string
	msgs     []amqp.Publishing
	fail     error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.exchange = exchange
	f.key = key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestAMQPPublisherRoutesByRoom(t *testing.T) {
	ch := &fakeChannel{}
	pub := &amqpPublisher{ch: ch, exchange: "syncboard.updates", prefix: "room."}

	require.NoError(t, pub.Publish(context.Background(), update(7)))

	assert.Equal(t, "syncboard.updates", ch.exchange)
	assert.Equal(t, "room.alpha", ch.key)
	require.Len(t, ch.msgs, 1)

	msg := ch.msgs[0]
	assert.Equal(t, "alpha:7", msg.MessageId)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Body, &env))
	assert.Equal(t, uint64(7), env.Seq)
	assert.Equal(t, "c1", env.Origin)

	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisherWrapsFailure(t *testing.T) {
	cause := errors.New("channel/connection is not open")
	pub := &amqpPublisher{ch: &fakeChannel{fail: cause}, exchange: "syncboard.updates", prefix: "room."}

	err := pub.Publish(context.Background(), update(1))
	assert.ErrorIs(t, err, ErrPublish)
	assert.ErrorIs(t, err, cause)
}
