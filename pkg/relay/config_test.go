package relay

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default none", func(*Config) {}, false},
		{"redis without config", func(c *Config) { c.Driver = DriverRedis }, true},
		{"redis", func(c *Config) { c.Driver = DriverRedis; c.Redis = DefaultRedisConfig() }, false},
		{"kafka without topic", func(c *Config) {
			c.Driver = DriverKafka
			c.Kafka = &KafkaConfig{Brokers: []string{"localhost:9092"}}
		}, true},
		{"kafka", func(c *Config) { c.Driver = DriverKafka; c.Kafka = DefaultKafkaConfig() }, false},
		{"amqp", func(c *Config) { c.Driver = DriverAMQP; c.AMQP = DefaultAMQPConfig() }, false},
		{"amqp without exchange", func(c *Config) {
			c.Driver = DriverAMQP
			c.AMQP = &AMQPConfig{URL: "amqp://localhost"}
		}, true},
		{"unknown driver", func(c *Config) { c.Driver = "nats" }, true},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewNoneDriver(t *testing.T) {
	pub, err := New(nil)
	require.NoError(t, err)
	assert.NoError(t, pub.Publish(context.Background(), update(1)))
	assert.NoError(t, pub.Close())
}

func TestRedisPublisherChannelAndFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	pub := NewRedisPublisher(client, "syncboard:room:")
	defer pub.Close()

	assert.Equal(t, "syncboard:room:alpha", pub.(*redisPublisher).Channel("alpha"))

	err := NewTracing(pub, DriverRedis).Publish(context.Background(), update(1))
	assert.ErrorIs(t, err, ErrPublish)
}
