package relay

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tokmz/syncboard/pkg/room"
)

// amqpChannel 发布所需的通道能力
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// amqpPublisher 发布到 topic 交换机
type amqpPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex // 通道不支持并发发布
	ch       amqpChannel
	exchange string
	prefix   string
}

// newAMQPPublisher 创建 RabbitMQ 发布器
func newAMQPPublisher(cfg *AMQPConfig) (Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%w: declare exchange: %w", ErrConnection, err)
	}

	return &amqpPublisher{
		conn:     conn,
		ch:       ch,
		exchange: cfg.Exchange,
		prefix:   cfg.RoutingPrefix,
	}, nil
}

// RoutingKey 返回房间对应的路由键
func (a *amqpPublisher) RoutingKey(name string) string {
	return a.prefix + name
}

// Publish 发布更新
func (a *amqpPublisher) Publish(ctx context.Context, u *room.Update) error {
	data, err := encode(u)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    u.Room + ":" + strconv.FormatUint(u.Seq, 10),
		Timestamp:    time.UnixMilli(u.Timestamp),
		Body:         data,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ch.PublishWithContext(ctx, a.exchange, a.RoutingKey(u.Room), false, false, msg); err != nil {
		return ErrPublish.WithError(err)
	}
	return nil
}

// Close 关闭通道和连接
func (a *amqpPublisher) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
