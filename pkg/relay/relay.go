// Package relay 将已排序的房间更新异步镜像到外部消息系统（Redis / Kafka / RabbitMQ），
// 供下游消费者订阅。镜像只写不读，失败不影响房间内的交付。
package relay

import (
	"context"
	"encoding/json"

	"github.com/tokmz/syncboard/pkg/room"
)

// Publisher 更新发布器
type Publisher interface {
	// Publish 发布一条已排序的更新
	Publish(ctx context.Context, u *room.Update) error

	// Close 关闭发布器并释放连接
	Close() error
}

// Envelope 镜像消息体
type Envelope struct {
	Room      string          `json:"room"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
	Origin    string          `json:"origin"`
	Timestamp int64           `json:"ts"`
}

// encode 序列化更新
func encode(u *room.Update) ([]byte, error) {
	data, err := json.Marshal(Envelope{
		Room:      u.Room,
		Seq:       u.Seq,
		Payload:   u.Payload,
		Origin:    u.Origin.String(),
		Timestamp: u.Timestamp,
	})
	if err != nil {
		return nil, ErrSerialization.WithError(err)
	}
	return data, nil
}

// noopPublisher 未配置镜像时使用
type noopPublisher struct{}

// NewNoop 创建空发布器
func NewNoop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, *room.Update) error { return nil }
func (noopPublisher) Close() error                                 { return nil }
