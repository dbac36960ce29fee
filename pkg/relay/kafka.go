package relay

import (
	"context"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/tokmz/syncboard/pkg/room"
)

// kafkaPublisher 同步生产者，房间名作为消息键
// 默认哈希分区器保证同一房间落在同一分区，分区内保持序号顺序
type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// newKafkaPublisher 创建 Kafka 发布器
func newKafkaPublisher(cfg *KafkaConfig) (Publisher, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	if cfg.Version != "" {
		version, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		sc.Version = version
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return NewKafkaPublisher(producer, cfg.Topic), nil
}

// NewKafkaPublisher 使用已有生产者创建发布器
func NewKafkaPublisher(producer sarama.SyncProducer, topic string) Publisher {
	return &kafkaPublisher{producer: producer, topic: topic}
}

// Publish 发布更新
func (k *kafkaPublisher) Publish(ctx context.Context, u *room.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(u)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(u.Room),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("seq"), Value: []byte(strconv.FormatUint(u.Seq, 10))},
			{Key: []byte("origin"), Value: []byte(u.Origin)},
		},
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return ErrPublish.WithError(err)
	}
	return nil
}

// Close 关闭生产者
func (k *kafkaPublisher) Close() error {
	return k.producer.Close()
}
