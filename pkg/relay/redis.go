package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/syncboard/pkg/room"
)

// redisPublisher 通过 PUBLISH 镜像到 Redis 频道
type redisPublisher struct {
	client redis.UniversalClient
	prefix string
}

// newRedisPublisher 创建 Redis 发布器
func newRedisPublisher(cfg *RedisConfig) (Publisher, error) {
	var client redis.UniversalClient

	switch cfg.Mode {
	case RedisStandalone, "":
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})

	case RedisCluster:
		if len(cfg.Addrs) == 0 {
			return nil, fmt.Errorf("%w: cluster mode requires addrs", ErrInvalidConfig)
		}
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})

	case RedisSentinel:
		if len(cfg.Addrs) == 0 || cfg.MasterName == "" {
			return nil, fmt.Errorf("%w: sentinel mode requires addrs and master name", ErrInvalidConfig)
		}
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			DialTimeout:   cfg.DialTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported redis mode: %s", ErrInvalidConfig, cfg.Mode)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	return NewRedisPublisher(client, cfg.ChannelPrefix), nil
}

// NewRedisPublisher 使用已有客户端创建发布器
func NewRedisPublisher(client redis.UniversalClient, channelPrefix string) Publisher {
	return &redisPublisher{client: client, prefix: channelPrefix}
}

// Channel 返回房间对应的频道名
func (r *redisPublisher) Channel(name string) string {
	return r.prefix + name
}

// Publish 发布更新
func (r *redisPublisher) Publish(ctx context.Context, u *room.Update) error {
	data, err := encode(u)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.Channel(u.Room), data).Err(); err != nil {
		return ErrPublish.WithError(err)
	}
	return nil
}

// Close 关闭客户端
func (r *redisPublisher) Close() error {
	return r.client.Close()
}
