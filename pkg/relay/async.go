package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/syncboard/pkg/logger"
	"github.com/tokmz/syncboard/pkg/room"
)

// AsyncStats 异步镜像统计
type AsyncStats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
}

// AsyncOption 异步镜像选项
type AsyncOption func(*Async)

// WithQueueSize 设置队列长度
func WithQueueSize(size int) AsyncOption {
	return func(a *Async) {
		if size > 0 {
			a.size = size
		}
	}
}

// WithPublishTimeout 设置单条发布超时
func WithPublishTimeout(d time.Duration) AsyncOption {
	return func(a *Async) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) AsyncOption {
	return func(a *Async) {
		a.logger = l
	}
}

// Async 异步镜像
// 单个 worker 按入队顺序发布，入队顺序与房间序号一致时下游保持有序。
// 队列满时丢弃并计数，绝不阻塞调用方。
type Async struct {
	pub     Publisher
	size    int
	timeout time.Duration
	logger  logger.Logger

	queue  chan *room.Update
	done   chan struct{}
	mu     sync.RWMutex // 保护 closed 与 queue 的关闭
	closed bool

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewAsync 创建异步镜像并启动 worker
func NewAsync(pub Publisher, opts ...AsyncOption) *Async {
	a := &Async{
		pub:     pub,
		size:    1024,
		timeout: 3 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.NewNop()
	}
	a.queue = make(chan *room.Update, a.size)

	go a.run()
	return a
}

// Publish 入队（非阻塞）
func (a *Async) Publish(_ context.Context, u *room.Update) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- u:
		return nil
	default:
		if n := a.dropped.Add(1); n == 1 || n%1000 == 0 {
			a.logger.Warn("relay queue full, dropping update",
				zap.String("room", u.Room),
				zap.Uint64("seq", u.Seq),
				zap.Uint64("dropped", n),
			)
		}
		return ErrQueueFull
	}
}

// run 按顺序发布
func (a *Async) run() {
	defer close(a.done)

	for u := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.pub.Publish(ctx, u)
		cancel()

		if err != nil {
			a.failed.Add(1)
			a.logger.Error("relay publish failed",
				zap.String("room", u.Room),
				zap.Uint64("seq", u.Seq),
				zap.Error(err),
			)
			continue
		}
		a.published.Add(1)
	}
}

// Stats 获取统计
func (a *Async) Stats() AsyncStats {
	return AsyncStats{
		Published: a.published.Load(),
		Failed:    a.failed.Load(),
		Dropped:   a.dropped.Load(),
		Pending:   len(a.queue),
	}
}

// Shutdown 停止入队，等待队列发送完毕后关闭底层发布器
// ctx 超时后不再等待，剩余消息丢弃
func (a *Async) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	select {
	case <-a.done:
		return a.pub.Close()
	case <-ctx.Done():
		a.logger.Warn("relay shutdown timeout", zap.Int("pending", len(a.queue)))
		return ctx.Err()
	}
}

// Close 实现 Publisher
func (a *Async) Close() error {
	return a.Shutdown(context.Background())
}
