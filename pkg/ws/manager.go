package ws

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/syncboard/pkg/errors"
	"github.com/tokmz/syncboard/pkg/gateway"
	"github.com/tokmz/syncboard/pkg/logger"
	"github.com/tokmz/syncboard/pkg/room"
)

// Manager WebSocket 传输层，实现 gateway.Notifier
type Manager struct {
	// 核心组件
	gateway *gateway.Gateway
	pool    *ConnectionPool
	router  *MessageRouter

	// 配置
	config   *Config
	upgrader *Upgrader
	logger   logger.Logger

	// 生命周期
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 监控
	metrics Metrics
}

var _ gateway.Notifier = (*Manager)(nil)

// NewManager 创建管理器并绑定到网关
func NewManager(gw *gateway.Gateway, opts ...Option) (*Manager, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// 默认监控
	if config.Metrics == nil {
		config.Metrics = &CounterMetrics{}
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		gateway:  gw,
		pool:     NewConnectionPool(),
		router:   NewMessageRouter(),
		config:   config,
		upgrader: NewUpgrader(config.UpgraderConfig, config.HandshakeTimeout),
		logger:   config.Logger,
		ctx:      ctx,
		cancel:   cancel,
		metrics:  config.Metrics,
	}

	m.router.Use(m.metricsMiddleware)
	if err := m.registerHandlers(); err != nil {
		cancel()
		return nil, err
	}
	m.router.Freeze()

	gw.SetNotifier(m)
	return m, nil
}

// HandleUpgrade 处理 WebSocket 升级
// 先向网关注册连接，容量不足或正在关闭时以 HTTP 错误拒绝握手
func (m *Manager) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	id, err := m.gateway.OnConnect(r.Context())
	if err != nil {
		status := http.StatusServiceUnavailable
		var e *errors.Error
		if errors.As(err, &e) {
			status = e.HttpCode
		}
		http.Error(w, err.Error(), status)
		return err
	}

	conn, err := m.upgrader.Upgrade(w, r)
	if err != nil {
		// Upgrade 已写入 HTTP 错误响应
		m.gateway.OnDisconnect(r.Context(), id)
		return err
	}

	client := newClient(conn, m, id)
	if err := m.pool.Add(client); err != nil {
		m.gateway.OnDisconnect(r.Context(), id)
		conn.Close()
		return err
	}
	m.metrics.IncrementConnections()

	// 握手消息必须是第一帧
	hello, err := encodeNotify(gateway.EventConnected, map[string]string{"conn_id": id.String()})
	if err == nil {
		err = client.SendBytesHigh(hello)
	}
	if err != nil {
		client.Close()
		return err
	}

	m.logger.DebugContext(client.ctx, "websocket connected", zap.String("remote", client.RemoteAddr()))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		client.Run()
	}()

	return nil
}

// Notify 实现 gateway.Notifier
func (m *Manager) Notify(id room.ConnID, event string, data any) error {
	client, ok := m.pool.Get(id)
	if !ok {
		return ErrClientNotFound
	}

	msg, err := encodeNotify(event, data)
	if err != nil {
		return err
	}
	if err := client.SendBytes(msg); err != nil {
		m.metrics.IncrementDroppedMessages()
		return err
	}
	return nil
}

// NotifyError 实现 gateway.Notifier
func (m *Manager) NotifyError(id room.ConnID, notice *gateway.ErrorNotice) error {
	client, ok := m.pool.Get(id)
	if !ok {
		return ErrClientNotFound
	}
	if err := client.SendJSON(NewErrorResponse(notice)); err != nil {
		m.metrics.IncrementDroppedMessages()
		return err
	}
	return nil
}

// Shutdown 优雅关闭：并发关闭所有客户端并等待读写协程退出
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	var g errgroup.Group
	m.pool.Range(func(c *Client) bool {
		g.Go(func() error {
			c.Close()
			return nil
		})
		return true
	})
	_ = g.Wait()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetClient 获取客户端
func (m *Manager) GetClient(id room.ConnID) (*Client, bool) {
	return m.pool.Get(id)
}

// GetClientCount 获取连接数
func (m *Manager) GetClientCount() int {
	return m.pool.Count()
}

// Metrics 获取监控实现
func (m *Manager) Metrics() Metrics {
	return m.metrics
}
