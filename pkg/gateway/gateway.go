// Package gateway 将传输层事件（连接、断开、加入、离开、更新）翻译为房间核心调用。
// 所有下游错误都会以 errorNotice 的形式回送给发起连接，网关本身从不因客户端错误崩溃。
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/syncboard/pkg/logger"
	"github.com/tokmz/syncboard/pkg/relay"
	"github.com/tokmz/syncboard/pkg/room"
	"github.com/tokmz/syncboard/pkg/tracing"
)

const tracerName = "syncboard.gateway"

// 服务端下发事件
const (
	EventConnected       = "connected"
	EventUpdateDelivered = "update.delivered"
	EventMemberJoined    = "member.joined"
	EventMemberLeft      = "member.left"
	EventError           = "error"
)

// Notifier 向单个连接推送消息，由传输层实现
// 实现必须是非阻塞的：只入队，不做网络 I/O
type Notifier interface {
	Notify(id room.ConnID, event string, data any) error
	NotifyError(id room.ConnID, notice *ErrorNotice) error
}

// ErrorNotice 错误通知
type ErrorNotice struct {
	Kind      room.Kind `json:"kind"`
	Code      int       `json:"code"`
	Detail    string    `json:"detail"`
	RequestID string    `json:"request_id,omitempty"`
}

// Presence 成员变更通知
type Presence struct {
	Room    string      `json:"room"`
	ConnID  room.ConnID `json:"conn_id"`
	Members int         `json:"members"`
}

// Stats 网关统计
type Stats struct {
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Updates     uint64 `json:"updates"`
	Deliveries  uint64 `json:"deliveries"`
	Undelivered uint64 `json:"undelivered"`
	Rejected    uint64 `json:"rejected"`
}

// Gateway 网关
type Gateway struct {
	registry  *room.Registry
	rooms     *room.Manager
	sequencer *room.Sequencer

	notifier Notifier
	relay    relay.Publisher
	logger   logger.Logger
	tracer   trace.Tracer

	maxPayloadSize int
	presence       bool

	// mu 读锁覆盖每个进行中的请求，Shutdown 取写锁等待其全部完成
	mu      sync.RWMutex
	closing bool

	updates     atomic.Uint64
	deliveries  atomic.Uint64
	undelivered atomic.Uint64
	rejected    atomic.Uint64
}

// New 创建网关
func New(registry *room.Registry, rooms *room.Manager, opts ...Option) *Gateway {
	g := &Gateway{
		registry:       registry,
		rooms:          rooms,
		sequencer:      room.NewSequencer(rooms),
		relay:          relay.NewNoop(),
		logger:         logger.NewNop(),
		tracer:         otel.Tracer(tracerName),
		maxPayloadSize: DefaultMaxPayloadSize,
		presence:       true,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.presence {
		rooms.SetObserver(g)
	}
	return g
}

// SetNotifier 绑定传输层，需在处理连接之前调用
func (g *Gateway) SetNotifier(n Notifier) {
	g.notifier = n
}

// enter 进入请求区间，关闭中返回 false
func (g *Gateway) enter() bool {
	g.mu.RLock()
	if g.closing {
		g.mu.RUnlock()
		return false
	}
	return true
}

func (g *Gateway) exit() {
	g.mu.RUnlock()
}

// OnConnect 注册新连接
// 失败时连接尚无 ID，错误只返回给传输层，由其拒绝握手
func (g *Gateway) OnConnect(ctx context.Context) (room.ConnID, error) {
	if !g.enter() {
		g.rejected.Add(1)
		return "", room.ErrShuttingDown
	}
	defer g.exit()

	id, err := g.registry.Register()
	if err != nil {
		g.rejected.Add(1)
		g.logger.WarnContext(ctx, "connect rejected", zap.Error(err))
		return "", err
	}
	g.logger.DebugContext(ctx, "connection registered", zap.String("conn_id", id.String()))
	return id, nil
}

// OnDisconnect 注销连接，级联离开房间，可重复调用
// 关闭期间同样生效
func (g *Gateway) OnDisconnect(ctx context.Context, id room.ConnID) {
	g.registry.Unregister(id)
	g.logger.DebugContext(ctx, "connection unregistered", zap.String("conn_id", id.String()))
}

// OnJoin 加入房间，返回加入后的房间人数
func (g *Gateway) OnJoin(ctx context.Context, id room.ConnID, name string) (int, error) {
	if !g.enter() {
		return 0, g.Fail(ctx, id, room.ErrShuttingDown)
	}
	defer g.exit()

	if err := g.rooms.Join(id, name); err != nil {
		return 0, g.Fail(ctx, id, err)
	}
	return g.rooms.Members(name), nil
}

// OnLeave 离开当前房间，返回离开的房间名
// 不在任何房间时回送 RoomNotFound
func (g *Gateway) OnLeave(ctx context.Context, id room.ConnID) (string, error) {
	if !g.registry.IsAlive(id) {
		return "", g.Fail(ctx, id, room.ErrNotConnected)
	}
	name, left := g.rooms.Leave(id)
	if !left {
		return "", g.Fail(ctx, id, room.ErrRoomNotFound.WithMessage("not a member of any room"))
	}
	return name, nil
}

// OnUpdate 提交更新并扇出给房间成员（包括发送方）
func (g *Gateway) OnUpdate(ctx context.Context, id room.ConnID, payload json.RawMessage) (*room.Update, error) {
	if !g.enter() {
		return nil, g.Fail(ctx, id, room.ErrShuttingDown)
	}
	defer g.exit()

	if err := g.validate(payload); err != nil {
		return nil, g.Fail(ctx, id, err)
	}

	name, ok := g.registry.RoomOf(id)
	if !ok {
		return nil, g.Fail(ctx, id, room.ErrRoomNotFound.WithMessage("join a room before submitting updates"))
	}

	ctx, span := g.tracer.Start(ctx, "room.submit",
		trace.WithAttributes(
			attribute.String("room.name", name),
			attribute.String("conn.id", id.String()),
			attribute.Int("payload.size", len(payload)),
		),
	)
	defer span.End()

	u, err := g.sequencer.Submit(name, id, payload, func(u *room.Update, targets []room.ConnID) {
		g.fanout(ctx, u, targets)
	})
	if err != nil {
		// 读取房间与提交之间连接离开了房间
		tracing.RecordError(span, err)
		return nil, g.Fail(ctx, id, err)
	}

	tracing.SetAttributes(span, map[string]any{"room.seq": int64(u.Seq)})
	g.updates.Add(1)
	return u, nil
}

// fanout 在房间交付区间内执行，按序号顺序入队
func (g *Gateway) fanout(ctx context.Context, u *room.Update, targets []room.ConnID) {
	if g.notifier == nil {
		targets = nil
	}
	for _, target := range targets {
		if err := g.notifier.Notify(target, EventUpdateDelivered, u); err != nil {
			// 传输层负责断开无法接收的连接，保证成员不会看到空洞
			g.undelivered.Add(1)
			g.logger.WarnContext(ctx, "update not delivered",
				zap.String("room", u.Room),
				zap.Uint64("seq", u.Seq),
				zap.String("target", target.String()),
				zap.Error(err),
			)
			continue
		}
		g.deliveries.Add(1)
	}

	// 在交付区间内入队，镜像顺序与序号一致
	if err := g.relay.Publish(ctx, u); err != nil {
		g.logger.DebugContext(ctx, "relay enqueue failed", zap.String("room", u.Room), zap.Error(err))
	}
}

// validate 校验负载：非空、不超长、合法 JSON
func (g *Gateway) validate(payload json.RawMessage) error {
	if len(payload) == 0 {
		return room.ErrInvalidPayload.WithMessage("payload must not be empty")
	}
	if g.maxPayloadSize > 0 && len(payload) > g.maxPayloadSize {
		return room.ErrInvalidPayload.WithMessage("payload too large")
	}
	if !json.Valid(payload) {
		return room.ErrInvalidPayload.WithMessage("payload is not valid JSON")
	}
	return nil
}

// Fail 将错误以 errorNotice 回送给发起连接并原样返回
// 传输层自身的错误（如消息格式不合法）也经由此处统一下发
func (g *Gateway) Fail(ctx context.Context, id room.ConnID, err error) error {
	notice := NewErrorNotice(err, RequestIDFrom(ctx))

	g.logger.InfoContext(ctx, "request failed",
		zap.String("conn_id", id.String()),
		zap.String("kind", string(notice.Kind)),
		zap.Error(err),
	)

	if g.notifier != nil {
		if nerr := g.notifier.NotifyError(id, notice); nerr != nil {
			g.logger.DebugContext(ctx, "error notice not delivered",
				zap.String("conn_id", id.String()),
				zap.Error(nerr),
			)
		}
	}
	return err
}

// MemberJoined 实现 room.Observer，通知房间内所有成员
func (g *Gateway) MemberJoined(name string, id room.ConnID, members int) {
	g.broadcastPresence(EventMemberJoined, name, id, members)
}

// MemberLeft 实现 room.Observer，通知房间内剩余成员
func (g *Gateway) MemberLeft(name string, id room.ConnID, members int) {
	if members == 0 {
		return
	}
	g.broadcastPresence(EventMemberLeft, name, id, members)
}

func (g *Gateway) broadcastPresence(event, name string, id room.ConnID, members int) {
	if g.notifier == nil {
		return
	}
	p := &Presence{Room: name, ConnID: id, Members: members}
	for _, target := range g.rooms.BroadcastTargets(name) {
		_ = g.notifier.Notify(target, event, p)
	}
}

// Shutdown 拒绝新的连接与请求，并等待进行中的请求完成
func (g *Gateway) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		g.closing = true
		g.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("gateway drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closing 是否正在关闭
func (g *Gateway) Closing() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closing
}

// Stats 获取统计
func (g *Gateway) Stats() Stats {
	return Stats{
		Connections: g.registry.Count(),
		Rooms:       g.rooms.RoomCount(),
		Updates:     g.updates.Load(),
		Deliveries:  g.deliveries.Load(),
		Undelivered: g.undelivered.Load(),
		Rejected:    g.rejected.Load(),
	}
}
