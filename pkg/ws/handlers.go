package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// errNotified 标记已由 Gateway 下发过通知的错误，避免重复下发
var errNotified = errors.New("ws: error already notified")

// notified 包装 Gateway 返回的错误
func notified(err error) error {
	return fmt.Errorf("%w: %w", errNotified, err)
}

// JoinRequest 加入房间
type JoinRequest struct {
	Room string `json:"room"`
}

// JoinResponse 加入房间应答
type JoinResponse struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
}

// LeaveRequest 离开房间
type LeaveRequest struct{}

// LeaveResponse 离开房间应答
type LeaveResponse struct {
	Room string `json:"room"`
}

// UpdateRequest 提交更新
type UpdateRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// UpdateResponse 提交更新应答
type UpdateResponse struct {
	Room string `json:"room"`
	Seq  uint64 `json:"seq"`
}

// registerHandlers 注册房间同步事件
func (m *Manager) registerHandlers() error {
	if err := Handle(m.router, EventJoin, m.handleJoin); err != nil {
		return err
	}
	if err := Handle(m.router, EventLeave, m.handleLeave); err != nil {
		return err
	}
	return Handle(m.router, EventUpdate, m.handleUpdate)
}

func (m *Manager) handleJoin(ctx context.Context, c *Client, req *JoinRequest) (*JoinResponse, error) {
	members, err := m.gateway.OnJoin(ctx, c.ID, req.Room)
	if err != nil {
		return nil, notified(err)
	}
	return &JoinResponse{Room: req.Room, Members: members}, nil
}

func (m *Manager) handleLeave(ctx context.Context, c *Client, _ *LeaveRequest) (*LeaveResponse, error) {
	name, err := m.gateway.OnLeave(ctx, c.ID)
	if err != nil {
		return nil, notified(err)
	}
	return &LeaveResponse{Room: name}, nil
}

func (m *Manager) handleUpdate(ctx context.Context, c *Client, req *UpdateRequest) (*UpdateResponse, error) {
	u, err := m.gateway.OnUpdate(ctx, c.ID, req.Payload)
	if err != nil {
		return nil, notified(err)
	}
	return &UpdateResponse{Room: u.Room, Seq: u.Seq}, nil
}

// metricsMiddleware 记录消息计数与处理耗时
func (m *Manager) metricsMiddleware(ctx context.Context, c *Client, msg *Message, next NextFunc) error {
	start := time.Now()
	err := next()
	m.metrics.IncrementMessageCount(msg.Event)
	m.metrics.RecordMessageLatency(msg.Event, time.Since(start).Microseconds())
	if err != nil {
		m.metrics.IncrementMessageErrors(msg.Event)
	}
	return err
}

