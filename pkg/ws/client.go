package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/syncboard/pkg/gateway"
	"github.com/tokmz/syncboard/pkg/logger"
	"github.com/tokmz/syncboard/pkg/room"
)

// Client WebSocket 客户端
type Client struct {
	ID      room.ConnID
	conn    *websocket.Conn
	manager *Manager

	// 发送队列
	send     chan []byte
	sendHigh chan []byte // 高优先级队列（握手消息）

	// 心跳
	lastPong atomic.Int64 // Unix timestamp

	// 生命周期
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once

	// 限流
	invalidMsgCount atomic.Int32 // 连续无效消息计数
}

// newClient 创建客户端
func newClient(conn *websocket.Conn, manager *Manager, id room.ConnID) *Client {
	ctx, cancel := context.WithCancel(manager.ctx)
	ctx = logger.WithConnID(ctx, id.String())

	client := &Client{
		ID:       id,
		conn:     conn,
		manager:  manager,
		send:     make(chan []byte, manager.config.MessageQueueSize),
		sendHigh: make(chan []byte, manager.config.HighPriorityQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	client.lastPong.Store(time.Now().Unix())

	return client
}

// Run 运行客户端，阻塞直到连接关闭
func (c *Client) Run() {
	var wg sync.WaitGroup
	wg.Add(2)

	// 读协程
	go func() {
		defer wg.Done()
		c.readPump()
	}()

	// 写协程
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	wg.Wait()
	c.Close()
}

// readPump 读取消息
func (c *Client) readPump() {
	defer c.Close()

	cfg := c.manager.config
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.HeartbeatTimeout)); err != nil {
		c.manager.metrics.IncrementReadErrors()
		return
	}
	c.conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().Unix())
		return c.conn.SetReadDeadline(time.Now().Add(cfg.HeartbeatTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.closed.Load() {
				c.manager.metrics.IncrementReadErrors()
				c.manager.logger.DebugContext(c.ctx, "websocket read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			if !c.invalid(room.ErrInvalidMessage.WithMessage("invalid message format"), "") {
				return
			}
			continue
		}

		ctx := gateway.WithRequestID(c.ctx, msg.RequestID)
		err = c.manager.router.Route(ctx, c, &msg)
		switch {
		case err == nil, errors.Is(err, errNotified):
			c.invalidMsgCount.Store(0)
		case errors.Is(err, ErrHandlerNotFound):
			if !c.invalid(room.ErrInvalidMessage.WithMessage("unknown event: "+msg.Event), msg.RequestID) {
				return
			}
		default:
			c.invalidMsgCount.Store(0)
			_ = c.manager.gateway.Fail(ctx, c.ID, err)
		}
	}
}

// invalid 记录无效消息并下发错误，超过阈值返回 false
func (c *Client) invalid(err error, requestID string) bool {
	c.manager.metrics.IncrementInvalidMessages()

	count := c.invalidMsgCount.Add(1)
	if int(count) > c.manager.config.MaxInvalidMessages {
		c.manager.logger.WarnContext(c.ctx, "too many invalid messages, closing", zap.Int32("count", count))
		return false
	}
	_ = c.manager.gateway.Fail(gateway.WithRequestID(c.ctx, requestID), c.ID, err)
	return true
}

// writePump 写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(c.manager.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		// 高优先级消息先行
		select {
		case message := <-c.sendHigh:
			if err := c.writeMessage(message); err != nil {
				return
			}
			continue
		default:
		}

		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(c.manager.config.WriteWait))
			return

		case message := <-c.sendHigh:
			if err := c.writeMessage(message); err != nil {
				return
			}

		case message := <-c.send:
			if err := c.writeMessage(message); err != nil {
				return
			}

		case <-ticker.C:
			// 发送心跳
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.manager.metrics.IncrementWriteErrors()
				return
			}
		}
	}
}

// writeMessage 写入消息
func (c *Client) writeMessage(message []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteWait)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.manager.metrics.IncrementWriteErrors()
		return err
	}
	return nil
}

// SendBytes 发送字节消息（非阻塞）
// 队列已满说明客户端消费过慢，立即标记关闭，之后的消息不再入队，
// 保证该客户端看到的序号不会出现空洞
func (c *Client) SendBytes(msg []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.abort()
		return ErrChannelFull
	}
}

// SendBytesHigh 发送高优先级字节消息
func (c *Client) SendBytesHigh(msg []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendHigh <- msg:
		return nil
	default:
		c.abort()
		return ErrChannelFull
	}
}

// SendJSON 发送 JSON 消息
func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendBytes(data)
}

// SendResponse 发送响应
func (c *Client) SendResponse(event, requestID string, code int, message string, data any) error {
	return c.SendJSON(NewResponse(event, requestID, code, message, data))
}

// abort 标记关闭并异步清理
// 调用方可能处于房间交付区间内，不能同步注销
func (c *Client) abort() {
	if c.closed.CompareAndSwap(false, true) {
		c.manager.metrics.IncrementSlowConsumers()
		c.manager.logger.WarnContext(c.ctx, "send queue full, disconnecting slow client")
		go c.Close()
	}
}

// Close 关闭客户端，可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()

		// 从连接池移除并注销
		c.manager.pool.Remove(c)
		c.manager.gateway.OnDisconnect(c.ctx, c.ID)
		c.manager.metrics.DecrementConnections()

		// 关闭连接（会触发 readPump 退出）
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// IsClosed 检查是否已关闭
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// RemoteAddr 获取远程地址
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
