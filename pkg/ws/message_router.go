package ws

import (
	"context"
	"sync"

	"github.com/tokmz/syncboard/pkg/room"
)

// Handler 消息处理器
// 返回的错误会以 errorNotice 下发给客户端，已经由 Gateway 下发过的错误应包装 errNotified
type Handler func(ctx context.Context, c *Client, msg *Message) error

// NextFunc 中间件下一步函数
type NextFunc func() error

// MiddlewareFunc 中间件函数
type MiddlewareFunc func(ctx context.Context, c *Client, msg *Message, next NextFunc) error

// MessageRouter 消息路由器
type MessageRouter struct {
	handlers   map[string]Handler
	middleware []MiddlewareFunc
	compiled   map[string]Handler // 预编译的处理器链
	mu         sync.RWMutex
	frozen     bool
}

// NewMessageRouter 创建路由器
func NewMessageRouter() *MessageRouter {
	return &MessageRouter{
		handlers: make(map[string]Handler),
	}
}

// Register 注册处理器
func (r *MessageRouter) Register(event string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRouterFrozen
	}

	if _, exists := r.handlers[event]; exists {
		return ErrHandlerExists
	}

	r.handlers[event] = handler
	return nil
}

// Use 添加中间件
func (r *MessageRouter) Use(middleware ...MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// Freeze 冻结路由器（启动后不可修改）
func (r *MessageRouter) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true

	// 预编译所有处理器链
	r.compiled = make(map[string]Handler, len(r.handlers))
	for event, handler := range r.handlers {
		r.compiled[event] = buildChain(r.middleware, handler)
	}
}

// buildChain 从后向前构建中间件链
func buildChain(middleware []MiddlewareFunc, handler Handler) Handler {
	finalHandler := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := finalHandler
		finalHandler = func(ctx context.Context, c *Client, m *Message) error {
			return mw(ctx, c, m, func() error {
				return next(ctx, c, m)
			})
		}
	}
	return finalHandler
}

// Route 路由消息
func (r *MessageRouter) Route(ctx context.Context, client *Client, msg *Message) error {
	r.mu.RLock()
	if r.frozen {
		handler, exists := r.compiled[msg.Event]
		r.mu.RUnlock()
		if !exists {
			return ErrHandlerNotFound
		}
		return handler(ctx, client, msg)
	}

	// 未冻结时动态构建
	handler, exists := r.handlers[msg.Event]
	middlewareCopy := append([]MiddlewareFunc(nil), r.middleware...)
	r.mu.RUnlock()

	if !exists {
		return ErrHandlerNotFound
	}
	return buildChain(middlewareCopy, handler)(ctx, client, msg)
}

// HandlerFunc 泛型处理器函数（有请求有响应）
type HandlerFunc[Req any, Resp any] func(ctx context.Context, c *Client, req *Req) (*Resp, error)

// Handle 注册泛型处理器
// 请求数据无法解析时返回 InvalidPayload；成功且带 request_id 时回送响应
func Handle[Req any, Resp any](router *MessageRouter, event string, handler HandlerFunc[Req, Resp]) error {
	return router.Register(event, func(ctx context.Context, c *Client, msg *Message) error {
		var req Req
		if err := msg.Unmarshal(&req); err != nil {
			return room.ErrInvalidPayload.WithMessage("invalid request data")
		}

		resp, err := handler(ctx, c, &req)
		if err != nil {
			return err
		}

		if msg.RequestID == "" {
			return nil
		}
		return c.SendResponse(msg.Event, msg.RequestID, 200, "success", resp)
	})
}
