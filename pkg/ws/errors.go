package ws

import "errors"

// 错误定义
var (
	// 连接相关错误
	ErrClientIDExists   = errors.New("ws: client id already exists")
	ErrClientNotFound   = errors.New("ws: client not found")
	ErrConnectionClosed = errors.New("ws: connection closed")

	// 消息相关错误
	ErrHandlerNotFound = errors.New("ws: handler not found")
	ErrHandlerExists   = errors.New("ws: handler already exists")
	ErrChannelFull     = errors.New("ws: send channel full")
	ErrRouterFrozen    = errors.New("ws: router is frozen")

	// 配置相关错误
	ErrInvalidConfig = errors.New("ws: invalid config")
)
