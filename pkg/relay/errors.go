package relay

import "github.com/tokmz/syncboard/pkg/errors"

// 预定义错误（4xxx）
var (
	ErrInvalidConfig = errors.New(4001, 500, "relay invalid config", nil)
	ErrConnection    = errors.New(4002, 500, "relay connection failed", nil)
	ErrSerialization = errors.New(4003, 500, "relay serialization failed", nil)
	ErrPublish       = errors.New(4004, 500, "relay publish failed", nil)
	ErrQueueFull     = errors.New(4005, 503, "relay queue full", nil)
	ErrClosed        = errors.New(4006, 503, "relay closed", nil)
)
