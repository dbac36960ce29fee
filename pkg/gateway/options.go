package gateway

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/syncboard/pkg/logger"
	"github.com/tokmz/syncboard/pkg/relay"
)

// DefaultMaxPayloadSize 默认负载上限 64KB
const DefaultMaxPayloadSize = 64 * 1024

// Option 网关选项
type Option func(*Gateway)

// WithNotifier 设置传输层
func WithNotifier(n Notifier) Option {
	return func(g *Gateway) {
		g.notifier = n
	}
}

// WithRelay 设置更新镜像
func WithRelay(p relay.Publisher) Option {
	return func(g *Gateway) {
		if p != nil {
			g.relay = p
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithTracer 设置 Tracer
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithMaxPayloadSize 设置负载上限，<= 0 表示不限制
func WithMaxPayloadSize(size int) Option {
	return func(g *Gateway) {
		g.maxPayloadSize = size
	}
}

// WithPresence 是否下发成员变更通知（默认开启）
func WithPresence(enable bool) Option {
	return func(g *Gateway) {
		g.presence = enable
	}
}
