package syncboard

import (
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/syncboard/pkg/logger"
)

// LoggerConfig 日志中间件配置
type LoggerConfig struct {
	// SkipFunc 跳过日志的函数
	SkipFunc func(c *Context) bool

	// ExcludePaths 排除的路径（不记录日志）
	ExcludePaths []string
}

// Logger 创建请求日志中间件
// 记录请求方法、路径、客户端 IP、状态码、耗时，并携带请求上下文中的 trace_id
func Logger(log logger.Logger, cfgs ...*LoggerConfig) HandlerFunc {
	cfg := &LoggerConfig{}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	skipMap := make(map[string]bool, len(cfg.ExcludePaths))
	for _, path := range cfg.ExcludePaths {
		skipMap[path] = true
	}

	return func(c *Context) {
		if (cfg.SkipFunc != nil && cfg.SkipFunc(c)) || skipMap[c.Request().URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request().URL.Path
		method := c.Request().Method

		c.Next()

		status := c.Writer().Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		// 根据状态码选择日志级别
		ctx := c.RequestContext()
		switch {
		case status >= 500:
			log.ErrorContext(ctx, "request", fields...)
		case status >= 400:
			log.WarnContext(ctx, "request", fields...)
		default:
			log.InfoContext(ctx, "request", fields...)
		}
	}
}

// Recovery 创建 panic 恢复中间件
// panic 时返回统一响应格式（500），并记录错误日志
func Recovery(log logger.Logger) HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}

	return func(c *Context) {
		defer func() {
			if err := recover(); err != nil {
				// 客户端主动断开
				if isBrokenPipe(err) {
					log.Error("broken pipe",
						zap.Any("error", err),
						zap.String("path", c.Request().URL.Path),
					)
					c.Abort()
					return
				}

				log.ErrorContext(c.RequestContext(), "panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request().Method),
					zap.String("path", c.Request().URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())),
				)

				c.ctx.AbortWithStatusJSON(http.StatusInternalServerError,
					Fail(http.StatusInternalServerError, "Internal Server Error"))
			}
		}()
		c.Next()
	}
}

// isBrokenPipe 检查是否为断开的连接错误
func isBrokenPipe(err any) bool {
	ne, ok := err.(*net.OpError)
	if !ok {
		return false
	}
	se, ok := ne.Err.(*os.SyscallError)
	if !ok {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
