package syncboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/syncboard/pkg/logger"
)

// Engine 基于 Gin 的 HTTP 引擎
type Engine struct {
	config *Config
	engine *gin.Engine
	logger logger.Logger

	mu     sync.Mutex
	server *http.Server
	closed bool // Shutdown 已调用，之后的 Serve 直接返回
}

// New 创建一个新的 Engine 实例，使用 Options 模式配置
func New(opts ...Option) *Engine {
	// 应用默认配置
	config := defaultConfig()

	// 应用用户提供的选项
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	// gin.SetMode 是全局操作，建议进程内只创建一个 Engine
	if gin.Mode() == gin.DebugMode || config.Mode != gin.DebugMode {
		gin.SetMode(config.Mode)
	}

	// 静默 Gin 默认输出，由引擎自行打印
	silenceGin()

	ginEngine := gin.New()

	// 设置信任的代理
	if config.TrustedProxies != nil {
		if err := ginEngine.SetTrustedProxies(config.TrustedProxies); err != nil {
			config.Logger.Warn("set trusted proxies failed", zap.Error(err))
		}
	}

	return &Engine{
		engine: ginEngine,
		config: config,
		logger: config.Logger,
	}
}

// Default 创建一个带有 Recovery 与请求日志中间件的 Engine
func Default(opts ...Option) *Engine {
	e := New(opts...)
	e.Use(Recovery(e.logger), Logger(e.logger))
	return e
}

// Use 注册全局中间件
func (e *Engine) Use(middlewares ...HandlerFunc) {
	e.engine.Use(WrapMiddlewares(middlewares...)...)
}

// Group 返回路由组
func (e *Engine) Group(path string) *RouterGroup {
	return &RouterGroup{
		group: e.engine.Group(path),
	}
}

// RouterGroup 返回根路由组
func (e *Engine) RouterGroup() *RouterGroup {
	return &RouterGroup{
		group: &e.engine.RouterGroup,
	}
}

// Handler 返回 http.Handler，用于测试或自定义 Server
func (e *Engine) Handler() http.Handler {
	return e.engine
}

// Run 在配置的地址上监听并阻塞，直到 Shutdown 被调用
// 正常关闭时返回 nil
func (e *Engine) Run() error {
	ln, err := net.Listen("tcp", e.config.Server.Addr)
	if err != nil {
		return err
	}
	return e.Serve(ln)
}

// Serve 在给定的 Listener 上提供服务
func (e *Engine) Serve(ln net.Listener) error {
	server := &http.Server{
		Handler:        e.engine,
		ReadTimeout:    e.config.Server.ReadTimeout,
		WriteTimeout:   e.config.Server.WriteTimeout,
		IdleTimeout:    e.config.Server.IdleTimeout,
		MaxHeaderBytes: e.config.Server.MaxHeaderBytes,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ln.Close()
	}
	e.server = server
	e.mu.Unlock()

	if e.config.Banner {
		e.printBanner(ln.Addr().String())
	}
	e.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器，等待进行中的请求完成
// 已升级的 WebSocket 连接不受影响，需由传输层自行关闭
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	server := e.server
	e.closed = true
	e.mu.Unlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		e.logger.Error("http server forced to close", zap.Error(err))
		return err
	}
	e.logger.Info("http server stopped")
	return nil
}
