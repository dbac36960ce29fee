package syncboard

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/syncboard/pkg/logger"
)

// ServerConfig 服务器配置
type ServerConfig struct {
	// Addr 监听地址，默认 ":8080"
	Addr string

	// ReadTimeout 读取超时
	ReadTimeout time.Duration

	// WriteTimeout 写入超时
	WriteTimeout time.Duration

	// IdleTimeout 空闲超时
	IdleTimeout time.Duration

	// MaxHeaderBytes 最大请求头字节数
	MaxHeaderBytes int
}

// Config 应用配置
type Config struct {
	// Mode 运行模式：debug, release, test
	Mode string

	// Server 服务器配置
	Server ServerConfig

	// TrustedProxies 信任的代理 IP
	TrustedProxies []string

	// Logger 引擎日志，nil 时不输出
	Logger logger.Logger

	// Banner 启动时是否打印 banner 与路由表
	Banner bool
}

// Option 配置选项函数
type Option func(*Config)

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Mode: gin.ReleaseMode,
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB
		},
		Banner: true,
	}
}

// WithMode 设置运行模式
func WithMode(mode string) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithAddr 设置监听地址
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}

// WithReadTimeout 设置读取超时
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.ReadTimeout = timeout
	}
}

// WithWriteTimeout 设置写入超时
// WebSocket 连接升级后不受此限制
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = timeout
	}
}

// WithTrustedProxies 设置信任的代理
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) {
		c.TrustedProxies = proxies
	}
}

// WithLogger 设置引擎日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithBanner 设置是否打印启动 banner
func WithBanner(enable bool) Option {
	return func(c *Config) {
		c.Banner = enable
	}
}
