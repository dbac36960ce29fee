package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokmz/syncboard/pkg/logger"
)

// Config WebSocket 配置
type Config struct {
	// 连接配置
	HandshakeTimeout time.Duration // 握手超时时间
	MaxMessageSize   int64         // 最大消息大小
	WriteWait        time.Duration // 单次写超时

	// 心跳配置
	HeartbeatInterval time.Duration // 心跳间隔
	HeartbeatTimeout  time.Duration // 心跳超时

	// 消息配置
	MessageQueueSize      int // 消息队列大小，写满即断开慢客户端
	HighPriorityQueueSize int // 高优先级队列大小
	MaxInvalidMessages    int // 连续无效消息上限，超过后断开

	// Upgrader 配置
	UpgraderConfig UpgraderConfig

	// 监控
	Metrics Metrics
	Logger  logger.Logger
}

// UpgraderConfig Upgrader 配置
type UpgraderConfig struct {
	ReadBufferSize    int                      // 读缓冲区大小
	WriteBufferSize   int                      // 写缓冲区大小
	CheckOrigin       func(*http.Request) bool // Origin 检查函数
	EnableCompression bool                     // 是否启用压缩
	AllowedOrigins    []string                 // 允许的 Origin 白名单
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:      10 * time.Second,
		MaxMessageSize:        512 * 1024, // 512KB
		WriteWait:             10 * time.Second,
		HeartbeatInterval:     30 * time.Second,
		HeartbeatTimeout:      90 * time.Second,
		MessageQueueSize:      256,
		HighPriorityQueueSize: 64,
		MaxInvalidMessages:    10,
		UpgraderConfig: UpgraderConfig{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			CheckOrigin:       nil, // 将在 NewUpgrader 中设置
			EnableCompression: false,
			AllowedOrigins:    nil, // 默认为 nil，使用同源检查
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive, got %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: WriteWait must be positive, got %v", ErrInvalidConfig, c.WriteWait)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: HeartbeatInterval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("%w: HeartbeatTimeout (%v) must be greater than HeartbeatInterval (%v)",
			ErrInvalidConfig, c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.MessageQueueSize <= 0 {
		return fmt.Errorf("%w: MessageQueueSize must be positive, got %d", ErrInvalidConfig, c.MessageQueueSize)
	}
	if c.HighPriorityQueueSize <= 0 {
		return fmt.Errorf("%w: HighPriorityQueueSize must be positive, got %d", ErrInvalidConfig, c.HighPriorityQueueSize)
	}
	if c.MaxInvalidMessages <= 0 {
		return fmt.Errorf("%w: MaxInvalidMessages must be positive, got %d", ErrInvalidConfig, c.MaxInvalidMessages)
	}

	// 验证 Upgrader 配置
	if c.UpgraderConfig.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: UpgraderConfig.ReadBufferSize must be positive, got %d", ErrInvalidConfig, c.UpgraderConfig.ReadBufferSize)
	}
	if c.UpgraderConfig.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: UpgraderConfig.WriteBufferSize must be positive, got %d", ErrInvalidConfig, c.UpgraderConfig.WriteBufferSize)
	}

	return nil
}

// Option 配置选项
type Option func(*Config)

// WithHeartbeatInterval 设置心跳间隔
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithHeartbeatTimeout 设置心跳超时
func WithHeartbeatTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatTimeout = timeout
	}
}

// WithMessageSizeLimit 设置消息大小限制
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithMessageQueueSize 设置消息队列大小
func WithMessageQueueSize(size int) Option {
	return func(c *Config) {
		c.MessageQueueSize = size
	}
}

// WithMaxInvalidMessages 设置连续无效消息上限
func WithMaxInvalidMessages(n int) Option {
	return func(c *Config) {
		c.MaxInvalidMessages = n
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = fn
	}
}

// WithCheckOriginWhitelist 设置 Origin 白名单
// 示例：WithCheckOriginWhitelist([]string{"https://example.com", "https://app.example.com"})
func WithCheckOriginWhitelist(allowedOrigins []string) Option {
	return func(c *Config) {
		c.UpgraderConfig.AllowedOrigins = allowedOrigins
		c.UpgraderConfig.CheckOrigin = createWhitelistChecker(allowedOrigins)
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境，生产环境禁用）
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

// WithMetrics 设置监控
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithEnableCompression 启用压缩
func WithEnableCompression(enable bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.EnableCompression = enable
	}
}

// defaultCheckOrigin 默认 Origin 检查（同源策略）
// 生产环境建议使用 WithCheckOriginWhitelist 设置白名单
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// 严格模式：拒绝空 Origin
		// 如需允许非浏览器客户端，使用 WithAllowAllOrigins()
		return false
	}
	// 同源检查
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// createWhitelistChecker 创建白名单检查器
func createWhitelistChecker(allowedOrigins []string) func(*http.Request) bool {
	whitelist := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		whitelist[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 白名单模式下拒绝空 Origin
			return false
		}
		return whitelist[origin]
	}
}

// Upgrader WebSocket 升级器
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader 创建升级器
func NewUpgrader(config UpgraderConfig, handshakeTimeout time.Duration) *Upgrader {
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		if len(config.AllowedOrigins) > 0 {
			checkOrigin = createWhitelistChecker(config.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}

	return &Upgrader{
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  handshakeTimeout,
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			CheckOrigin:       checkOrigin,
			EnableCompression: config.EnableCompression,
		},
	}
}

// Upgrade 升级 HTTP 连接为 WebSocket
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return u.upgrader.Upgrade(w, r, nil)
}
