package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/tokmz/syncboard/pkg/logger"
	"github.com/tokmz/syncboard/pkg/relay"
	"github.com/tokmz/syncboard/pkg/tracing"
)

// EnvPrefix 环境变量前缀，如 SYNCBOARD_SERVER_ADDR 覆盖 server.addr
const EnvPrefix = "SYNCBOARD"

// Settings 同步服务的完整配置
type Settings struct {
	Server  ServerSettings  `mapstructure:"server" yaml:"server"`
	WS      WSSettings      `mapstructure:"ws" yaml:"ws"`
	Room    RoomSettings    `mapstructure:"room" yaml:"room"`
	Gateway GatewaySettings `mapstructure:"gateway" yaml:"gateway"`
	Log     LogSettings     `mapstructure:"log" yaml:"log"`
	Tracing tracing.Config  `mapstructure:"tracing" yaml:"tracing"`
	Relay   relay.Config    `mapstructure:"relay" yaml:"relay"`
}

// ServerSettings HTTP 服务配置
type ServerSettings struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	Mode            string        `mapstructure:"mode" yaml:"mode"` // debug/release/test
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins" yaml:"allow_origins"`

	// 每个客户端 IP 的请求速率，<= 0 关闭限流
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// WSSettings WebSocket 传输配置
type WSSettings struct {
	Path               string        `mapstructure:"path" yaml:"path"`
	MaxMessageSize     int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	MessageQueueSize   int           `mapstructure:"message_queue_size" yaml:"message_queue_size"`
	MaxInvalidMessages int           `mapstructure:"max_invalid_messages" yaml:"max_invalid_messages"`
	AllowAllOrigins    bool          `mapstructure:"allow_all_origins" yaml:"allow_all_origins"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// RoomSettings 房间核心配置
type RoomSettings struct {
	MaxConnections int  `mapstructure:"max_connections" yaml:"max_connections"` // 0 表示不限
	MaxRoomSize    int  `mapstructure:"max_room_size" yaml:"max_room_size"`     // 0 表示不限
	StrictJoin     bool `mapstructure:"strict_join" yaml:"strict_join"`         // 重复加入返回 AlreadyMember
}

// GatewaySettings 网关配置
type GatewaySettings struct {
	MaxPayloadSize int  `mapstructure:"max_payload_size" yaml:"max_payload_size"`
	Presence       bool `mapstructure:"presence" yaml:"presence"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Console    bool   `mapstructure:"console" yaml:"console"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`   // 天
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultSettings 默认配置
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:            ":8080",
			Mode:            "release",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowOrigins:    []string{"*"},
			RateLimit:       0,
			RateBurst:       100,
		},
		WS: WSSettings{
			Path:               "/ws",
			MaxMessageSize:     512 * 1024,
			HeartbeatInterval:  30 * time.Second,
			HeartbeatTimeout:   90 * time.Second,
			MessageQueueSize:   256,
			MaxInvalidMessages: 10,
		},
		Room: RoomSettings{},
		Gateway: GatewaySettings{
			MaxPayloadSize: 64 * 1024,
			Presence:       true,
		},
		Log: LogSettings{
			Level:   "info",
			Format:  "json",
			Console: true,
		},
		Tracing: *tracing.DefaultConfig(),
		Relay:   defaultRelay(),
	}
}

// defaultRelay 预置各驱动的默认值，配置文件只需覆盖差异部分
func defaultRelay() relay.Config {
	cfg := relay.DefaultConfig()
	cfg.Redis = relay.DefaultRedisConfig()
	cfg.Kafka = relay.DefaultKafkaConfig()
	cfg.AMQP = relay.DefaultAMQPConfig()
	return *cfg
}

// defaultValues 将默认配置注册到 viper，使环境变量可以覆盖所有标量键
// viper 只为已知键读取环境变量，新增字段必须同步登记
// map 类型的键（tracing.exporter_headers、tracing.resource_attributes）只能来自配置文件
func defaultValues(s *Settings) map[string]any {
	redis, kafka, amqp := s.Relay.Redis, s.Relay.Kafka, s.Relay.AMQP

	return map[string]any{
		"server.addr":             s.Server.Addr,
		"server.mode":             s.Server.Mode,
		"server.read_timeout":     s.Server.ReadTimeout,
		"server.write_timeout":    s.Server.WriteTimeout,
		"server.shutdown_timeout": s.Server.ShutdownTimeout,
		"server.allow_origins":    s.Server.AllowOrigins,
		"server.rate_limit":       s.Server.RateLimit,
		"server.rate_burst":       s.Server.RateBurst,

		"ws.path":                 s.WS.Path,
		"ws.max_message_size":     s.WS.MaxMessageSize,
		"ws.heartbeat_interval":   s.WS.HeartbeatInterval,
		"ws.heartbeat_timeout":    s.WS.HeartbeatTimeout,
		"ws.message_queue_size":   s.WS.MessageQueueSize,
		"ws.max_invalid_messages": s.WS.MaxInvalidMessages,
		"ws.allow_all_origins":    s.WS.AllowAllOrigins,
		"ws.allowed_origins":      s.WS.AllowedOrigins,

		"room.max_connections": s.Room.MaxConnections,
		"room.max_room_size":   s.Room.MaxRoomSize,
		"room.strict_join":     s.Room.StrictJoin,

		"gateway.max_payload_size": s.Gateway.MaxPayloadSize,
		"gateway.presence":         s.Gateway.Presence,

		"log.level":       s.Log.Level,
		"log.format":      s.Log.Format,
		"log.console":     s.Log.Console,
		"log.file":        s.Log.File,
		"log.max_size":    s.Log.MaxSize,
		"log.max_age":     s.Log.MaxAge,
		"log.max_backups": s.Log.MaxBackups,
		"log.compress":    s.Log.Compress,

		"tracing.enabled":               s.Tracing.Enabled,
		"tracing.service_name":          s.Tracing.ServiceName,
		"tracing.service_version":       s.Tracing.ServiceVersion,
		"tracing.environment":           s.Tracing.Environment,
		"tracing.exporter_type":         s.Tracing.ExporterType,
		"tracing.exporter_endpoint":     s.Tracing.ExporterEndpoint,
		"tracing.insecure":              s.Tracing.Insecure,
		"tracing.sampling_rate":         s.Tracing.SamplingRate,
		"tracing.sampling_type":         s.Tracing.SamplingType,
		"tracing.batch_timeout":         s.Tracing.BatchTimeout,
		"tracing.max_export_batch_size": s.Tracing.MaxExportBatchSize,
		"tracing.max_queue_size":        s.Tracing.MaxQueueSize,

		"relay.driver":          string(s.Relay.Driver),
		"relay.queue_size":      s.Relay.QueueSize,
		"relay.publish_timeout": s.Relay.PublishTimeout,

		"relay.redis.addr":           redis.Addr,
		"relay.redis.addrs":          redis.Addrs,
		"relay.redis.mode":           string(redis.Mode),
		"relay.redis.username":       redis.Username,
		"relay.redis.password":       redis.Password,
		"relay.redis.db":             redis.DB,
		"relay.redis.master_name":    redis.MasterName,
		"relay.redis.pool_size":      redis.PoolSize,
		"relay.redis.dial_timeout":   redis.DialTimeout,
		"relay.redis.write_timeout":  redis.WriteTimeout,
		"relay.redis.channel_prefix": redis.ChannelPrefix,

		"relay.kafka.brokers":   kafka.Brokers,
		"relay.kafka.topic":     kafka.Topic,
		"relay.kafka.client_id": kafka.ClientID,
		"relay.kafka.version":   kafka.Version,

		"relay.amqp.url":            amqp.URL,
		"relay.amqp.exchange":       amqp.Exchange,
		"relay.amqp.routing_prefix": amqp.RoutingPrefix,
	}
}

// LoadSettings 加载配置：默认值 < 配置文件 < 环境变量
// path 为空时不读取文件
func LoadSettings(path string, opts ...Option) (*Config, *Settings, error) {
	defaults := DefaultSettings()

	base := []Option{
		WithDefaults(defaultValues(defaults)),
		WithEnvPrefix(EnvPrefix),
		WithEnvKeyReplacer(strings.NewReplacer(".", "_")),
	}
	if path != "" {
		base = append(base, WithConfigFile(path))
	}

	c := New(append(base, opts...)...)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}

	s, err := c.Settings()
	if err != nil {
		return nil, nil, err
	}
	return c, s, nil
}

// Settings 将当前配置解析为 Settings 并校验
// 文件热更新后再次调用即可得到最新配置
func (c *Config) Settings() (*Settings, error) {
	s := DefaultSettings()
	if err := c.Unmarshal(s); err != nil {
		return nil, ErrConfigReadFailed.WithError(err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate 校验配置
func (s *Settings) Validate() error {
	if s.Server.Addr == "" {
		return ErrInvalidSettings.WithMessage("server.addr is required")
	}
	switch s.Server.Mode {
	case "debug", "release", "test":
	default:
		return ErrInvalidSettings.WithMessage(fmt.Sprintf("server.mode must be debug, release or test, got %q", s.Server.Mode))
	}
	if s.Server.ShutdownTimeout <= 0 {
		return ErrInvalidSettings.WithMessage("server.shutdown_timeout must be positive")
	}
	if !strings.HasPrefix(s.WS.Path, "/") {
		return ErrInvalidSettings.WithMessage("ws.path must start with /")
	}
	if s.Room.MaxConnections < 0 || s.Room.MaxRoomSize < 0 {
		return ErrInvalidSettings.WithMessage("room limits must not be negative")
	}
	if s.Gateway.MaxPayloadSize <= 0 {
		return ErrInvalidSettings.WithMessage("gateway.max_payload_size must be positive")
	}
	if int64(s.Gateway.MaxPayloadSize) > s.WS.MaxMessageSize {
		return ErrInvalidSettings.WithMessage("gateway.max_payload_size must not exceed ws.max_message_size")
	}
	if _, err := logger.ParseLevel(s.Log.Level); err != nil {
		return ErrInvalidSettings.WithError(err)
	}
	if !logger.Format(s.Log.Format).IsValid() {
		return ErrInvalidSettings.WithMessage(fmt.Sprintf("log.format must be json or console, got %q", s.Log.Format))
	}
	if err := s.Tracing.Validate(); err != nil {
		return ErrInvalidSettings.WithError(err)
	}
	if err := s.Relay.Validate(); err != nil {
		return ErrInvalidSettings.WithError(err)
	}
	return nil
}

// LoggerConfig 转换为日志配置
func (s *Settings) LoggerConfig() *logger.Config {
	level, _ := logger.ParseLevel(s.Log.Level)
	cfg := &logger.Config{
		Level:   level,
		Format:  logger.Format(s.Log.Format),
		Console: s.Log.Console,
	}
	if s.Log.File != "" {
		cfg.Rotate = &logger.RotateConfig{
			Filename:   s.Log.File,
			MaxSize:    s.Log.MaxSize,
			MaxAge:     s.Log.MaxAge,
			MaxBackups: s.Log.MaxBackups,
			Compress:   s.Log.Compress,
		}
	}
	return cfg
}

// YAML 输出生效配置，敏感字段不会输出
func (s *Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
