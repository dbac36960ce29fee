package tracing

import (
	"time"
)

// 导出器类型
const (
	ExporterOTLP     = "otlp"      // OTLP over HTTP
	ExporterOTLPGRPC = "otlp_grpc" // OTLP over gRPC
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Config 链路追踪配置
type Config struct {
	// 服务名称（必填）
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// 服务版本
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`

	// 环境（dev/staging/prod）
	Environment string `mapstructure:"environment" yaml:"environment"`

	// 导出器类型（otlp/otlp_grpc/stdout/noop）
	ExporterType string `mapstructure:"exporter_type" yaml:"exporter_type"`

	// 导出器端点（如 OTLP Collector 地址）
	ExporterEndpoint string `mapstructure:"exporter_endpoint" yaml:"exporter_endpoint,omitempty"`

	// 导出器请求头（用于认证）
	ExporterHeaders map[string]string `mapstructure:"exporter_headers" yaml:"-"`

	// 是否使用非 TLS 连接
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// 采样率（0.0-1.0，1.0 表示全量采集）
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`

	// 采样类型（always/never/ratio/parent_based）
	SamplingType string `mapstructure:"sampling_type" yaml:"sampling_type"`

	// 是否启用
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// 资源属性（自定义标签）
	ResourceAttributes map[string]string `mapstructure:"resource_attributes" yaml:"resource_attributes,omitempty"`

	// 批处理配置
	BatchTimeout       time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`                 // 批量导出超时（默认 5s）
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size" yaml:"max_export_batch_size"` // 最大批量大小（默认 512）
	MaxQueueSize       int           `mapstructure:"max_queue_size" yaml:"max_queue_size"`               // 最大队列大小（默认 2048）
}

// DefaultConfig 返回默认配置
// 默认关闭，开启后导出到标准输出
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "syncboard",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		ExporterType:       ExporterStdout,
		SamplingRate:       1.0,
		SamplingType:       "parent_based",
		Enabled:            false,
		ResourceAttributes: make(map[string]string),
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig("service name is required")
	}

	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig("sampling rate must be between 0.0 and 1.0")
	}

	switch c.ExporterType {
	case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return ErrInvalidConfig("invalid exporter type: " + c.ExporterType)
	}

	if c.BatchTimeout <= 0 || c.MaxExportBatchSize <= 0 || c.MaxQueueSize <= 0 {
		return ErrInvalidConfig("batch settings must be positive")
	}

	return nil
}

// ConfigError 配置错误
type ConfigError struct {
	message string
}

func (e *ConfigError) Error() string {
	return "tracing config error: " + e.message
}

// ErrInvalidConfig 创建配置错误
func ErrInvalidConfig(message string) error {
	return &ConfigError{message: message}
}
