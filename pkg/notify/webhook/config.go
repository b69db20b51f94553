package webhook

import (
	"fmt"
	"time"

	"github.com/lk2023060901/brokerwatch/pkg/notify"
)

// Config 出站 Webhook 客户端配置
type Config struct {
	// Timeout 单次投递超时（默认 10 秒）
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`

	// UserAgent 请求头 User-Agent
	UserAgent string `mapstructure:"user_agent" json:"user_agent" yaml:"user_agent"`

	// MaxResponseBytes 读取响应体的上限
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" json:"max_response_bytes" yaml:"max_response_bytes"`

	// SignatureHeader 签名头名称
	SignatureHeader string `mapstructure:"signature_header" json:"signature_header" yaml:"signature_header"`

	// TimestampHeader 签名时间戳头名称
	TimestampHeader string `mapstructure:"timestamp_header" json:"timestamp_header" yaml:"timestamp_header"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:          10 * time.Second,
		UserAgent:        "brokerwatch-notifier/1.0",
		MaxResponseBytes: 64 << 10,
		SignatureHeader:  "X-Signature",
		TimestampHeader:  "X-Signature-Timestamp",
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", notify.ErrInvalidConfig)
	}
	if c.MaxResponseBytes <= 0 {
		return fmt.Errorf("%w: max_response_bytes must be positive", notify.ErrInvalidConfig)
	}
	if c.SignatureHeader == "" || c.TimestampHeader == "" {
		return fmt.Errorf("%w: signature headers are required", notify.ErrInvalidConfig)
	}
	return nil
}
