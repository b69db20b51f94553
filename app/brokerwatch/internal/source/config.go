package source

import (
	"fmt"
	"time"
)

// Config RabbitMQ 管理 API 客户端配置
type Config struct {
	// Timeout 单个端点请求超时
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	// InsecureSkipVerify 跳过 TLS 校验（仅测试环境）
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	// MaxResponseBytes 单个响应体上限
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" json:"max_response_bytes" yaml:"max_response_bytes"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:          10 * time.Second,
		MaxResponseBytes: 32 << 20,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxResponseBytes <= 0 {
		return fmt.Errorf("%w: max_response_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}

// Target 被监控的 broker 管理端点
type Target struct {
	ID       string
	URL      string
	Username string
	Password string
}
