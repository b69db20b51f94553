package dispatcher

import (
	"fmt"
	"time"
)

// Config 通知投递配置
type Config struct {
	// MaxRetries 可重试错误的最大重试次数，0 表示不重试，未设置时为 3
	MaxRetries *int `mapstructure:"max_retries" json:"max_retries" yaml:"max_retries"`
	// InitialInterval 首次重试等待
	InitialInterval time.Duration `mapstructure:"initial_interval" json:"initial_interval" yaml:"initial_interval"`
	// MaxInterval 单次重试等待上限
	MaxInterval time.Duration `mapstructure:"max_interval" json:"max_interval" yaml:"max_interval"`
	// Multiplier 退避倍数
	Multiplier float64 `mapstructure:"multiplier" json:"multiplier" yaml:"multiplier"`
	// MaxRetryAfter 接受的 Retry-After 上限，超过时截断
	MaxRetryAfter time.Duration `mapstructure:"max_retry_after" json:"max_retry_after" yaml:"max_retry_after"`
	// MaxElapsedTime 单个 sink 一次投递（含重试）的总时长上限
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time" json:"max_elapsed_time" yaml:"max_elapsed_time"`
	// Workers 投递协程池大小
	Workers int `mapstructure:"workers" json:"workers" yaml:"workers"`
	// SinkInterval 同一 sink 两次发送的最小间隔，0 表示不限速
	SinkInterval time.Duration `mapstructure:"sink_interval" json:"sink_interval" yaml:"sink_interval"`
	// SinkBurst 限速突发容量
	SinkBurst int `mapstructure:"sink_burst" json:"sink_burst" yaml:"sink_burst"`
	// MaxChatAlerts 聊天消息中展开的告警条数上限
	MaxChatAlerts int `mapstructure:"max_chat_alerts" json:"max_chat_alerts" yaml:"max_chat_alerts"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		MaxRetryAfter:   time.Minute,
		MaxElapsedTime:  5 * time.Minute,
		Workers:         16,
		SinkBurst:       1,
		MaxChatAlerts:   20,
	}
}

const defaultMaxRetries = 3

// Retries 返回 n 的指针，用于显式设置 MaxRetries
func Retries(n int) *int {
	return &n
}

// retries 实际重试次数
func (c *Config) retries() int {
	if c.MaxRetries == nil {
		return defaultMaxRetries
	}
	return *c.MaxRetries
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidConfig)
	}
	if c.InitialInterval <= 0 || c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("%w: backoff intervals must satisfy 0 < initial <= max", ErrInvalidConfig)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.SinkInterval < 0 || c.SinkBurst <= 0 {
		return fmt.Errorf("%w: invalid sink rate limit", ErrInvalidConfig)
	}
	return nil
}
