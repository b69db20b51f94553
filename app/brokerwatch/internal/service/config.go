package service

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config 轮询与周期配置
type Config struct {
	// Schedule cron 表达式，支持 @every 30s 形式
	Schedule string `mapstructure:"schedule" json:"schedule" yaml:"schedule"`
	// Workers 同时执行的周期数上限
	Workers int `mapstructure:"workers" json:"workers" yaml:"workers"`
	// CycleTimeout 拉取指标与 reconcile 的期限
	CycleTimeout time.Duration `mapstructure:"cycle_timeout" json:"cycle_timeout" yaml:"cycle_timeout"`
	// DeliveryTimeout 通知投递（含重试）的期限
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" json:"delivery_timeout" yaml:"delivery_timeout"`
	// LockTTL 跨副本周期锁的过期时间，需覆盖整个周期
	LockTTL time.Duration `mapstructure:"lock_ttl" json:"lock_ttl" yaml:"lock_ttl"`
	// EventTopic 告警生命周期事件的 Kafka topic
	EventTopic string `mapstructure:"event_topic" json:"event_topic" yaml:"event_topic"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Schedule:        "@every 30s",
		Workers:         8,
		CycleTimeout:    25 * time.Second,
		DeliveryTimeout: 2 * time.Minute,
		LockTTL:         3 * time.Minute,
		EventTopic:      "brokerwatch.alert-events",
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, c.Schedule, err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.CycleTimeout <= 0 || c.DeliveryTimeout <= 0 {
		return fmt.Errorf("%w: cycle and delivery timeouts must be positive", ErrInvalidConfig)
	}
	if c.LockTTL < c.CycleTimeout+c.DeliveryTimeout {
		return fmt.Errorf("%w: lock_ttl (%s) must cover cycle_timeout + delivery_timeout",
			ErrInvalidConfig, c.LockTTL)
	}
	return nil
}
