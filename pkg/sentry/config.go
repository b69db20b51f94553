package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config Sentry 配置
type Config struct {
	// Enabled 关闭时使用 NoopReporter
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	DSN         string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`                         // Sentry DSN
	Environment string `json:"environment" yaml:"environment" mapstructure:"environment"` // 环境 (dev/test/prod)
	Release     string `json:"release" yaml:"release" mapstructure:"release"`             // 版本号
	ServerName  string `json:"server_name" yaml:"server_name" mapstructure:"server_name"` // 服务器名称

	// SampleRate 错误采样率 (0.0-1.0)
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`

	AttachStacktrace bool `json:"attach_stacktrace" yaml:"attach_stacktrace" mapstructure:"attach_stacktrace"`

	// ShutdownTimeout 关闭时等待事件上报的时间
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	Debug bool `json:"debug" yaml:"debug" mapstructure:"debug"`

	// Tags 全局标签
	Tags map[string]string `json:"tags" yaml:"tags" mapstructure:"tags"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Environment:      "production",
		SampleRate:       1.0,
		AttachStacktrace: true,
		ShutdownTimeout:  2 * time.Second,
		Tags:             make(map[string]string),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.DSN == "" {
		return ErrInvalidDSN
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w: sample_rate must be in [0,1]", ErrInvalidConfig)
	}
	return nil
}

// toClientOptions 转换为 Sentry SDK 的 ClientOptions
func (c *Config) toClientOptions() sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:              c.DSN,
		Environment:      c.Environment,
		Release:          c.Release,
		ServerName:       c.ServerName,
		SampleRate:       c.SampleRate,
		AttachStacktrace: c.AttachStacktrace,
		Debug:            c.Debug,
	}
}
