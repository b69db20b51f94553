package tenant

import (
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/evaluator"
)

// SinkConfig 通知目标配置
type SinkConfig struct {
	ID      string `mapstructure:"id" json:"id" yaml:"id" validate:"required"`
	Kind    string `mapstructure:"kind" json:"kind" yaml:"kind" validate:"omitempty,oneof=webhook chat-webhook"`
	URL     string `mapstructure:"url" json:"url" yaml:"url" validate:"required,url"`
	Secret  string `mapstructure:"secret" json:"-" yaml:"secret"`
	Version string `mapstructure:"version" json:"version" yaml:"version"`
	// Enabled 未配置时视为启用
	Enabled *bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
}

// ServerConfig 被监控的 RabbitMQ 集群
type ServerConfig struct {
	ID       string `mapstructure:"id" json:"id" yaml:"id" validate:"required"`
	Name     string `mapstructure:"name" json:"name" yaml:"name"`
	URL      string `mapstructure:"url" json:"url" yaml:"url" validate:"required,url"`
	Username string `mapstructure:"username" json:"username" yaml:"username"`
	Password string `mapstructure:"password" json:"-" yaml:"password"`
}

// Config 单个租户配置，对应配置文件 tenants 列表中的一项
type Config struct {
	ID         string                     `mapstructure:"id" json:"id" yaml:"id" validate:"required"`
	Name       string                     `mapstructure:"name" json:"name" yaml:"name"`
	Thresholds *evaluator.ThresholdConfig `mapstructure:"thresholds" json:"thresholds" yaml:"thresholds"`
	Sinks      []SinkConfig               `mapstructure:"sinks" json:"sinks" yaml:"sinks" validate:"dive"`
	Servers    []ServerConfig             `mapstructure:"servers" json:"servers" yaml:"servers" validate:"required,min=1,dive"`
}
