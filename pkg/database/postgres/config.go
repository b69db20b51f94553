package postgres

import (
	"fmt"
	"time"
)

// DBConfig 数据库实例配置
type DBConfig struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port"`
	User     string `mapstructure:"user" json:"user" yaml:"user"`
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	DBName   string `mapstructure:"db_name" json:"db_name" yaml:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode" json:"ssl_mode" yaml:"ssl_mode"` // disable, require, verify-ca, verify-full
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxConns          int32         `mapstructure:"max_conns" json:"max_conns" yaml:"max_conns"`                               // 最大连接数
	MinConns          int32         `mapstructure:"min_conns" json:"min_conns" yaml:"min_conns"`                               // 最小连接数
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime" json:"max_conn_lifetime" yaml:"max_conn_lifetime"`       // 连接最大生命周期
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time" json:"max_conn_idle_time" yaml:"max_conn_idle_time"`    // 连接最大空闲时间
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" json:"health_check_period" yaml:"health_check_period"` // 健康检查周期
}

// Config PostgreSQL 配置
type Config struct {
	// DSN 完整连接串，非空时忽略 DB 字段
	DSN string `mapstructure:"dsn" json:"dsn" yaml:"dsn"`

	DB DBConfig `mapstructure:"db" json:"db" yaml:"db"`

	Pool PoolConfig `mapstructure:"pool" json:"pool" yaml:"pool"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout"` // 连接超时
	QueryTimeout   time.Duration `mapstructure:"query_timeout" json:"query_timeout" yaml:"query_timeout"`       // 查询超时
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		DB: DBConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "brokerwatch",
			SSLMode: "disable",
		},
		Pool: PoolConfig{
			MaxConns:          10,
			MinConns:          1,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   30 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.DSN == "" {
		if c.DB.Host == "" {
			return fmt.Errorf("%w: host is empty", ErrInvalidConfig)
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.DB.Port)
		}
		if c.DB.User == "" {
			return fmt.Errorf("%w: user is empty", ErrInvalidConfig)
		}
		if c.DB.DBName == "" {
			return fmt.Errorf("%w: db_name is empty", ErrInvalidConfig)
		}
	}

	if c.Pool.MaxConns <= 0 {
		return fmt.Errorf("%w: max_conns must be positive", ErrInvalidConfig)
	}
	if c.Pool.MinConns < 0 {
		return fmt.Errorf("%w: min_conns must be non-negative", ErrInvalidConfig)
	}
	if c.Pool.MinConns > c.Pool.MaxConns {
		return fmt.Errorf("%w: min_conns cannot be greater than max_conns", ErrInvalidConfig)
	}
	return nil
}

// ConnString 构建连接字符串
func (c *Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.DBName,
		c.DB.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}
