package redis

import (
	"fmt"
	"time"
)

// Config Redis 配置，Addrs 多于一个时使用集群客户端
type Config struct {
	Addrs    []string `mapstructure:"addrs" json:"addrs" yaml:"addrs"`
	Password string   `mapstructure:"password" json:"password" yaml:"password"`
	DB       int      `mapstructure:"db" json:"db" yaml:"db"`

	// KeyPrefix 所有键的公共前缀
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix" yaml:"key_prefix"`

	Pool PoolConfig `mapstructure:"pool" json:"pool" yaml:"pool"`
}

// PoolConfig 连接池配置
type PoolConfig struct {
	// PoolSize 最大连接数
	PoolSize int `mapstructure:"pool_size" json:"pool_size" yaml:"pool_size"`

	// MinIdleConns 最小空闲连接数
	MinIdleConns int `mapstructure:"min_idle_conns" json:"min_idle_conns" yaml:"min_idle_conns"`

	// DialTimeout 连接超时时间
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`

	// ReadTimeout 读超时时间
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout 写超时时间
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Addrs:     []string{"localhost:6379"},
		KeyPrefix: "brokerwatch:",
		Pool: PoolConfig{
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if len(c.Addrs) == 0 {
		return fmt.Errorf("%w: addrs is empty", ErrInvalidConfig)
	}
	for _, addr := range c.Addrs {
		if addr == "" {
			return fmt.Errorf("%w: empty address", ErrInvalidConfig)
		}
	}
	if c.DB < 0 || c.DB > 15 {
		return fmt.Errorf("%w: db must be in [0,15]", ErrInvalidConfig)
	}
	if c.Pool.PoolSize < 0 {
		return fmt.Errorf("%w: pool_size must be non-negative", ErrInvalidConfig)
	}
	return nil
}
