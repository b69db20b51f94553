package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/brokerwatch/pkg/config"
	goredis "github.com/redis/go-redis/v9"
)

// Client Redis 客户端
type Client struct {
	rdb goredis.UniversalClient
	cfg *Config
}

// NewClient 创建 Redis 客户端
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        newCfg.Addrs,
		Password:     newCfg.Password,
		DB:           newCfg.DB,
		PoolSize:     newCfg.Pool.PoolSize,
		MinIdleConns: newCfg.Pool.MinIdleConns,
		DialTimeout:  newCfg.Pool.DialTimeout,
		ReadTimeout:  newCfg.Pool.ReadTimeout,
		WriteTimeout: newCfg.Pool.WriteTimeout,
	})
	return &Client{rdb: rdb, cfg: newCfg}, nil
}

// NewFromUniversal 包装已有的 go-redis 客户端
func NewFromUniversal(rdb goredis.UniversalClient, keyPrefix string) *Client {
	return &Client{rdb: rdb, cfg: &Config{KeyPrefix: keyPrefix}}
}

// Key 拼接键前缀
func (c *Client) Key(parts ...string) string {
	key := c.cfg.KeyPrefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get 获取字符串值，键不存在返回 ErrNil
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNil
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return val, nil
}

// Set 设置值
func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("del failed: %w", err)
	}
	return n, nil
}
