package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// GetObject 获取对象（自动反序列化 JSON）
func GetObject[T any](ctx context.Context, c *Client, key string) (*T, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNil
		}
		return nil, fmt.Errorf("get object failed: %w", err)
	}

	var obj T
	if err := json.Unmarshal(val, &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object failed: %w", err)
	}
	return &obj, nil
}

// SetObject 设置对象（自动序列化为 JSON）
func SetObject(ctx context.Context, c *Client, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal object failed: %w", err)
	}
	if err := c.rdb.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("set object failed: %w", err)
	}
	return nil
}
