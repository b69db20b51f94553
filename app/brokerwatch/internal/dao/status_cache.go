package dao

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/pkg/database/redis"
)

// RedisStatusCache 集群状态缓存，多副本共享
type RedisStatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStatusCache ttl 为 0 时不过期
func NewRedisStatusCache(rdb *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{rdb: rdb, ttl: ttl}
}

func (c *RedisStatusCache) key(tenantID, serverID string) string {
	return c.rdb.Key("status", tenantID, serverID)
}

// Get 读取状态，不存在时返回 ErrStatusNotFound
func (c *RedisStatusCache) Get(ctx context.Context, tenantID, serverID string) (*model.ServerStatus, error) {
	st, err := redis.GetObject[model.ServerStatus](ctx, c.rdb, c.key(tenantID, serverID))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrStatusNotFound
	}
	return st, err
}

// Put 写入状态
func (c *RedisStatusCache) Put(ctx context.Context, st *model.ServerStatus) error {
	return redis.SetObject(ctx, c.rdb, c.key(st.TenantID, st.ServerID), st, c.ttl)
}

// MemoryStatusCache 单副本部署使用的进程内状态缓存
type MemoryStatusCache struct {
	mu     sync.RWMutex
	status map[string]model.ServerStatus
}

func NewMemoryStatusCache() *MemoryStatusCache {
	return &MemoryStatusCache{status: make(map[string]model.ServerStatus)}
}

// Get 读取状态
func (c *MemoryStatusCache) Get(_ context.Context, tenantID, serverID string) (*model.ServerStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.status[tenantID+"\x1f"+serverID]
	if !ok {
		return nil, ErrStatusNotFound
	}
	return &st, nil
}

// Put 写入状态
func (c *MemoryStatusCache) Put(_ context.Context, st *model.ServerStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status[st.TenantID+"\x1f"+st.ServerID] = *st
	return nil
}
