package dao

import (
	"context"
	"time"

	"github.com/lk2023060901/brokerwatch/pkg/database/redis"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
)

// CycleLocker 基于 Redis 的跨副本周期锁，同一 (tenant, server) 同时只有一个副本执行
type CycleLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCycleLocker(rdb *redis.Client, ttl time.Duration, l logger.Logger) *CycleLocker {
	return &CycleLocker{
		rdb:    rdb,
		ttl:    ttl,
		logger: l.Named("dao.cycle_lock"),
	}
}

// TryAcquire 非阻塞加锁，ok 为 false 表示其他副本正在执行
func (l *CycleLocker) TryAcquire(ctx context.Context, tenantID, serverID string) (release func(), ok bool, err error) {
	lock := redis.NewLock(l.rdb, l.rdb.Key("cycle", tenantID, serverID), l.ttl)
	ok, err = lock.TryLock(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		// 周期 ctx 可能已超时，释放使用独立的 ctx
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := lock.Unlock(ctx); err != nil {
			l.logger.Warn("cycle lock release failed", "key", lock.Key(), "error", err)
		}
	}, true, nil
}
