package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
)

// memoryHistoryLimit 内存中保留的已解决记录上限，超出时丢弃最旧的
const memoryHistoryLimit = 1000

// MemoryStore 进程内存储，用于测试与未配置数据库的单实例部署
type MemoryStore struct {
	mu sync.RWMutex
	// open 按 tenant -> fingerprint 索引打开的记录
	open    map[string]map[string]*model.AlertRecord
	history []*model.AlertRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{open: make(map[string]map[string]*model.AlertRecord)}
}

// LoadOpen 返回打开记录的副本，按 FirstSeenAt 排序
func (s *MemoryStore) LoadOpen(ctx context.Context, tenantID, serverID string) ([]*model.AlertRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.AlertRecord
	for _, r := range s.open[tenantID] {
		if r.ServerID == serverID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out, nil
}

// Commit 先校验再应用，校验失败时不做任何修改
func (s *MemoryStore) Commit(ctx context.Context, cs *ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.open[cs.TenantID]
	for _, r := range cs.Insert {
		if _, ok := tenant[r.Fingerprint]; ok {
			return fmt.Errorf("%w: %s", ErrOpenConflict, r.Fingerprint)
		}
	}
	for _, list := range [][]*model.AlertRecord{cs.Refresh, cs.Resolve} {
		for _, r := range list {
			cur, ok := tenant[r.Fingerprint]
			if !ok || cur.ID != r.ID {
				return fmt.Errorf("%w: %s", ErrRecordNotOpen, r.ID)
			}
		}
	}

	if tenant == nil {
		tenant = make(map[string]*model.AlertRecord)
		s.open[cs.TenantID] = tenant
	}
	for _, r := range cs.Insert {
		tenant[r.Fingerprint] = r.Clone()
	}
	for _, r := range cs.Refresh {
		tenant[r.Fingerprint] = r.Clone()
	}
	for _, r := range cs.Resolve {
		delete(tenant, r.Fingerprint)
		s.history = append(s.history, r.Clone())
	}
	if n := len(s.history) - memoryHistoryLimit; n > 0 {
		s.history = append(s.history[:0:0], s.history[n:]...)
	}
	return nil
}

// ListResolved 返回 (tenant, server) 最近解决的记录，按 ResolvedAt 倒序
func (s *MemoryStore) ListResolved(ctx context.Context, tenantID, serverID string, limit uint64) ([]*model.AlertRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.AlertRecord
	for _, r := range s.history {
		if r.TenantID == tenantID && r.ServerID == serverID {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ResolvedAt, out[j].ResolvedAt
		if !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	if limit > 0 && uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
