package tracker

import (
	"context"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
)

// ChangeSet 一次 Reconcile 需要原子提交的全部变更
type ChangeSet struct {
	TenantID string
	ServerID string
	// Insert 新打开的记录
	Insert []*model.AlertRecord
	// Refresh 仍在检测中的记录，覆盖 payload 并推进 LastSeenAt
	Refresh []*model.AlertRecord
	// Resolve 本轮未检测到的记录
	Resolve []*model.AlertRecord
}

// Empty 变更集为空
func (cs *ChangeSet) Empty() bool {
	return len(cs.Insert) == 0 && len(cs.Refresh) == 0 && len(cs.Resolve) == 0
}

// Store 告警记录存储，Commit 必须全部成功或全部失败
type Store interface {
	// LoadOpen 返回 (tenant, server) 下所有打开的记录
	LoadOpen(ctx context.Context, tenantID, serverID string) ([]*model.AlertRecord, error)
	// Commit 原子提交变更集
	Commit(ctx context.Context, cs *ChangeSet) error
	// ListResolved 返回最近解决的记录，按解决时间倒序，最多 limit 条
	ListResolved(ctx context.Context, tenantID, serverID string, limit uint64) ([]*model.AlertRecord, error)
}
