// Package tracker 维护告警的指纹身份与生命周期
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
)

// Result Reconcile 的分类结果
type Result struct {
	Opened  []*model.AlertRecord
	Updated []*model.AlertRecord
	// Escalated 严重度升高的记录，是 Updated 的子集
	Escalated []*model.AlertRecord
	Resolved  []*model.AlertRecord
	// Held 本轮未检测到、因缺少数据而保持打开的记录
	Held []*model.AlertRecord
	// Open 提交后仍打开的全部记录
	Open []*model.AlertRecord
}

// Tracker 告警去重与生命周期跟踪
type Tracker struct {
	store  Store
	locks  *keyedMutex
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// Option Tracker 选项
type Option func(*Tracker)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator 设置记录 ID 生成器
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

// New 创建 Tracker
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger.NewNoop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("tracker")
	return t
}

// ReconcileOption 单次 Reconcile 的选项
type ReconcileOption func(*reconcileOptions)

type reconcileOptions struct {
	keep func(*model.AlertRecord) bool
}

// KeepUnseen 本轮未检测到但 keep 返回 true 的记录保持打开且不刷新 LastSeenAt，
// 用于数据源部分不可用时避免误解决
func KeepUnseen(keep func(*model.AlertRecord) bool) ReconcileOption {
	return func(o *reconcileOptions) { o.keep = keep }
}

// Reconcile 以当前时间作为检测时间
func (t *Tracker) Reconcile(ctx context.Context, tenantID, serverID string, detections []model.AlertDetection) (*Result, error) {
	return t.ReconcileAt(ctx, tenantID, serverID, t.now(), detections)
}

// ReconcileAt 将本轮检测结果与已打开记录对比，计算变更集并一次性提交
// capturedAt 仅用于生成审计用的 AlertID
func (t *Tracker) ReconcileAt(ctx context.Context, tenantID, serverID string, capturedAt time.Time, detections []model.AlertDetection, opts ...ReconcileOption) (*Result, error) {
	if tenantID == "" || serverID == "" {
		return nil, ErrInvalidKey
	}

	unlock, err := t.locks.Lock(ctx, tenantID+"\x1f"+serverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	open, err := t.store.LoadOpen(ctx, tenantID, serverID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	var o reconcileOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := t.now()
	cs, res := t.plan(tenantID, serverID, now, capturedAt, open, detections, o.keep)
	if cs.Empty() {
		return res, nil
	}

	if err := t.store.Commit(ctx, cs); err != nil {
		t.logger.WarnContext(ctx, "reconcile commit failed",
			"tenant", tenantID, "server", serverID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	t.logger.DebugContext(ctx, "reconciled",
		"tenant", tenantID,
		"server", serverID,
		"opened", len(res.Opened),
		"updated", len(res.Updated),
		"escalated", len(res.Escalated),
		"resolved", len(res.Resolved),
		"held", len(res.Held),
		"open", len(res.Open),
	)
	return res, nil
}

// plan 计算变更集，不做任何 I/O
func (t *Tracker) plan(tenantID, serverID string, now, capturedAt time.Time, open []*model.AlertRecord, detections []model.AlertDetection, keep func(*model.AlertRecord) bool) (*ChangeSet, *Result) {
	cs := &ChangeSet{TenantID: tenantID, ServerID: serverID}
	res := &Result{}

	// 同一指纹出现多次时保留最严重的一条
	seen := make(map[string]int, len(detections))
	order := make([]string, 0, len(detections))
	current := make([]model.AlertDetection, 0, len(detections))
	for _, d := range detections {
		fp := model.Fingerprint(serverID, &d)
		if i, ok := seen[fp]; ok {
			if d.Severity.Rank() > current[i].Severity.Rank() {
				current[i] = d
			}
			continue
		}
		seen[fp] = len(current)
		order = append(order, fp)
		current = append(current, d)
	}

	byFP := make(map[string]*model.AlertRecord, len(open))
	for _, r := range open {
		byFP[r.Fingerprint] = r
	}

	for i, fp := range order {
		d := current[i]
		alertID := model.AlertID(serverID, &d, capturedAt)

		prev, ok := byFP[fp]
		if !ok {
			r := &model.AlertRecord{
				ID:          t.newID(),
				TenantID:    tenantID,
				ServerID:    serverID,
				Fingerprint: fp,
				AlertID:     alertID,
				Detection:   d,
				FirstSeenAt: now,
				LastSeenAt:  now,
			}
			cs.Insert = append(cs.Insert, r)
			res.Opened = append(res.Opened, r)
			res.Open = append(res.Open, r)
			continue
		}

		r := prev.Clone()
		changed := r.Detection.Severity != d.Severity || r.Detection.Current != d.Current
		escalated := d.Severity.Rank() > r.Detection.Severity.Rank()
		r.Detection = d
		r.AlertID = alertID
		r.LastSeenAt = now
		cs.Refresh = append(cs.Refresh, r)
		res.Open = append(res.Open, r)
		if changed {
			res.Updated = append(res.Updated, r)
		}
		if escalated {
			res.Escalated = append(res.Escalated, r)
		}
	}

	for _, prev := range open {
		if _, ok := seen[prev.Fingerprint]; ok {
			continue
		}
		if keep != nil && keep(prev) {
			r := prev.Clone()
			res.Open = append(res.Open, r)
			res.Held = append(res.Held, r)
			continue
		}
		r := prev.Clone()
		resolvedAt := now
		r.Resolved = true
		r.ResolvedAt = &resolvedAt
		cs.Resolve = append(cs.Resolve, r)
		res.Resolved = append(res.Resolved, r)
	}

	return cs, res
}

// Open 返回 (tenant, server) 当前打开的记录
func (t *Tracker) Open(ctx context.Context, tenantID, serverID string) ([]*model.AlertRecord, error) {
	records, err := t.store.LoadOpen(ctx, tenantID, serverID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return records, nil
}

// Resolved 返回 (tenant, server) 最近解决的记录
func (t *Tracker) Resolved(ctx context.Context, tenantID, serverID string, limit uint64) ([]*model.AlertRecord, error) {
	records, err := t.store.ListResolved(ctx, tenantID, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return records, nil
}
