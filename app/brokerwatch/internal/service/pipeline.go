package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/aggregator"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/dispatcher"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/evaluator"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/source"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tenant"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tracker"
	"github.com/lk2023060901/brokerwatch/pkg/config"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
	"github.com/lk2023060901/brokerwatch/pkg/sentry"
)

// 周期结果，用作 cycle_duration_seconds 的 result 标签
const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultFailed      = "failed"
)

// SnapshotSource 指标快照来源
type SnapshotSource interface {
	Snapshot(ctx context.Context, t source.Target) (*model.MetricSnapshot, error)
}

// AlertTracker 告警生命周期跟踪
type AlertTracker interface {
	ReconcileAt(ctx context.Context, tenantID, serverID string, capturedAt time.Time, detections []model.AlertDetection, opts ...tracker.ReconcileOption) (*tracker.Result, error)
	Open(ctx context.Context, tenantID, serverID string) ([]*model.AlertRecord, error)
}

// Notifier 通知投递
type Notifier interface {
	Dispatch(ctx context.Context, batch *dispatcher.Batch, sinks []model.NotificationSink) []model.DeliveryAttempt
}

// CycleLocker 跨副本周期锁
type CycleLocker interface {
	TryAcquire(ctx context.Context, tenantID, serverID string) (release func(), ok bool, err error)
}

// StatusCache 集群运行状态缓存
type StatusCache interface {
	Get(ctx context.Context, tenantID, serverID string) (*model.ServerStatus, error)
	Put(ctx context.Context, st *model.ServerStatus) error
}

// Recorder 周期指标
type Recorder interface {
	RecordDetections(dets []model.AlertDetection)
	RecordReconcile(success bool, opened, updated, resolved int)
	RecordCycle(result string, d time.Duration)
	RecordSkipped(reason string)
	RecordHealth(tenantID, serverID string, h model.Health)
}

type noopRecorder struct{}

func (noopRecorder) RecordDetections([]model.AlertDetection)   {}
func (noopRecorder) RecordReconcile(bool, int, int, int)       {}
func (noopRecorder) RecordCycle(string, time.Duration)         {}
func (noopRecorder) RecordSkipped(string)                      {}
func (noopRecorder) RecordHealth(string, string, model.Health) {}

// localLocker 单副本部署不需要跨进程锁，进程内串行由 Poller 保证
type localLocker struct{}

func (localLocker) TryAcquire(context.Context, string, string) (func(), bool, error) {
	return func() {}, true, nil
}

// Pipeline 单个 (tenant, server) 的检测周期
type Pipeline struct {
	config   *Config
	source   SnapshotSource
	tracker  AlertTracker
	notifier Notifier
	cache    StatusCache
	locker   CycleLocker
	events   EventPublisher
	reporter sentry.Reporter
	recorder Recorder
	logger   logger.Logger
	now      func() time.Time
}

// PipelineOption Pipeline 选项
type PipelineOption func(*Pipeline)

// WithPipelineLogger 设置日志
func WithPipelineLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithLocker 设置跨副本锁
func WithLocker(l CycleLocker) PipelineOption {
	return func(p *Pipeline) { p.locker = l }
}

// WithEvents 启用生命周期事件发布
func WithEvents(e EventPublisher) PipelineOption {
	return func(p *Pipeline) { p.events = e }
}

// WithReporter 设置错误上报
func WithReporter(r sentry.Reporter) PipelineOption {
	return func(p *Pipeline) { p.reporter = r }
}

// WithRecorder 设置指标记录
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPipelineClock 设置时钟
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline 创建 Pipeline
func NewPipeline(cfg *Config, src SnapshotSource, tr AlertTracker, n Notifier, cache StatusCache, opts ...PipelineOption) (*Pipeline, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:   newCfg,
		source:   src,
		tracker:  tr,
		notifier: n,
		cache:    cache,
		locker:   localLocker{},
		reporter: sentry.NoopReporter{},
		recorder: noopRecorder{},
		logger:   logger.NewNoop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pipeline")
	return p, nil
}

// RunCycle 执行一个完整周期：加锁、拉取、评估、reconcile、发布事件、聚合、投递、写状态。
// 锁被其他副本持有时返回 ErrCycleSkipped；数据源不可用不视为错误，返回 unavailable 状态。
func (p *Pipeline) RunCycle(ctx context.Context, t *tenant.Tenant, srv *tenant.Server) (*model.ServerStatus, error) {
	start := p.now()
	ctx = logger.ContextWithFields(ctx, "tenant", t.ID, "server", srv.ID)

	cycleCtx, cancel := context.WithTimeout(ctx, p.config.CycleTimeout)
	defer cancel()

	release, ok, err := p.locker.TryAcquire(cycleCtx, t.ID, srv.ID)
	if err != nil {
		p.recorder.RecordSkipped("lock_error")
		p.logger.WarnContext(ctx, "cycle lock unavailable", "error", err)
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !ok {
		p.recorder.RecordSkipped("locked")
		p.logger.DebugContext(ctx, "cycle skipped, lock held elsewhere")
		return nil, ErrCycleSkipped
	}
	defer release()

	st, result, err := p.run(ctx, cycleCtx, t, srv)
	p.recorder.RecordCycle(result, p.now().Sub(start))
	if err != nil {
		p.logger.ErrorContext(ctx, "cycle failed", "error", err)
		p.reporter.CaptureError(ctx, err, map[string]string{"tenant": t.ID, "server": srv.ID, "stage": "cycle"})
		return nil, err
	}
	p.recorder.RecordHealth(t.ID, srv.ID, st.Summary.Health)
	return st, nil
}

func (p *Pipeline) run(ctx, cycleCtx context.Context, t *tenant.Tenant, srv *tenant.Server) (*model.ServerStatus, string, error) {
	prev, _ := p.cache.Get(cycleCtx, t.ID, srv.ID)

	snap, err := p.source.Snapshot(cycleCtx, srv.Target)
	if err != nil {
		return p.unavailable(ctx, cycleCtx, t, srv, prev, err)
	}

	report := evaluator.EvaluateReport(snap, t.Thresholds)
	dets := report.Detections
	p.recorder.RecordDetections(dets)
	for _, sk := range report.Skipped {
		p.logger.WarnContext(ctx, "malformed metric source skipped",
			"source_type", sk.SourceType, "source", sk.SourceName, "reason", sk.Reason)
	}

	// 未检测到的告警只有在快照确实观测到其数据源时才解决
	cov := evaluator.NewCoverage(snap, report.Skipped)
	endpointDown := heldBy(snap.Unavailable)
	keep := func(r *model.AlertRecord) bool {
		return endpointDown(r) || cov.NoData(&r.Detection) != ""
	}
	res, err := p.tracker.ReconcileAt(cycleCtx, t.ID, srv.ID, snap.CapturedAt, dets, tracker.KeepUnseen(keep))
	if err != nil {
		p.recorder.RecordReconcile(false, 0, 0, 0)
		return nil, ResultFailed, fmt.Errorf("reconcile: %w", err)
	}
	p.recorder.RecordReconcile(true, len(res.Opened), len(res.Updated), len(res.Resolved))

	if p.events != nil {
		if err := p.events.Publish(cycleCtx, t.ID, srv.ID, res); err != nil {
			p.logger.WarnContext(ctx, "alert event publish failed", "error", err)
		}
	}

	availability, reason := availabilityOf(snap, dataGaps(cov, res.Held, endpointDown))
	summary := aggregator.ForAvailability(aggregator.Summarize(res.Open), availability)

	deliverCtx, cancel := context.WithTimeout(ctx, p.config.DeliveryTimeout)
	defer cancel()
	batch := &dispatcher.Batch{
		Workspace: dispatcher.Ref{ID: t.ID, Name: t.DisplayName()},
		Server:    dispatcher.Ref{ID: srv.ID, Name: serverName(srv)},
		Opened:    res.Opened,
		Escalated: res.Escalated,
		Resolved:  res.Resolved,
		Open:      res.Open,
	}
	deliveries := p.notifier.Dispatch(deliverCtx, batch, t.Sinks)
	for _, a := range deliveries {
		if !a.Success {
			p.reporter.CaptureError(ctx, fmt.Errorf("delivery to sink %s failed after %d retries: %s", a.SinkID, a.RetryCount, a.Error),
				map[string]string{"tenant": t.ID, "server": srv.ID, "sink": a.SinkID, "stage": "delivery"})
		}
	}

	st := &model.ServerStatus{
		TenantID:     t.ID,
		ServerID:     srv.ID,
		Availability: availability,
		Reason:       reason,
		Summary:      summary,
		OpenAlerts:   res.Open,
		Deliveries:   mergeDeliveries(prev, deliveries, t.Sinks),
		CheckedAt:    snap.CapturedAt,
	}
	p.putStatus(ctx, st)

	p.logger.InfoContext(ctx, "cycle completed",
		"health", summary.Health,
		"availability", availability,
		"opened", len(res.Opened),
		"updated", len(res.Updated),
		"escalated", len(res.Escalated),
		"resolved", len(res.Resolved),
		"held", len(res.Held),
		"open", len(res.Open),
		"deliveries", len(deliveries),
	)
	return st, ResultOK, nil
}

// unavailable 数据源不可用时保留已打开告警，只更新可用性
func (p *Pipeline) unavailable(ctx, cycleCtx context.Context, t *tenant.Tenant, srv *tenant.Server, prev *model.ServerStatus, cause error) (*model.ServerStatus, string, error) {
	open, err := p.tracker.Open(cycleCtx, t.ID, srv.ID)
	if err != nil {
		p.logger.WarnContext(ctx, "load open alerts failed", "error", err)
	}
	if !errors.Is(cause, source.ErrSourceUnreachable) {
		p.reporter.CaptureError(ctx, cause, map[string]string{"tenant": t.ID, "server": srv.ID, "stage": "snapshot"})
	}

	st := &model.ServerStatus{
		TenantID:     t.ID,
		ServerID:     srv.ID,
		Availability: model.Unavailable,
		Reason:       cause.Error(),
		Summary:      aggregator.ForAvailability(aggregator.Summarize(open), model.Unavailable),
		OpenAlerts:   open,
		Deliveries:   mergeDeliveries(prev, nil, t.Sinks),
		CheckedAt:    p.now().UTC(),
	}
	p.putStatus(ctx, st)
	p.logger.WarnContext(ctx, "metric source unavailable", "error", cause)
	return st, ResultUnavailable, nil
}

func (p *Pipeline) putStatus(ctx context.Context, st *model.ServerStatus) {
	// 状态写入不受周期期限约束，投递可能已用掉大部分时间
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.cache.Put(putCtx, st); err != nil {
		p.logger.WarnContext(ctx, "status cache write failed", "error", err)
	}
}

// availabilityOf 根据不可用端点与缺失数据判断可用性
func availabilityOf(snap *model.MetricSnapshot, gaps []string) (model.Availability, string) {
	var parts []string
	if len(snap.Unavailable) > 0 {
		parts = append(parts, "metrics unavailable: "+strings.Join(snap.Unavailable, ", "))
	}
	if len(gaps) > 0 {
		parts = append(parts, "no data: "+strings.Join(gaps, ", "))
	}
	switch {
	case len(parts) == 0:
		return model.Available, ""
	case len(snap.Unavailable) >= len(source.Endpoints):
		return model.Unavailable, strings.Join(parts, "; ")
	default:
		return model.Partial, strings.Join(parts, "; ")
	}
}

// dataGaps 列出未运行的节点，以及因数据缺失而保持打开的告警的原因，去重并保持顺序
func dataGaps(cov *evaluator.Coverage, held []*model.AlertRecord, endpointDown func(*model.AlertRecord) bool) []string {
	var gaps []string
	seen := make(map[string]bool)
	add := func(g string) {
		if g != "" && !seen[g] {
			seen[g] = true
			gaps = append(gaps, g)
		}
	}
	for _, n := range cov.Stopped() {
		add(fmt.Sprintf("node %s not running", n))
	}
	for _, r := range held {
		if !endpointDown(r) {
			add(cov.NoData(&r.Detection))
		}
	}
	return gaps
}

// heldBy 来自不可用端点的告警保持打开
func heldBy(unavailable []string) func(*model.AlertRecord) bool {
	missing := make(map[model.SourceType]bool, len(unavailable))
	for _, e := range unavailable {
		switch e {
		case source.EndpointNodes:
			missing[model.SourceNode] = true
		case source.EndpointQueues:
			missing[model.SourceQueue] = true
		case source.EndpointOverview:
			missing[model.SourceCluster] = true
		}
	}
	return func(r *model.AlertRecord) bool {
		return missing[r.Detection.SourceType]
	}
}

// mergeDeliveries 每个 sink 保留最近一次投递结果，已删除的 sink 不再展示
func mergeDeliveries(prev *model.ServerStatus, latest []model.DeliveryAttempt, sinks []model.NotificationSink) []model.DeliveryAttempt {
	last := make(map[string]model.DeliveryAttempt, len(sinks))
	if prev != nil {
		for _, a := range prev.Deliveries {
			last[a.SinkID] = a
		}
	}
	for _, a := range latest {
		last[a.SinkID] = a
	}

	var out []model.DeliveryAttempt
	for _, s := range sinks {
		if a, ok := last[s.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}

func serverName(srv *tenant.Server) string {
	if srv.Name != "" {
		return srv.Name
	}
	return srv.ID
}
