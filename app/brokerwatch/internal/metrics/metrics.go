package metrics

import (
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/dispatcher"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/pkg/prometheus"
)

var _ dispatcher.Observer = (*Metrics)(nil)

// Metrics brokerwatch 服务指标
type Metrics struct {
	// 检测与跟踪
	DetectionsTotal  *prometheus.CounterVec // 检测数（按类别、级别）
	ReconcileTotal   *prometheus.CounterVec // reconcile 次数（按结果）
	TransitionsTotal *prometheus.CounterVec // 告警状态变化（opened/updated/resolved）

	// 投递
	DeliveryAttempts *prometheus.CounterVec   // 投递结果（按类型、结果）
	DeliveryRetries  *prometheus.CounterVec   // 重试次数
	DeliveryDuration *prometheus.HistogramVec // 单个 sink 投递耗时（含重试）

	// 轮询周期
	CycleDuration *prometheus.HistogramVec
	CyclesSkipped *prometheus.CounterVec // 跳过的周期（按原因）
	ServerHealth  *prometheus.GaugeVec   // 当前健康度，0 healthy 1 warning 2 critical 3 unknown

	// 数据库
	DBQueryTotal    *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec
}

// New 在 client 的注册器上创建全部指标
func New(c *prometheus.Client) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst    **prometheus.CounterVec
		name   string
		help   string
		labels []string
	}{
		{&m.DetectionsTotal, "detections_total", "告警检测总数", []string{"category", "severity"}},
		{&m.ReconcileTotal, "reconcile_total", "reconcile 次数", []string{"result"}},
		{&m.TransitionsTotal, "alerts_transitions_total", "告警状态变化次数", []string{"kind"}},
		{&m.DeliveryAttempts, "delivery_attempts_total", "通知投递结果", []string{"kind", "result"}},
		{&m.DeliveryRetries, "delivery_retries_total", "通知投递重试次数", []string{"kind"}},
		{&m.CyclesSkipped, "cycles_skipped_total", "跳过的轮询周期", []string{"reason"}},
		{&m.DBQueryTotal, "db_queries_total", "数据库查询总数", []string{"operation", "result"}},
	}
	for _, ct := range counters {
		if *ct.dst, err = c.NewCounter(ct.name, ct.help, ct.labels); err != nil {
			return nil, err
		}
	}

	if m.DeliveryDuration, err = c.NewHistogram("delivery_duration_seconds", "单个 sink 投递耗时（秒，含重试）",
		[]string{"kind"}, []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}); err != nil {
		return nil, err
	}
	if m.CycleDuration, err = c.NewHistogram("cycle_duration_seconds", "轮询周期耗时（秒）",
		[]string{"result"}, []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}); err != nil {
		return nil, err
	}
	if m.DBQueryDuration, err = c.NewHistogram("db_query_duration_seconds", "数据库查询延迟（秒）",
		[]string{"operation"}, []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}); err != nil {
		return nil, err
	}
	if m.ServerHealth, err = c.NewGauge("server_health", "集群健康度", []string{"tenant", "server"}); err != nil {
		return nil, err
	}
	return m, nil
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

// RecordDetections 记录一轮检测结果
func (m *Metrics) RecordDetections(dets []model.AlertDetection) {
	for i := range dets {
		m.DetectionsTotal.WithLabelValues(string(dets[i].Category), string(dets[i].Severity)).Inc()
	}
}

// RecordReconcile 记录 reconcile 结果与状态变化
func (m *Metrics) RecordReconcile(success bool, opened, updated, resolved int) {
	m.ReconcileTotal.WithLabelValues(result(success)).Inc()
	if !success {
		return
	}
	m.TransitionsTotal.WithLabelValues("opened").Add(float64(opened))
	m.TransitionsTotal.WithLabelValues("updated").Add(float64(updated))
	m.TransitionsTotal.WithLabelValues("resolved").Add(float64(resolved))
}

// RecordCycle 记录一个完整周期
func (m *Metrics) RecordCycle(res string, d time.Duration) {
	m.CycleDuration.WithLabelValues(res).Observe(d.Seconds())
}

// RecordSkipped 记录被跳过的周期
func (m *Metrics) RecordSkipped(reason string) {
	m.CyclesSkipped.WithLabelValues(reason).Inc()
}

// RecordHealth 记录集群健康度
func (m *Metrics) RecordHealth(tenantID, serverID string, h model.Health) {
	var v float64
	switch h {
	case model.HealthWarning:
		v = 1
	case model.HealthCritical:
		v = 2
	case model.HealthUnknown:
		v = 3
	}
	m.ServerHealth.WithLabelValues(tenantID, serverID).Set(v)
}

// RecordDBQuery 记录数据库查询
func (m *Metrics) RecordDBQuery(operation string, success bool, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, result(success)).Inc()
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Retried 实现 dispatcher.Observer
func (m *Metrics) Retried(kind model.SinkKind, _ time.Duration) {
	m.DeliveryRetries.WithLabelValues(string(kind)).Inc()
}

// Finished 实现 dispatcher.Observer
func (m *Metrics) Finished(a model.DeliveryAttempt) {
	m.DeliveryAttempts.WithLabelValues(string(a.Kind), result(a.Success)).Inc()
	m.DeliveryDuration.WithLabelValues(string(a.Kind)).Observe(a.Duration.Seconds())
}
