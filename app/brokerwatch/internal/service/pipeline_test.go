package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/dao"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/dispatcher"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/metrics"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/source"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tenant"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tracker"
	"github.com/lk2023060901/brokerwatch/pkg/notify/webhook"
	"github.com/lk2023060901/brokerwatch/pkg/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker RabbitMQ 管理 API 桩
type fakeBroker struct {
	*httptest.Server

	mu        sync.Mutex
	memUsed   float64
	ready     float64
	forbidden map[string]bool
	down      bool
	// nodes 非空时原样返回，替代默认的节点列表
	nodes string
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{memUsed: 960, ready: 10000, forbidden: map[string]bool{}}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)
	return b
}

func (b *fakeBroker) set(fn func(b *fakeBroker)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if b.forbidden[r.URL.Path] {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/nodes":
		if b.nodes != "" {
			_, _ = io.WriteString(w, b.nodes)
			return
		}
		fmt.Fprintf(w, `[{"name":"A","running":true,"mem_used":%v,"mem_limit":1000}]`, b.memUsed)
	case "/api/queues":
		fmt.Fprintf(w, `[{"name":"orders","vhost":"/","messages_ready":%v,"messages_unacknowledged":0,"consumers":0}]`, b.ready)
	case "/api/overview":
		_, _ = io.WriteString(w, `{"cluster_name":"rabbit@prod","object_totals":{"connections":10,"channels":20}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// fakeSink 记录收到的 webhook 负载
type fakeSink struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	payloads []dispatcher.Payload
}

func newFakeSink(t *testing.T, status int) *fakeSink {
	t.Helper()
	s := &fakeSink{status: status}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p dispatcher.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			s.mu.Lock()
			s.payloads = append(s.payloads, p)
			s.mu.Unlock()
		}
		w.WriteHeader(s.status)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeSink) received() []dispatcher.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dispatcher.Payload(nil), s.payloads...)
}

type capturedError struct {
	err  error
	tags map[string]string
}

// fakeReporter 记录上报的错误
type fakeReporter struct {
	mu     sync.Mutex
	errors []capturedError
}

func (r *fakeReporter) CaptureError(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, capturedError{err: err, tags: tags})
}

func (r *fakeReporter) Flush(time.Duration) bool { return true }

func (r *fakeReporter) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.errors {
		out = append(out, e.tags["stage"])
	}
	return out
}

type harness struct {
	pipeline *Pipeline
	tenant   *tenant.Tenant
	server   *tenant.Server
	cache    *dao.MemoryStatusCache
	metrics  *metrics.Metrics
	reporter *fakeReporter
}

func newHarness(t *testing.T, brokerURL, sinkURL string, store tracker.Store, opts ...PipelineOption) *harness {
	t.Helper()
	tenants, err := tenant.Build([]tenant.Config{{
		ID:      "acme",
		Name:    "Acme",
		Sinks:   []tenant.SinkConfig{{ID: "ops", URL: sinkURL, Secret: "s3cr3t"}},
		Servers: []tenant.ServerConfig{{ID: "prod", Name: "Production", URL: brokerURL}},
	}})
	require.NoError(t, err)
	tn := tenants[0]
	srv, _ := tn.Server("prod")

	src, err := source.New(&source.Config{Timeout: time.Second})
	require.NoError(t, err)

	prom, err := prometheus.New(nil)
	require.NoError(t, err)
	m, err := metrics.New(prom)
	require.NoError(t, err)

	wh, err := webhook.NewClient(&webhook.Config{Timeout: time.Second})
	require.NoError(t, err)
	d, err := dispatcher.New(&dispatcher.Config{
		MaxRetries:      dispatcher.Retries(1),
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Workers:         2,
	}, wh, dispatcher.WithObserver(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	h := &harness{
		tenant:   tn,
		server:   srv,
		cache:    dao.NewMemoryStatusCache(),
		metrics:  m,
		reporter: &fakeReporter{},
	}
	opts = append([]PipelineOption{WithRecorder(m), WithReporter(h.reporter)}, opts...)
	h.pipeline, err = NewPipeline(nil, src, tracker.New(store), d, h.cache, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) run(t *testing.T) *model.ServerStatus {
	t.Helper()
	st, err := h.pipeline.RunCycle(context.Background(), h.tenant, h.server)
	require.NoError(t, err)
	return st
}

func TestPipelineEndToEnd(t *testing.T) {
	broker := newFakeBroker(t)
	sink := newFakeSink(t, http.StatusOK)
	h := newHarness(t, broker.URL, sink.URL, tracker.NewMemoryStore())

	// 第一轮：内存 96%，队列积压 10000 且无消费者
	st := h.run(t)
	assert.Equal(t, model.Available, st.Availability)
	assert.Equal(t, model.HealthCritical, st.Summary.Health)
	assert.Equal(t, model.Counts{Critical: 1, Warning: 1, Total: 2}, st.Summary.Counts)
	require.Len(t, st.OpenAlerts, 2)
	assert.Equal(t, model.CategoryMemory, st.OpenAlerts[0].Detection.Category)

	payloads := sink.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, "acme", payloads[0].Workspace.ID)
	assert.Equal(t, "Production", payloads[0].Server.Name)
	assert.Equal(t, dispatcher.PayloadSummary{Total: 2, Critical: 1, Warning: 1}, payloads[0].Summary)
	require.Len(t, st.Deliveries, 1)
	assert.True(t, st.Deliveries[0].Success)

	cached, err := h.cache.Get(context.Background(), "acme", "prod")
	require.NoError(t, err)
	assert.Equal(t, model.HealthCritical, cached.Summary.Health)

	// 第二轮：状态未变，不重复通知，投递记录保留
	st = h.run(t)
	assert.Len(t, st.OpenAlerts, 2)
	assert.Len(t, sink.received(), 1)
	require.Len(t, st.Deliveries, 1)

	// 第三轮：内存恢复，队列端点无权限，队列告警保持打开
	broker.set(func(b *fakeBroker) {
		b.memUsed = 500
		b.forbidden["/api/queues"] = true
	})
	st = h.run(t)
	assert.Equal(t, model.Partial, st.Availability)
	assert.Contains(t, st.Reason, "queues")
	assert.Equal(t, model.HealthWarning, st.Summary.Health)
	require.Len(t, st.OpenAlerts, 1)
	assert.Equal(t, "orders", st.OpenAlerts[0].Detection.SourceName)

	payloads = sink.received()
	require.Len(t, payloads, 2)
	require.Len(t, payloads[1].Alerts, 1)
	assert.Equal(t, dispatcher.StatusResolved, payloads[1].Alerts[0].Status)
	assert.Equal(t, model.CategoryMemory, payloads[1].Alerts[0].Category)
	assert.Equal(t, dispatcher.PayloadSummary{Total: 1, Warning: 1, Resolved: 1}, payloads[1].Summary, "summary counts alerts still open")

	// 第四轮：管理 API 不可达
	broker.set(func(b *fakeBroker) { b.down = true })
	st = h.run(t)
	assert.Equal(t, model.Unavailable, st.Availability)
	assert.NotEmpty(t, st.Reason)
	assert.Len(t, st.OpenAlerts, 1, "open alerts are kept while the source is unreachable")
	assert.Len(t, sink.received(), 2)
	assert.Empty(t, h.reporter.stages(), "an unreachable broker is not reported as an error")

	assert.Equal(t, 2, testutil.CollectAndCount(h.metrics.CycleDuration), "ok and unavailable series")
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.TransitionsTotal.WithLabelValues("opened")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TransitionsTotal.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DeliveryAttempts.WithLabelValues("webhook", "success")))
}

type deniedLocker struct{}

func (deniedLocker) TryAcquire(context.Context, string, string) (func(), bool, error) {
	return nil, false, nil
}

type brokenLocker struct{}

func (brokenLocker) TryAcquire(context.Context, string, string) (func(), bool, error) {
	return nil, false, errors.New("redis down")
}

func TestPipelineSkipsWhenLockedElsewhere(t *testing.T) {
	broker := newFakeBroker(t)
	sink := newFakeSink(t, http.StatusOK)
	h := newHarness(t, broker.URL, sink.URL, tracker.NewMemoryStore(), WithLocker(deniedLocker{}))

	_, err := h.pipeline.RunCycle(context.Background(), h.tenant, h.server)
	assert.ErrorIs(t, err, ErrCycleSkipped)
	assert.Empty(t, sink.received())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CyclesSkipped.WithLabelValues("locked")))

	h = newHarness(t, broker.URL, sink.URL, tracker.NewMemoryStore(), WithLocker(brokenLocker{}))
	_, err = h.pipeline.RunCycle(context.Background(), h.tenant, h.server)
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CyclesSkipped.WithLabelValues("lock_error")))
}

// failingStore 提交总是失败
type failingStore struct {
	*tracker.MemoryStore
}

func (failingStore) Commit(context.Context, *tracker.ChangeSet) error {
	return errors.New("connection reset")
}

func TestPipelineReconcileFailureDispatchesNothing(t *testing.T) {
	broker := newFakeBroker(t)
	sink := newFakeSink(t, http.StatusOK)
	h := newHarness(t, broker.URL, sink.URL, failingStore{tracker.NewMemoryStore()})

	_, err := h.pipeline.RunCycle(context.Background(), h.tenant, h.server)
	require.ErrorIs(t, err, tracker.ErrCommitFailed)
	assert.Empty(t, sink.received(), "dispatch never sees a failed reconcile")
	assert.Equal(t, []string{"cycle"}, h.reporter.stages())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ReconcileTotal.WithLabelValues("failed")))

	_, err = h.cache.Get(context.Background(), "acme", "prod")
	assert.ErrorIs(t, err, dao.ErrStatusNotFound)
}

func TestPipelineReportsFailedDelivery(t *testing.T) {
	broker := newFakeBroker(t)
	sink := newFakeSink(t, http.StatusNotFound)
	h := newHarness(t, broker.URL, sink.URL, tracker.NewMemoryStore())

	st := h.run(t)
	require.Len(t, st.Deliveries, 1)
	assert.False(t, st.Deliveries[0].Success)
	assert.Equal(t, http.StatusNotFound, st.Deliveries[0].StatusCode)
	assert.Equal(t, []string{"delivery"}, h.reporter.stages())
}

// recordingEvents 记录发布的 reconcile 结果
type recordingEvents struct {
	mu      sync.Mutex
	results []*tracker.Result
	err     error
}

func (e *recordingEvents) Publish(_ context.Context, _, _ string, res *tracker.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, res)
	return e.err
}

func TestPipelineEventsAreBestEffort(t *testing.T) {
	broker := newFakeBroker(t)
	sink := newFakeSink(t, http.StatusOK)
	events := &recordingEvents{err: errors.New("kafka unavailable")}
	h := newHarness(t, broker.URL, sink.URL, tracker.NewMemoryStore(), WithEvents(events))

	st := h.run(t)
	assert.Len(t, st.OpenAlerts, 2)
	require.Len(t, events.results, 1)
	assert.Len(t, events.results[0].Opened, 2)
	assert.Len(t, sink.received(), 1, "a failed publish does not block delivery")
}

func TestMergeDeliveries(t *testing.T) {
	sinks := []model.NotificationSink{{ID: "a"}, {ID: "b"}}
	prev := &model.ServerStatus{Deliveries: []model.DeliveryAttempt{
		{SinkID: "a", RetryCount: 1},
		{SinkID: "removed"},
	}}
	got := mergeDeliveries(prev, []model.DeliveryAttempt{{SinkID: "b", Success: true}}, sinks)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].SinkID)
	assert.Equal(t, 1, got[0].RetryCount)
	assert.True(t, got[1].Success)

	assert.Empty(t, mergeDeliveries(nil, nil, sinks))
}

func TestAvailabilityOf(t *testing.T) {
	a, reason := availabilityOf(&model.MetricSnapshot{}, nil)
	assert.Equal(t, model.Available, a)
	assert.Empty(t, reason)

	a, reason = availabilityOf(&model.MetricSnapshot{Unavailable: []string{source.EndpointQueues}}, nil)
	assert.Equal(t, model.Partial, a)
	assert.Equal(t, "metrics unavailable: queues", reason)

	a, _ = availabilityOf(&model.MetricSnapshot{Unavailable: source.Endpoints}, nil)
	assert.Equal(t, model.Unavailable, a)

	a, reason = availabilityOf(&model.MetricSnapshot{}, []string{"node A not running"})
	assert.Equal(t, model.Partial, a)
	assert.Equal(t, "no data: node A not running", reason)

	_, reason = availabilityOf(&model.MetricSnapshot{Unavailable: []string{source.EndpointQueues}}, []string{"node A not running"})
	assert.Equal(t, "metrics unavailable: queues; no data: node A not running", reason)
}

func TestPipelineHoldsAlertsWithoutData(t *testing.T) {
	tests := []struct {
		name   string
		nodes  string
		reason string
	}{
		{"node stopped", `[{"name":"A","running":false}]`, "node A not running"},
		{"zero memory limit", `[{"name":"A","running":true,"mem_used":0,"mem_limit":0}]`, "node A reports no memory data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := newFakeBroker(t)
			broker.set(func(b *fakeBroker) { b.ready = 0 })
			sink := newFakeSink(t, http.StatusOK)
			h := newHarness(t, broker.URL, sink.URL, tracker.NewMemoryStore())

			st := h.run(t)
			require.Len(t, st.OpenAlerts, 1)
			assert.Equal(t, model.CategoryMemory, st.OpenAlerts[0].Detection.Category)
			require.Len(t, sink.received(), 1)

			broker.set(func(b *fakeBroker) { b.nodes = tt.nodes })
			st = h.run(t)
			assert.Equal(t, model.Partial, st.Availability)
			assert.Contains(t, st.Reason, tt.reason)
			require.Len(t, st.OpenAlerts, 1, "alert stays open while its value is missing")
			assert.Equal(t, "A", st.OpenAlerts[0].Detection.SourceName)
			assert.NotEqual(t, model.HealthHealthy, st.Summary.Health)
			assert.Len(t, sink.received(), 1, "no resolved notification without data")
			assert.Zero(t, testutil.ToFloat64(h.metrics.TransitionsTotal.WithLabelValues("resolved")))

			// 节点恢复上报且内存正常后才解决
			broker.set(func(b *fakeBroker) {
				b.nodes = ""
				b.memUsed = 500
			})
			st = h.run(t)
			assert.Equal(t, model.Available, st.Availability)
			assert.Empty(t, st.OpenAlerts)
			payloads := sink.received()
			require.Len(t, payloads, 2)
			require.Len(t, payloads[1].Alerts, 1)
			assert.Equal(t, dispatcher.StatusResolved, payloads[1].Alerts[0].Status)
		})
	}
}

func TestPipelineResolvesRemovedNode(t *testing.T) {
	broker := newFakeBroker(t)
	broker.set(func(b *fakeBroker) { b.ready = 0 })
	sink := newFakeSink(t, http.StatusOK)
	h := newHarness(t, broker.URL, sink.URL, tracker.NewMemoryStore())

	require.Len(t, h.run(t).OpenAlerts, 1)

	// 节点已从集群中移除，不再出现在列表中
	broker.set(func(b *fakeBroker) { b.nodes = `[]` })
	st := h.run(t)
	assert.Equal(t, model.Available, st.Availability)
	assert.Empty(t, st.OpenAlerts)
	require.Len(t, sink.received(), 2)
}

func TestPipelineNotifiesEscalation(t *testing.T) {
	broker := newFakeBroker(t)
	broker.set(func(b *fakeBroker) {
		b.memUsed = 850
		b.ready = 0
	})
	sink := newFakeSink(t, http.StatusOK)
	h := newHarness(t, broker.URL, sink.URL, tracker.NewMemoryStore())

	st := h.run(t)
	require.Len(t, st.OpenAlerts, 1)
	assert.Equal(t, model.SeverityWarning, st.OpenAlerts[0].Detection.Severity)
	require.Len(t, sink.received(), 1)

	broker.set(func(b *fakeBroker) { b.memUsed = 990 })
	st = h.run(t)
	assert.Equal(t, model.HealthCritical, st.Summary.Health)

	payloads := sink.received()
	require.Len(t, payloads, 2)
	require.Len(t, payloads[1].Alerts, 1)
	a := payloads[1].Alerts[0]
	assert.Equal(t, dispatcher.StatusEscalated, a.Status)
	assert.Equal(t, model.SeverityCritical, a.Severity)
	assert.Equal(t, 99.0, a.Current)
	assert.Equal(t, dispatcher.PayloadSummary{Total: 1, Critical: 1, Escalated: 1}, payloads[1].Summary)

	// 仍为 critical，仅数值变化，不再通知
	broker.set(func(b *fakeBroker) { b.memUsed = 995 })
	h.run(t)
	assert.Len(t, sink.received(), 2)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Schedule = "every now and then"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.LockTTL = time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
