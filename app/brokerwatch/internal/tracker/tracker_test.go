package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func memDetection(node string, sev model.Severity, v float64) model.AlertDetection {
	return model.AlertDetection{
		Category:   model.CategoryMemory,
		Severity:   sev,
		SourceType: model.SourceNode,
		SourceName: node,
		Current:    v,
		Title:      "High memory usage on node " + node,
	}
}

func newTracker(store Store, clock *fakeClock) *Tracker {
	var n atomic.Int64
	return New(store,
		WithClock(clock.Now),
		WithIDGenerator(func() string { return fmt.Sprintf("rec-%d", n.Add(1)) }),
	)
}

func TestReconcileOpensNew(t *testing.T) {
	tr := newTracker(NewMemoryStore(), newFakeClock())
	ctx := context.Background()

	res, err := tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{
		memDetection("A", model.SeverityCritical, 96),
		{Category: model.CategoryQueueMessages, Severity: model.SeverityWarning, SourceType: model.SourceQueue, SourceName: "orders", VHost: "/", Current: 10000},
	})
	require.NoError(t, err)
	assert.Len(t, res.Opened, 2)
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Resolved)
	assert.Len(t, res.Open, 2)
	assert.Equal(t, res.Opened[0].FirstSeenAt, res.Opened[0].LastSeenAt)
	assert.Equal(t, "acme", res.Opened[0].TenantID)
}

func TestReconcileIdempotent(t *testing.T) {
	clock := newFakeClock()
	tr := newTracker(NewMemoryStore(), clock)
	ctx := context.Background()
	dets := []model.AlertDetection{memDetection("A", model.SeverityWarning, 85)}

	first, err := tr.Reconcile(ctx, "acme", "srv", dets)
	require.NoError(t, err)
	require.Len(t, first.Opened, 1)

	clock.Advance(30 * time.Second)
	second, err := tr.Reconcile(ctx, "acme", "srv", dets)
	require.NoError(t, err)
	assert.Empty(t, second.Opened)
	assert.Empty(t, second.Resolved)
	assert.Empty(t, second.Updated)
	require.Len(t, second.Open, 1)
	assert.Equal(t, first.Opened[0].ID, second.Open[0].ID)
	assert.True(t, second.Open[0].LastSeenAt.After(first.Opened[0].LastSeenAt))
	assert.Equal(t, first.Opened[0].FirstSeenAt, second.Open[0].FirstSeenAt)

	open, err := tr.Open(ctx, "acme", "srv")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, clock.Now(), open[0].LastSeenAt)
}

func TestReconcileUpdatedOnMaterialChange(t *testing.T) {
	clock := newFakeClock()
	tr := newTracker(NewMemoryStore(), clock)
	ctx := context.Background()

	_, err := tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{memDetection("A", model.SeverityWarning, 85)})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{memDetection("A", model.SeverityCritical, 97)})
	require.NoError(t, err)
	require.Len(t, res.Updated, 1)
	assert.Equal(t, model.SeverityCritical, res.Updated[0].Detection.Severity)
	assert.Empty(t, res.Opened)
	require.Len(t, res.Escalated, 1)
	assert.Same(t, res.Updated[0], res.Escalated[0])

	clock.Advance(time.Minute)
	res, err = tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{memDetection("A", model.SeverityCritical, 98)})
	require.NoError(t, err)
	assert.Len(t, res.Updated, 1, "current value change counts as update")
	assert.Empty(t, res.Escalated)

	clock.Advance(time.Minute)
	res, err = tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{memDetection("A", model.SeverityWarning, 86)})
	require.NoError(t, err)
	assert.Len(t, res.Updated, 1)
	assert.Empty(t, res.Escalated, "lower severity is not an escalation")
}

func TestResolutionRoundTrip(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	tr := newTracker(store, clock)
	ctx := context.Background()
	dets := []model.AlertDetection{memDetection("A", model.SeverityCritical, 96)}

	c1, err := tr.Reconcile(ctx, "acme", "srv", dets)
	require.NoError(t, err)
	require.Len(t, c1.Opened, 1)
	original := c1.Opened[0]

	clock.Advance(time.Minute)
	c2, err := tr.Reconcile(ctx, "acme", "srv", nil)
	require.NoError(t, err)
	require.Len(t, c2.Resolved, 1)
	assert.Equal(t, original.ID, c2.Resolved[0].ID)
	assert.True(t, c2.Resolved[0].Resolved)
	require.NotNil(t, c2.Resolved[0].ResolvedAt)
	assert.Equal(t, clock.Now(), *c2.Resolved[0].ResolvedAt)
	assert.Empty(t, c2.Open)

	clock.Advance(time.Minute)
	c3, err := tr.Reconcile(ctx, "acme", "srv", dets)
	require.NoError(t, err)
	require.Len(t, c3.Opened, 1)
	assert.NotEqual(t, original.ID, c3.Opened[0].ID)
	assert.Equal(t, original.Fingerprint, c3.Opened[0].Fingerprint)
	assert.True(t, c3.Opened[0].FirstSeenAt.After(original.FirstSeenAt))

	history, err := tr.Resolved(ctx, "acme", "srv", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, original.FirstSeenAt, history[0].FirstSeenAt)

	other, err := tr.Resolved(ctx, "acme", "other", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestResolvedNewestFirstWithLimit(t *testing.T) {
	clock := newFakeClock()
	tr := newTracker(NewMemoryStore(), clock)
	ctx := context.Background()

	for _, node := range []string{"A", "B", "C"} {
		_, err := tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{memDetection(node, model.SeverityWarning, 85)})
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = tr.Reconcile(ctx, "acme", "srv", nil)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	got, err := tr.Resolved(ctx, "acme", "srv", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].Detection.SourceName)
	assert.Equal(t, "B", got[1].Detection.SourceName)
	assert.True(t, got[0].ResolvedAt.After(*got[1].ResolvedAt))
}

func TestMemoryStoreHistoryBounded(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < memoryHistoryLimit+5; i++ {
		r := &model.AlertRecord{ID: fmt.Sprintf("r%d", i), TenantID: "acme", ServerID: "srv", Fingerprint: fmt.Sprintf("fp%d", i)}
		require.NoError(t, store.Commit(ctx, &ChangeSet{TenantID: "acme", ServerID: "srv", Insert: []*model.AlertRecord{r}}))
		resolved := r.Clone()
		at := now.Add(time.Duration(i) * time.Second)
		resolved.Resolved, resolved.ResolvedAt = true, &at
		require.NoError(t, store.Commit(ctx, &ChangeSet{TenantID: "acme", ServerID: "srv", Resolve: []*model.AlertRecord{resolved}}))
	}

	all, err := store.ListResolved(ctx, "acme", "srv", 0)
	require.NoError(t, err)
	assert.Len(t, all, memoryHistoryLimit)
	assert.Equal(t, fmt.Sprintf("r%d", memoryHistoryLimit+4), all[0].ID)
}

func TestKeepUnseenHoldsRecordsOpen(t *testing.T) {
	clock := newFakeClock()
	tr := newTracker(NewMemoryStore(), clock)
	ctx := context.Background()

	queue := model.AlertDetection{
		Category:   model.CategoryQueueMessages,
		Severity:   model.SeverityWarning,
		SourceType: model.SourceQueue,
		SourceName: "orders",
		VHost:      "/",
		Current:    6000,
	}
	first, err := tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{
		memDetection("A", model.SeverityWarning, 85), queue,
	})
	require.NoError(t, err)
	require.Len(t, first.Opened, 2)

	clock.Advance(time.Minute)
	queuesUnavailable := KeepUnseen(func(r *model.AlertRecord) bool {
		return r.Detection.SourceType == model.SourceQueue
	})
	res, err := tr.ReconcileAt(ctx, "acme", "srv", clock.Now(), nil, queuesUnavailable)
	require.NoError(t, err)
	require.Len(t, res.Resolved, 1)
	assert.Equal(t, model.SourceNode, res.Resolved[0].Detection.SourceType)
	require.Len(t, res.Open, 1)
	assert.Equal(t, "orders", res.Open[0].Detection.SourceName)
	require.Len(t, res.Held, 1)
	assert.Same(t, res.Open[0], res.Held[0])

	open, err := tr.Open(ctx, "acme", "srv")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, open[0].FirstSeenAt, open[0].LastSeenAt, "held records are not refreshed")
}

func TestReconcileScopedPerServer(t *testing.T) {
	tr := newTracker(NewMemoryStore(), newFakeClock())
	ctx := context.Background()

	_, err := tr.Reconcile(ctx, "acme", "srv-1", []model.AlertDetection{memDetection("A", model.SeverityWarning, 85)})
	require.NoError(t, err)

	res, err := tr.Reconcile(ctx, "acme", "srv-2", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Resolved)

	open, err := tr.Open(ctx, "acme", "srv-1")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestDuplicateDetectionsKeepMostSevere(t *testing.T) {
	tr := newTracker(NewMemoryStore(), newFakeClock())
	res, err := tr.Reconcile(context.Background(), "acme", "srv", []model.AlertDetection{
		memDetection("A", model.SeverityWarning, 85),
		memDetection("A", model.SeverityCritical, 96),
	})
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)
	assert.Equal(t, model.SeverityCritical, res.Opened[0].Detection.Severity)
}

type failingStore struct {
	*MemoryStore
	failCommit atomic.Bool
	failLoad   atomic.Bool
}

func (s *failingStore) LoadOpen(ctx context.Context, tenantID, serverID string) ([]*model.AlertRecord, error) {
	if s.failLoad.Load() {
		return nil, errors.New("connection refused")
	}
	return s.MemoryStore.LoadOpen(ctx, tenantID, serverID)
}

func (s *failingStore) Commit(ctx context.Context, cs *ChangeSet) error {
	if s.failCommit.Load() {
		return errors.New("deadlock detected")
	}
	return s.MemoryStore.Commit(ctx, cs)
}

func TestCommitFailureIsAtomic(t *testing.T) {
	clock := newFakeClock()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	tr := newTracker(store, clock)
	ctx := context.Background()

	_, err := tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{memDetection("A", model.SeverityWarning, 85)})
	require.NoError(t, err)

	store.failCommit.Store(true)
	clock.Advance(time.Minute)
	res, err := tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{memDetection("B", model.SeverityWarning, 85)})
	require.ErrorIs(t, err, ErrCommitFailed)
	assert.Nil(t, res)

	open, err := tr.Open(ctx, "acme", "srv")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "A", open[0].Detection.SourceName)

	// 下一轮重新计算
	store.failCommit.Store(false)
	res, err = tr.Reconcile(ctx, "acme", "srv", []model.AlertDetection{memDetection("B", model.SeverityWarning, 85)})
	require.NoError(t, err)
	assert.Len(t, res.Opened, 1)
	assert.Len(t, res.Resolved, 1)

	store.failLoad.Store(true)
	_, err = tr.Reconcile(ctx, "acme", "srv", nil)
	assert.ErrorIs(t, err, ErrLoadFailed)
}

func TestMemoryStoreRejectsDoubleOpen(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	r := &model.AlertRecord{ID: "1", TenantID: "acme", ServerID: "srv", Fingerprint: "fp"}

	require.NoError(t, store.Commit(ctx, &ChangeSet{TenantID: "acme", ServerID: "srv", Insert: []*model.AlertRecord{r}}))
	dup := &model.AlertRecord{ID: "2", TenantID: "acme", ServerID: "srv", Fingerprint: "fp"}
	err := store.Commit(ctx, &ChangeSet{TenantID: "acme", ServerID: "srv", Insert: []*model.AlertRecord{dup}})
	assert.ErrorIs(t, err, ErrOpenConflict)

	stale := &model.AlertRecord{ID: "9", TenantID: "acme", ServerID: "srv", Fingerprint: "fp"}
	err = store.Commit(ctx, &ChangeSet{TenantID: "acme", ServerID: "srv", Resolve: []*model.AlertRecord{stale}})
	assert.ErrorIs(t, err, ErrRecordNotOpen)
}

func TestInvalidKey(t *testing.T) {
	tr := New(NewMemoryStore())
	_, err := tr.Reconcile(context.Background(), "", "srv", nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// blockingStore 在 LoadOpen 中阻塞，用于验证同键串行与跨租户并行
type blockingStore struct {
	*MemoryStore
	entered chan string
	release chan struct{}
}

func (s *blockingStore) LoadOpen(ctx context.Context, tenantID, serverID string) ([]*model.AlertRecord, error) {
	s.entered <- tenantID
	if tenantID == "slow" {
		<-s.release
	}
	return s.MemoryStore.LoadOpen(ctx, tenantID, serverID)
}

func TestReconcileSerialisedPerKey(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(), entered: make(chan string, 4), release: make(chan struct{})}
	tr := New(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = tr.Reconcile(ctx, "slow", "srv", nil)
	}()
	assert.Equal(t, "slow", <-store.entered)

	// 其他租户不受阻塞
	_, err := tr.Reconcile(ctx, "fast", "srv", nil)
	require.NoError(t, err)
	assert.Equal(t, "fast", <-store.entered)

	// 同一键等待锁，context 超时后返回
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = tr.Reconcile(shortCtx, "slow", "srv", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.release)
	wg.Wait()
	assert.Zero(t, tr.locks.size())
}
