package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner 周期阻塞直到 release 或 ctx 取消
type blockingRunner struct {
	release chan struct{}
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32

	mu      sync.Mutex
	servers []string
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) RunCycle(ctx context.Context, t *tenant.Tenant, srv *tenant.Server) (*model.ServerStatus, error) {
	r.calls.Add(1)
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		cur := r.maxSeen.Load()
		if n <= cur || r.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	r.mu.Lock()
	r.servers = append(r.servers, t.ID+"/"+srv.ID)
	r.mu.Unlock()

	select {
	case <-r.release:
		return &model.ServerStatus{TenantID: t.ID, ServerID: srv.ID}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTenantStore(t *testing.T) *tenant.Store {
	t.Helper()
	s, err := tenant.NewStore([]tenant.Config{
		{ID: "acme", Servers: []tenant.ServerConfig{
			{ID: "eu-1", URL: "http://rabbit-eu-1:15672"},
			{ID: "eu-2", URL: "http://rabbit-eu-2:15672"},
		}},
		{ID: "beta", Servers: []tenant.ServerConfig{{ID: "us-1", URL: "http://rabbit-us-1:15672"}}},
	})
	require.NoError(t, err)
	return s
}

func newTestPoller(t *testing.T, runner CycleRunner) *Poller {
	t.Helper()
	p, err := NewPoller(&Config{Schedule: "@every 1h", Workers: 4}, newTenantStore(t), runner)
	require.NoError(t, err)
	return p
}

func TestPollerStartRunsEveryServer(t *testing.T) {
	runner := newBlockingRunner()
	p := newTestPoller(t, runner)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return runner.calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 3, runner.maxSeen.Load(), "different servers run concurrently")
	assert.True(t, p.Busy("acme", "eu-1"))

	// 上一个周期未结束时跳过
	p.Tick()
	assert.ErrorIs(t, p.Trigger("acme", "eu-1"), ErrCycleRunning)
	assert.EqualValues(t, 3, runner.calls.Load())

	close(runner.release)
	require.Eventually(t, func() bool { return !p.Busy("acme", "eu-1") }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Trigger("acme", "eu-1"))
	require.Eventually(t, func() bool { return runner.calls.Load() == 4 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Trigger("acme", "eu-1"), ErrPollerStopped)
}

func TestPollerTriggerUnknownServer(t *testing.T) {
	p := newTestPoller(t, newBlockingRunner())
	assert.ErrorIs(t, p.Trigger("nobody", "eu-1"), tenant.ErrTenantNotFound)
	assert.ErrorIs(t, p.Trigger("acme", "us-9"), tenant.ErrServerNotFound)
	assert.ErrorIs(t, p.Trigger("acme", "eu-1"), ErrPollerStopped)
}

func TestPollerStopCancelsAfterDeadline(t *testing.T) {
	runner := newBlockingRunner()
	p := newTestPoller(t, runner)
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return runner.active.Load() == 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 0, runner.active.Load(), "in-flight cycles observed cancellation")
	assert.NoError(t, p.Stop(context.Background()))
}

func TestPollerPoolFull(t *testing.T) {
	runner := newBlockingRunner()
	p, err := NewPoller(&Config{Schedule: "@every 1h", Workers: 1}, newTenantStore(t), runner)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() {
		close(runner.release)
		_ = p.Stop(context.Background())
	})

	require.Eventually(t, func() bool { return runner.active.Load() == 1 }, time.Second, 5*time.Millisecond)
	busy := 0
	for _, key := range [][2]string{{"acme", "eu-1"}, {"acme", "eu-2"}, {"beta", "us-1"}} {
		if !p.Busy(key[0], key[1]) {
			assert.ErrorIs(t, p.Trigger(key[0], key[1]), ErrPollerBusy)
			busy++
		}
	}
	assert.Equal(t, 2, busy)
}
