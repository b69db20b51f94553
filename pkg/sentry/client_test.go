package sentry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 不可达的 DSN，事件在 BeforeSend 中被截获并丢弃
const testDSN = "https://public@127.0.0.1:1/1"

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, (*Config)(nil).Validate(), ErrNilConfig)
	assert.ErrorIs(t, DefaultConfig().Validate(), ErrInvalidDSN)

	cfg := DefaultConfig()
	cfg.DSN = testDSN
	cfg.SampleRate = 2
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestNewReporterDisabled(t *testing.T) {
	r, err := NewReporter(nil)
	require.NoError(t, err)
	assert.IsType(t, NoopReporter{}, r)

	r, err = NewReporter(&Config{DSN: testDSN})
	require.NoError(t, err)
	assert.IsType(t, NoopReporter{}, r)
	assert.True(t, r.Flush(0))
}

func TestCaptureErrorTags(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	c, err := New(&Config{
		DSN:  testDSN,
		Tags: map[string]string{"service": "brokerwatch"},
	}, WithBeforeSend(func(e *sentry.Event) *sentry.Event {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)
	defer c.Close()

	c.CaptureError(context.Background(), errors.New("sink ops-hook: 404"), map[string]string{"tenant": "acme", "sink": "ops-hook"})
	c.CaptureError(context.Background(), nil, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "acme", events[0].Tags["tenant"])
	assert.Equal(t, "brokerwatch", events[0].Tags["service"])

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.EventsTotal)
	assert.Equal(t, uint64(1), stats.EventsDropped)
}

func TestCloseTwice(t *testing.T) {
	c, err := New(&Config{DSN: testDSN, ShutdownTimeout: 1})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Close(), ErrClientClosed)
	c.CaptureError(context.Background(), errors.New("ignored"), nil)
	assert.Equal(t, uint64(0), c.Stats().EventsTotal)
}
