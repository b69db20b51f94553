package tenant

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/evaluator"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acme() Config {
	off := false
	return Config{
		ID:   "acme",
		Name: "Acme Corp",
		Thresholds: &evaluator.ThresholdConfig{
			Memory: evaluator.Bound{Warning: 70, Critical: 90},
		},
		Sinks: []SinkConfig{
			{ID: "ops", URL: "https://hooks.example.com/ops", Secret: "s3cr3t"},
			{ID: "chat", Kind: "chat-webhook", URL: "https://chat.example.com/hook", Version: "v1"},
			{ID: "paused", URL: "https://hooks.example.com/paused", Enabled: &off},
		},
		Servers: []ServerConfig{
			{ID: "eu-1", Name: "EU", URL: "https://rabbit-eu-1:15672", Username: "monitor", Password: "pw"},
		},
	}
}

func TestBuild(t *testing.T) {
	tenants, err := Build([]Config{acme()})
	require.NoError(t, err)
	require.Len(t, tenants, 1)

	tn := tenants[0]
	assert.Equal(t, "Acme Corp", tn.DisplayName())
	assert.Equal(t, evaluator.Bound{Warning: 70, Critical: 90}, tn.Thresholds.Memory)
	assert.Equal(t, evaluator.DefaultThresholds().Disk, tn.Thresholds.Disk)

	require.Len(t, tn.Sinks, 3)
	assert.Equal(t, model.SinkWebhook, tn.Sinks[0].Kind)
	assert.True(t, tn.Sinks[0].Enabled)
	assert.Equal(t, "s3cr3t", tn.Sinks[0].Secret)
	assert.Equal(t, model.SinkChatWebhook, tn.Sinks[1].Kind)
	assert.False(t, tn.Sinks[2].Enabled)

	srv, ok := tn.Server("eu-1")
	require.True(t, ok)
	assert.Equal(t, "eu-1", srv.Target.ID)
	assert.Equal(t, "monitor", srv.Target.Username)
	_, ok = tn.Server("missing")
	assert.False(t, ok)
}

func TestBuildWithoutThresholdsOrSinks(t *testing.T) {
	tenants, err := Build([]Config{{
		ID:      "quiet",
		Servers: []ServerConfig{{ID: "a", URL: "http://localhost:15672"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, evaluator.DefaultThresholds(), tenants[0].Thresholds)
	assert.Empty(t, tenants[0].Sinks)
	assert.Equal(t, "quiet", tenants[0].DisplayName())
}

func TestBuildRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing id", func(c *Config) { c.ID = "" }},
		{"no servers", func(c *Config) { c.Servers = nil }},
		{"bad server url", func(c *Config) { c.Servers[0].URL = "not a url" }},
		{"bad sink kind", func(c *Config) { c.Sinks[0].Kind = "email" }},
		{"duplicate sink", func(c *Config) { c.Sinks[1].ID = "ops" }},
		{"duplicate server", func(c *Config) { c.Servers = append(c.Servers, c.Servers[0]) }},
		{"inverted thresholds", func(c *Config) {
			c.Thresholds.Disk = evaluator.Bound{Warning: 10, Critical: 20}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := acme()
			tt.mutate(&c)
			_, err := Build([]Config{c})
			assert.ErrorIs(t, err, ErrInvalidTenant)
		})
	}

	_, err := Build([]Config{acme(), acme()})
	assert.ErrorIs(t, err, ErrInvalidTenant)
}

func TestStore(t *testing.T) {
	other := acme()
	other.ID = "beta"
	s, err := NewStore([]Config{other, acme()})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "acme", list[0].ID)
	assert.Equal(t, "beta", list[1].ID)

	tn, srv, err := s.Lookup("acme", "eu-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", tn.ID)
	assert.Equal(t, "eu-1", srv.ID)

	_, _, err = s.Lookup("acme", "us-1")
	assert.ErrorIs(t, err, ErrServerNotFound)
	_, err = s.Get("nobody")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	bad := acme()
	bad.ID = ""
	require.Error(t, s.Replace([]Config{bad}))
	assert.Len(t, s.List(), 2, "rejected reload keeps previous tenants")

	var notified atomic.Int32
	s.OnChange(func(ts []*Tenant) { notified.Store(int32(len(ts))) })
	require.NoError(t, s.Replace([]Config{acme()}))
	assert.EqualValues(t, 1, notified.Load())
}

const tenantsYAML = `
tenants:
  - id: acme
    thresholds:
      queue_messages:
        warning: 100
        critical: 1000
    sinks:
      - id: ops
        url: https://hooks.example.com/ops
    servers:
      - id: eu-1
        url: http://rabbit-eu-1:15672
`

func TestStoreWatch(t *testing.T) {
	if testing.Short() {
		t.Skip("file watch test skipped in short mode")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tenantsYAML), 0o644))

	s, err := NewStore(nil)
	require.NoError(t, err)
	require.NoError(t, s.Watch(path))

	updated := tenantsYAML + `  - id: beta
    servers:
      - id: us-1
        url: http://rabbit-us-1:15672
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool { return len(s.List()) == 2 }, 5*time.Second, 20*time.Millisecond)
	tn, err := s.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, evaluator.Bound{Warning: 100, Critical: 1000}, tn.Thresholds.QueueMessages)
}
