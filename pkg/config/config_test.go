package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mergeTarget struct {
	Name     string
	Timeout  time.Duration
	Retries  int
	Enabled  bool
	Labels   map[string]string
	Brokers  []string
	Nested   mergeNested
	Optional *mergeNested
}

type mergeNested struct {
	Host string
	Port int
}

func TestMergeConfig(t *testing.T) {
	t.Run("both nil", func(t *testing.T) {
		_, err := MergeConfig[mergeTarget](nil, nil)
		require.ErrorIs(t, err, ErrMergeFailed)
	})

	t.Run("nil src keeps defaults", func(t *testing.T) {
		dst := &mergeTarget{Name: "default"}
		got, err := MergeConfig(dst, nil)
		require.NoError(t, err)
		assert.Equal(t, "default", got.Name)
	})

	t.Run("zero values do not override", func(t *testing.T) {
		dst := &mergeTarget{
			Name:    "default",
			Timeout: 5 * time.Second,
			Retries: 3,
			Labels:  map[string]string{"a": "1"},
			Brokers: []string{"localhost:9092"},
			Nested:  mergeNested{Host: "localhost", Port: 5432},
		}
		src := &mergeTarget{
			Retries: 5,
			Labels:  map[string]string{"b": "2"},
			Nested:  mergeNested{Port: 6432},
			Optional: &mergeNested{
				Host: "replica",
			},
		}

		got, err := MergeConfig(dst, src)
		require.NoError(t, err)
		assert.Equal(t, "default", got.Name)
		assert.Equal(t, 5*time.Second, got.Timeout)
		assert.Equal(t, 5, got.Retries)
		assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got.Labels)
		assert.Equal(t, []string{"localhost:9092"}, got.Brokers)
		assert.Equal(t, mergeNested{Host: "localhost", Port: 6432}, got.Nested)
		require.NotNil(t, got.Optional)
		assert.Equal(t, "replica", got.Optional.Host)
	})
}

type validated struct {
	URL  string `validate:"required,url"`
	Kind string `validate:"oneof=webhook chat-webhook"`
	Max  int    `validate:"gte=0,lte=10"`
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(&validated{URL: "https://example.com/hook", Kind: "webhook", Max: 3}))

	err := Validate(&validated{Kind: "email", Max: 11})
	require.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "validated.URL' is required")
	assert.Contains(t, err.Error(), "must be one of [webhook chat-webhook]")
	assert.Contains(t, err.Error(), "less than or equal to 10")

	assert.ErrorIs(t, Validate(nil), ErrNilConfig)
}

type watchedFile struct {
	Interval time.Duration `mapstructure:"interval"`
	Tenants  []struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"tenants"`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestManagerLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "poller:\n  interval: 15s\n")

	mgr := NewManager()
	require.NoError(t, mgr.LoadFile(path))
	assert.True(t, mgr.IsSet("poller.interval"))

	var out watchedFile
	require.NoError(t, mgr.UnmarshalKey("poller", &out))
	assert.Equal(t, 15*time.Second, out.Interval)

	err := NewManager().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestWatcherReload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file watch test in short mode")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "tenants:\n  - id: acme\n")

	w, err := NewWatcher[watchedFile](path, "")
	require.NoError(t, err)
	require.Len(t, w.Current().Tenants, 1)

	changed := make(chan *watchedFile, 4)
	w.OnChange(func(cfg *watchedFile) { changed <- cfg })
	require.NoError(t, w.Start())

	writeFile(t, path, "tenants:\n  - id: acme\n  - id: globex\n")

	select {
	case cfg := <-changed:
		assert.Len(t, cfg.Tenants, 2)
		assert.Len(t, w.Current().Tenants, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not observe file change")
	}
}
