package sentry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lk2023060901/brokerwatch/pkg/config"
)

var _ Reporter = (*Client)(nil)

// Client Sentry 客户端
type Client struct {
	hub    *sentry.Hub // 独立 Hub，不使用全局 CurrentHub
	config *Config
	closed atomic.Bool

	eventsTotal    atomic.Uint64
	eventsCaptured atomic.Uint64
	eventsDropped  atomic.Uint64
}

// Option 客户端选项
type Option func(*sentry.ClientOptions)

// WithBeforeSend 设置事件发送前回调，返回 nil 丢弃事件
func WithBeforeSend(fn func(*sentry.Event) *sentry.Event) Option {
	return func(o *sentry.ClientOptions) {
		o.BeforeSend = func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return fn(event)
		}
	}
}

// New 创建 Sentry 客户端
func New(cfg *Config, opts ...Option) (*Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	clientOpts := newCfg.toClientOptions()
	for _, opt := range opts {
		opt(&clientOpts)
	}

	client, err := sentry.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for key, value := range newCfg.Tags {
			scope.SetTag(key, value)
		}
	})

	return &Client{hub: hub, config: newCfg}, nil
}

// NewReporter 按配置返回 Client 或 NoopReporter
func NewReporter(cfg *Config, opts ...Option) (Reporter, error) {
	if cfg == nil || !cfg.Enabled {
		return NoopReporter{}, nil
	}
	return New(cfg, opts...)
}

// CaptureError 上报错误
func (c *Client) CaptureError(_ context.Context, err error, tags map[string]string) {
	if err == nil || c.closed.Load() {
		return
	}
	c.eventsTotal.Add(1)

	hub := c.hub.Clone()
	var eventID *sentry.EventID
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		eventID = hub.CaptureException(err)
	})

	if eventID != nil && *eventID != "" {
		c.eventsCaptured.Add(1)
	} else {
		c.eventsDropped.Add(1)
	}
}

// Flush 等待所有事件上报完成
func (c *Client) Flush(timeout time.Duration) bool {
	return c.hub.Flush(timeout)
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return ErrClientClosed
	}
	c.hub.Flush(c.config.ShutdownTimeout)
	return nil
}

// Stats 获取统计信息
func (c *Client) Stats() Stats {
	return Stats{
		EventsTotal:    c.eventsTotal.Load(),
		EventsCaptured: c.eventsCaptured.Load(),
		EventsDropped:  c.eventsDropped.Load(),
	}
}
