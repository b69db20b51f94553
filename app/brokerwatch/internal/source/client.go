// Package source 通过 RabbitMQ 管理 API 采集指标快照
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/pkg/config"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
	promconfig "github.com/prometheus/common/config"
	"golang.org/x/sync/errgroup"
)

// 管理 API 端点
const (
	EndpointNodes    = "nodes"
	EndpointQueues   = "queues"
	EndpointOverview = "overview"
)

// Endpoints 每个快照访问的全部端点
var Endpoints = []string{EndpointNodes, EndpointQueues, EndpointOverview}

var endpointPaths = map[string]string{
	EndpointNodes:    "/api/nodes",
	EndpointQueues:   "/api/queues?columns=name,vhost,messages_ready,messages_unacknowledged,consumers",
	EndpointOverview: "/api/overview",
}

// Client 管理 API 客户端，按目标缓存 http.Client
type Client struct {
	config *Config
	logger logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*http.Client
}

// Option 客户端选项
type Option func(*Client)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New 创建客户端
func New(cfg *Config, opts ...Option) (*Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		config:  newCfg,
		logger:  logger.NewNoop(),
		now:     time.Now,
		clients: make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("source")
	return c, nil
}

// httpClient 返回目标对应的 http.Client，基本认证由 RoundTripper 注入
func (c *Client) httpClient(t Target) (*http.Client, error) {
	key := t.URL + "\x1f" + t.Username + "\x1f" + t.Password

	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[key]; ok {
		return hc, nil
	}

	hcfg := promconfig.HTTPClientConfig{
		TLSConfig:       promconfig.TLSConfig{InsecureSkipVerify: c.config.InsecureSkipVerify},
		FollowRedirects: true,
		EnableHTTP2:     true,
	}
	if t.Username != "" {
		hcfg.BasicAuth = &promconfig.BasicAuth{
			Username: t.Username,
			Password: promconfig.Secret(t.Password),
		}
	}
	if err := hcfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	hc, err := promconfig.NewClientFromConfig(hcfg, "brokerwatch")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	hc.Timeout = c.config.Timeout
	c.clients[key] = hc
	return hc, nil
}

// Snapshot 并发请求 nodes/queues/overview 并构建快照
// 401/403 的端点记入 Unavailable，全部端点网络失败时返回 ErrSourceUnreachable
func (c *Client) Snapshot(ctx context.Context, t Target) (*model.MetricSnapshot, error) {
	if t.ID == "" || t.URL == "" {
		return nil, ErrInvalidTarget
	}
	hc, err := c.httpClient(t)
	if err != nil {
		return nil, err
	}
	base := strings.TrimRight(t.URL, "/")

	var (
		nodes  []nodeInfo
		queues []queueInfo
		ov     overview
		errs   = make(map[string]error, len(endpointPaths))
		mu     sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(endpoint string, dst any) {
		g.Go(func() error {
			err := c.get(gctx, hc, base+endpointPaths[endpoint], endpoint, dst)
			if err != nil {
				mu.Lock()
				errs[endpoint] = err
				mu.Unlock()
			}
			// 仅在调用方取消时中止其余请求
			return ctx.Err()
		})
	}
	fetch(EndpointNodes, &nodes)
	fetch(EndpointQueues, &queues)
	fetch(EndpointOverview, &ov)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &model.MetricSnapshot{ServerID: t.ID, CapturedAt: c.now()}
	unreachable := 0
	for _, endpoint := range Endpoints {
		err, failed := errs[endpoint]
		if !failed {
			continue
		}
		snap.Unavailable = append(snap.Unavailable, endpoint)
		if !errors.Is(err, ErrPermissionDenied) {
			unreachable++
		}
		c.logger.WarnContext(ctx, "management endpoint unavailable",
			"server", t.ID, "endpoint", endpoint, "error", err)
	}
	if unreachable == len(endpointPaths) {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnreachable, t.ID, errs[EndpointOverview])
	}

	if _, failed := errs[EndpointNodes]; !failed {
		snap.Nodes = toNodeMetrics(nodes)
	}
	if _, failed := errs[EndpointQueues]; !failed {
		snap.Queues = toQueueMetrics(queues)
	}
	if _, failed := errs[EndpointOverview]; !failed {
		snap.Totals = model.ClusterTotals{
			Connections: ov.ObjectTotals.Connections,
			Channels:    ov.ObjectTotals.Channels,
		}
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, url, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &EndpointError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return &EndpointError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &EndpointError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: ErrPermissionDenied}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &EndpointError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, c.config.MaxResponseBytes)).Decode(dst); err != nil {
		return &EndpointError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func toNodeMetrics(nodes []nodeInfo) []model.NodeMetric {
	out := make([]model.NodeMetric, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, model.NodeMetric{
			Name:            n.Name,
			Running:         n.Running,
			MemoryUsedRatio: ratio(n.MemUsed, n.MemLimit),
			FDUsedRatio:     ratio(n.FDUsed, n.FDTotal),
			DiskFreeRatio:   diskHeadroom(n.DiskFree, n.DiskFreeLimit),
			Sockets:         n.SocketsUsed,
		})
	}
	return out
}

func toQueueMetrics(queues []queueInfo) []model.QueueMetric {
	out := make([]model.QueueMetric, 0, len(queues))
	for _, q := range queues {
		out = append(out, model.QueueMetric{
			Name:                   q.Name,
			VHost:                  q.VHost,
			MessagesReady:          q.MessagesReady,
			MessagesUnacknowledged: q.MessagesUnacknowledged,
			Consumers:              q.Consumers,
		})
	}
	return out
}

func ratio(used, total *float64) *float64 {
	if used == nil || total == nil || *total <= 0 {
		return nil
	}
	return model.Float(*used / *total)
}

// diskHeadroom 剩余空间中高于告警线的比例，限制在 [0,1]
func diskHeadroom(free, limit *float64) *float64 {
	if free == nil || limit == nil {
		return nil
	}
	if *free <= 0 {
		return model.Float(0)
	}
	v := (*free - *limit) / *free
	return model.Float(min(max(v, 0), 1))
}
