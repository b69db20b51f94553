package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tenant"
	"github.com/lk2023060901/brokerwatch/pkg/config"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
)

// TenantSource 租户列表
type TenantSource interface {
	List() []*tenant.Tenant
	Lookup(tenantID, serverID string) (*tenant.Tenant, *tenant.Server, error)
}

// CycleRunner 执行单个周期
type CycleRunner interface {
	RunCycle(ctx context.Context, t *tenant.Tenant, srv *tenant.Server) (*model.ServerStatus, error)
}

// Poller 按 cron 调度为每个 (tenant, server) 提交周期任务
type Poller struct {
	config   *Config
	tenants  TenantSource
	runner   CycleRunner
	recorder Recorder
	logger   logger.Logger

	mu      sync.Mutex
	guards  map[string]*atomic.Bool
	cron    *cron.Cron
	pool    *ants.Pool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// PollerOption Poller 选项
type PollerOption func(*Poller)

// WithPollerLogger 设置日志
func WithPollerLogger(l logger.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithPollerRecorder 设置指标记录
func WithPollerRecorder(r Recorder) PollerOption {
	return func(p *Poller) { p.recorder = r }
}

// NewPoller 创建 Poller
func NewPoller(cfg *Config, tenants TenantSource, runner CycleRunner, opts ...PollerOption) (*Poller, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	p := &Poller{
		config:   newCfg,
		tenants:  tenants,
		runner:   runner,
		recorder: noopRecorder{},
		logger:   logger.NewNoop(),
		guards:   make(map[string]*atomic.Bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("poller")
	return p, nil
}

// Name 实现 app.Server
func (p *Poller) Name() string {
	return "poller"
}

// Start 实现 app.Server，启动后立即执行一轮
func (p *Poller) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	pool, err := ants.NewPool(p.config.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(r any) {
			p.logger.Error("cycle panicked", "panic", r)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create poller pool: %w", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(p.config.Schedule, p.Tick); err != nil {
		pool.Release()
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	p.pool = pool
	p.cron = c
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running = true
	c.Start()
	go p.Tick()

	p.logger.Info("poller started", "schedule", p.config.Schedule, "workers", p.config.Workers)
	return nil
}

// Stop 实现 app.Server，等待进行中的周期完成，ctx 到期后取消它们
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	c, pool, cancel := p.cron, p.pool, p.cancel
	p.mu.Unlock()

	<-c.Stop().Done()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
		err = ctx.Err()
	}
	cancel()
	pool.Release()
	p.logger.Info("poller stopped")
	return err
}

// Tick 为所有租户的所有集群提交一次周期
func (p *Poller) Tick() {
	for _, t := range p.tenants.List() {
		for i := range t.Servers {
			srv := &t.Servers[i]
			if err := p.submit(t, srv); err != nil && !errors.Is(err, ErrCycleRunning) {
				p.logger.Warn("cycle not submitted", "tenant", t.ID, "server", srv.ID, "error", err)
			}
		}
	}
}

// Trigger 立即执行一次周期，不等待完成
func (p *Poller) Trigger(tenantID, serverID string) error {
	t, srv, err := p.tenants.Lookup(tenantID, serverID)
	if err != nil {
		return err
	}
	return p.submit(t, srv)
}

// Busy 该集群是否有周期在执行
func (p *Poller) Busy(tenantID, serverID string) bool {
	return p.guard(tenantID, serverID).Load()
}

func (p *Poller) guard(tenantID, serverID string) *atomic.Bool {
	key := tenantID + "\x1f" + serverID
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.guards[key]
	if !ok {
		g = &atomic.Bool{}
		p.guards[key] = g
	}
	return g
}

func (p *Poller) submit(t *tenant.Tenant, srv *tenant.Server) error {
	g := p.guard(t.ID, srv.ID)
	if !g.CompareAndSwap(false, true) {
		p.recorder.RecordSkipped("busy")
		return ErrCycleRunning
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		g.Store(false)
		return ErrPollerStopped
	}
	ctx, pool := p.ctx, p.pool
	p.wg.Add(1)
	p.mu.Unlock()

	err := pool.Submit(func() {
		defer p.wg.Done()
		defer g.Store(false)
		if _, err := p.runner.RunCycle(ctx, t, srv); err != nil && !errors.Is(err, ErrCycleSkipped) {
			p.logger.Warn("cycle error", "tenant", t.ID, "server", srv.ID, "error", err)
		}
	})
	if err != nil {
		p.wg.Done()
		g.Store(false)
		if errors.Is(err, ants.ErrPoolOverload) {
			p.recorder.RecordSkipped("pool_full")
			return ErrPollerBusy
		}
		return err
	}
	return nil
}
