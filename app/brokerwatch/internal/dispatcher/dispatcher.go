// Package dispatcher 负责告警批次的签名、整形、限速与带重试的投递
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/pkg/config"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
	"github.com/lk2023060901/brokerwatch/pkg/notify"
	"github.com/lk2023060901/brokerwatch/pkg/notify/webhook"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

// Observer 投递过程观察者（指标上报）
type Observer interface {
	// Retried 每次进入重试等待时调用
	Retried(kind model.SinkKind, wait time.Duration)
	// Finished 每个 sink 的最终结果
	Finished(attempt model.DeliveryAttempt)
}

type noopObserver struct{}

func (noopObserver) Retried(model.SinkKind, time.Duration) {}
func (noopObserver) Finished(model.DeliveryAttempt)        {}

// Dispatcher 通知投递器
type Dispatcher struct {
	config   *Config
	sender   notify.Sender
	pool     *ants.Pool
	logger   logger.Logger
	observer Observer
	now      func() time.Time

	mu       sync.Mutex
	lanes    map[string]*lane
	closed   bool
	enqueued atomic.Int64
}

// Stats 投递统计
type Stats struct {
	Enqueued int64
	Lanes    int
	Running  int
}

// Option Dispatcher 选项
type Option func(*Dispatcher)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver 设置观察者
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New 创建 Dispatcher
func New(cfg *Config, sender notify.Sender, opts ...Option) (*Dispatcher, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}

	d := &Dispatcher{
		config:   newCfg,
		sender:   sender,
		logger:   logger.NewNoop(),
		observer: noopObserver{},
		now:      time.Now,
		lanes:    make(map[string]*lane),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("dispatcher")

	pool, err := ants.NewPool(newCfg.Workers, ants.WithPanicHandler(func(p any) {
		d.logger.Error("delivery worker panic", "panic", fmt.Sprint(p))
	}))
	if err != nil {
		return nil, fmt.Errorf("create delivery pool: %w", err)
	}
	d.pool = pool
	return d, nil
}

// Dispatch 向每个启用的 sink 投递批次，返回按 sink 顺序排列的投递结果
// 批次为空时不发送任何请求
func (d *Dispatcher) Dispatch(ctx context.Context, batch *Batch, sinks []model.NotificationSink) []model.DeliveryAttempt {
	if batch == nil || batch.Empty() {
		return nil
	}

	now := d.now()
	pending := make([]chan model.DeliveryAttempt, 0, len(sinks))
	for _, sink := range sinks {
		if !sink.Enabled {
			continue
		}
		ch := make(chan model.DeliveryAttempt, 1)
		pending = append(pending, ch)

		body, err := d.render(batch, sink, now)
		if err != nil {
			// 负载无法构建，不可重试
			ch <- d.finish(sink, 0, 0, err, 0)
			continue
		}
		d.enqueue(&job{ctx: ctx, sink: sink, body: body, result: ch}, batch.Workspace.ID)
	}

	attempts := make([]model.DeliveryAttempt, 0, len(pending))
	for _, ch := range pending {
		attempts = append(attempts, <-ch)
	}
	return attempts
}

func (d *Dispatcher) render(batch *Batch, sink model.NotificationSink, now time.Time) ([]byte, error) {
	shape, err := shaperFor(sink.Kind)
	if err != nil {
		return nil, err
	}
	p, err := BuildPayload(batch, sink.Version, now)
	if err != nil {
		return nil, err
	}
	return shape(p, d.config.MaxChatAlerts)
}

// enqueue 按提交顺序进入 sink 的队列
func (d *Dispatcher) enqueue(j *job, workspaceID string) {
	key := workspaceID + "\x1f" + j.sink.ID + "\x1f" + j.sink.URL

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		j.result <- d.finish(j.sink, 0, 0, ErrDispatcherClosed, 0)
		return
	}
	l, ok := d.lanes[key]
	if !ok {
		limit := rate.Inf
		if d.config.SinkInterval > 0 {
			limit = rate.Every(d.config.SinkInterval)
		}
		l = &lane{limiter: rate.NewLimiter(limit, d.config.SinkBurst)}
		d.lanes[key] = l
	}
	d.mu.Unlock()

	started := l.push(j)
	d.enqueued.Add(1)
	if !started {
		return
	}
	if err := d.pool.Submit(func() { d.drain(l) }); err != nil {
		d.logger.Error("submit delivery task failed", "sink_id", j.sink.ID, "error", err)
		for _, pending := range l.abandon() {
			pending.result <- d.finish(pending.sink, 0, 0, fmt.Errorf("%w: %w", ErrDispatcherClosed, err), 0)
		}
	}
}

func (d *Dispatcher) drain(l *lane) {
	for {
		j, ok := l.pop()
		if !ok {
			return
		}
		j.result <- d.safeDeliver(j, l.limiter)
	}
}

// safeDeliver 捕获 panic，保证每个任务都有结果
func (d *Dispatcher) safeDeliver(j *job, limiter *rate.Limiter) (a model.DeliveryAttempt) {
	defer func() {
		if p := recover(); p != nil {
			a = d.finish(j.sink, 0, 0, fmt.Errorf("delivery panic: %v", p), 0)
		}
	}()
	return d.deliver(j, limiter)
}

// deliver 单个 sink 的投递与重试
func (d *Dispatcher) deliver(j *job, limiter *rate.Limiter) model.DeliveryAttempt {
	start := time.Now()
	var (
		tries      int
		statusCode int
		lastErr    error
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.InitialInterval
	b.MaxInterval = d.config.MaxInterval
	b.Multiplier = d.config.Multiplier

	operation := func() (struct{}, error) {
		if err := limiter.Wait(j.ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		tries++
		resp, err := d.sender.Send(j.ctx, &notify.Request{
			URL:         j.sink.URL,
			Body:        j.body,
			ContentType: "application/json",
			Secret:      j.sink.Secret,
		})
		if resp != nil {
			statusCode = resp.StatusCode
		}
		lastErr = err
		return struct{}{}, d.classify(err)
	}

	_, err := backoff.Retry(j.ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.config.retries()+1)),
		backoff.WithMaxElapsedTime(d.config.MaxElapsedTime),
		backoff.WithNotify(func(err error, wait time.Duration) {
			d.observer.Retried(j.sink.Kind, wait)
			d.logger.WarnContext(j.ctx, "delivery failed, retrying",
				"sink_id", j.sink.ID,
				"attempt", tries,
				"wait", wait.String(),
				"error", err,
			)
		}),
	)
	switch {
	case err == nil:
		lastErr = nil
	case lastErr == nil:
		// 首次发送前 context 已结束
		lastErr = err
	}

	retries := 0
	if tries > 0 {
		retries = tries - 1
	}
	return d.finish(j.sink, statusCode, retries, lastErr, time.Since(start))
}

// classify 区分可重试与不可重试错误
func (d *Dispatcher) classify(err error) error {
	if err == nil {
		return nil
	}
	var se *webhook.StatusError
	if errors.As(err, &se) {
		if !se.Retryable() {
			return backoff.Permanent(err)
		}
		if se.RetryAfter > 0 {
			wait := min(se.RetryAfter, d.config.MaxRetryAfter)
			return &backoff.RetryAfterError{Duration: wait}
		}
		return err
	}
	if errors.Is(err, notify.ErrInvalidURL) || errors.Is(err, notify.ErrWebhookEmpty) {
		return backoff.Permanent(err)
	}
	// 传输错误与超时可重试
	return err
}

func (d *Dispatcher) finish(sink model.NotificationSink, status, retries int, err error, dur time.Duration) model.DeliveryAttempt {
	a := model.DeliveryAttempt{
		SinkID:     sink.ID,
		Kind:       sink.Kind,
		Success:    err == nil,
		StatusCode: status,
		RetryCount: retries,
		Duration:   dur,
		At:         d.now(),
	}
	if err != nil {
		a.Error = err.Error()
		d.logger.Error("delivery failed",
			"sink_id", sink.ID,
			"kind", string(sink.Kind),
			"status", status,
			"retries", retries,
			"error", err,
		)
	}
	d.observer.Finished(a)
	return a
}

// Stats 返回统计信息
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	lanes := len(d.lanes)
	d.mu.Unlock()
	return Stats{
		Enqueued: d.enqueued.Load(),
		Lanes:    lanes,
		Running:  d.pool.Running(),
	}
}

// Close 停止接收新任务并等待进行中的投递结束
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.pool.ReleaseTimeout(d.config.MaxElapsedTime)
}
