package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/dao"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/dispatcher"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/handler"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/metrics"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/service"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/source"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tenant"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tracker"
	"github.com/lk2023060901/brokerwatch/pkg/app"
	"github.com/lk2023060901/brokerwatch/pkg/config"
	"github.com/lk2023060901/brokerwatch/pkg/database/postgres"
	"github.com/lk2023060901/brokerwatch/pkg/database/redis"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
	"github.com/lk2023060901/brokerwatch/pkg/mq/kafka"
	"github.com/lk2023060901/brokerwatch/pkg/notify/webhook"
	"github.com/lk2023060901/brokerwatch/pkg/prometheus"
	"github.com/lk2023060901/brokerwatch/pkg/sentry"
	"github.com/lk2023060901/brokerwatch/pkg/web"
	webmetrics "github.com/lk2023060901/brokerwatch/pkg/web/metrics"
	"github.com/lk2023060901/brokerwatch/pkg/web/middleware"
)

const (
	migrateTimeout = 30 * time.Second
	statusTTL      = 24 * time.Hour
)

func provideAppOptions(cfg *Config, l logger.Logger) []app.Option {
	return []app.Option{
		app.WithName(app.AppName),
		app.WithLogger(l),
		app.WithLogConfig(&cfg.Log),
		app.WithNamedLoggers(cfg.Loggers),
	}
}

func provideBaseApp(opts []app.Option) *app.BaseApp {
	return app.NewBaseApp(opts...)
}

// providePrometheus 独立 Registry，/metrics 由 web 服务挂载
func providePrometheus(cfg *Config) (*prometheus.Client, error) {
	return prometheus.New(&cfg.Prometheus)
}

// provideTenantStore 配置了 tenants_file 时热加载
func provideTenantStore(cfg *Config, l logger.Logger) (*tenant.Store, error) {
	store, err := tenant.NewStore(cfg.Tenants, tenant.WithLogger(l))
	if err != nil {
		return nil, err
	}
	if cfg.TenantsFile != "" {
		if err := store.Watch(cfg.TenantsFile); err != nil {
			return nil, fmt.Errorf("watch tenants: %w", err)
		}
	}
	if len(store.List()) == 0 {
		l.Warn("no tenants configured")
	}
	return store, nil
}

// providePostgres 未配置时返回 nil，告警记录保存在内存
func providePostgres(cfg *Config) (*postgres.Client, error) {
	if cfg.Postgres == nil {
		return nil, nil
	}
	return postgres.New(cfg.Postgres)
}

// provideRedis 未配置时返回 nil，不加跨副本锁
func provideRedis(cfg *Config) (*redis.Client, error) {
	if cfg.Redis == nil {
		return nil, nil
	}
	return redis.NewClient(cfg.Redis)
}

// provideKafka 未配置时返回 nil，不发布生命周期事件
func provideKafka(cfg *Config, l logger.Logger) (*kafka.Client, error) {
	if cfg.Kafka == nil {
		return nil, nil
	}
	kl := l.Named("kafka")
	return kafka.New(cfg.Kafka,
		kafka.WithLogger(kl),
		kafka.WithProducerMiddleware(
			kafka.ProducerRecoveryMiddleware(kl),
			kafka.ProducerLoggingMiddleware(kl),
		),
	)
}

func provideAlertStore(db *postgres.Client, l logger.Logger, m *metrics.Metrics) (tracker.Store, error) {
	if db == nil {
		return tracker.NewMemoryStore(), nil
	}
	d := dao.NewAlertDAO(db, l, m)
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if err := d.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate alert records: %w", err)
	}
	return d, nil
}

func provideStatusCache(rdb *redis.Client) service.StatusCache {
	if rdb == nil {
		return dao.NewMemoryStatusCache()
	}
	return dao.NewRedisStatusCache(rdb, statusTTL)
}

func provideSource(cfg *Config, l logger.Logger) (*source.Client, error) {
	return source.New(&cfg.Source, source.WithLogger(l))
}

func provideTracker(store tracker.Store, l logger.Logger) *tracker.Tracker {
	return tracker.New(store, tracker.WithLogger(l))
}

func provideWebhook(cfg *Config) (*webhook.Client, error) {
	return webhook.NewClient(&cfg.Webhook)
}

func provideDispatcher(cfg *Config, wh *webhook.Client, m *metrics.Metrics, l logger.Logger) (*dispatcher.Dispatcher, error) {
	return dispatcher.New(&cfg.Dispatcher, wh, dispatcher.WithLogger(l), dispatcher.WithObserver(m))
}

func provideReporter(cfg *Config) (sentry.Reporter, error) {
	return sentry.NewReporter(&cfg.Sentry)
}

func providePipeline(
	cfg *Config,
	src *source.Client,
	tr *tracker.Tracker,
	disp *dispatcher.Dispatcher,
	cache service.StatusCache,
	rdb *redis.Client,
	kc *kafka.Client,
	reporter sentry.Reporter,
	m *metrics.Metrics,
	l logger.Logger,
) (*service.Pipeline, error) {
	svcCfg, err := config.MergeConfig(service.DefaultConfig(), &cfg.Service)
	if err != nil {
		return nil, err
	}

	opts := []service.PipelineOption{
		service.WithPipelineLogger(l),
		service.WithReporter(reporter),
		service.WithRecorder(m),
	}
	if rdb != nil {
		opts = append(opts, service.WithLocker(dao.NewCycleLocker(rdb, svcCfg.LockTTL, l)))
	}
	if kc != nil {
		opts = append(opts, service.WithEvents(service.NewKafkaEventPublisher(kc, svcCfg.EventTopic)))
	}
	return service.NewPipeline(svcCfg, src, tr, disp, cache, opts...)
}

func providePoller(cfg *Config, store *tenant.Store, p *service.Pipeline, m *metrics.Metrics, l logger.Logger) (*service.Poller, error) {
	return service.NewPoller(&cfg.Service, store, p,
		service.WithPollerLogger(l),
		service.WithPollerRecorder(m),
	)
}

func provideWebServer(
	cfg *Config,
	l logger.Logger,
	prom *prometheus.Client,
	store *tenant.Store,
	cache service.StatusCache,
	tr *tracker.Tracker,
	poller *service.Poller,
	db *postgres.Client,
	rdb *redis.Client,
	kc *kafka.Client,
) (*web.Server, error) {
	srv, err := web.NewServer(&cfg.Web, l)
	if err != nil {
		return nil, err
	}
	hm, err := webmetrics.NewHTTPMetrics(prom)
	if err != nil {
		return nil, err
	}
	r := srv.Router()
	r.Use(middleware.Metrics(hm))

	checks := make(map[string]handler.Check)
	if db != nil {
		checks["postgres"] = db.Ping
	}
	if rdb != nil {
		checks["redis"] = rdb.Ping
	}
	if kc != nil {
		checks["kafka"] = kc.HealthCheck
	}
	handler.NewHealthHandler(checks).Register(r)
	handler.RegisterMetrics(r, prom)

	rl := cfg.PollRateLimit
	rl.KeyFunc = handler.PollKey
	handler.NewAlertHandler(store, cache, tr, poller, l).
		Register(r, middleware.NewRateLimiter(l.Named("ratelimit.poll"), rl))
	return srv, nil
}

// provideAppComponents Closer 按 LIFO 关闭，先登记的资源最后关闭
func provideAppComponents(
	srv *web.Server,
	poller *service.Poller,
	db *postgres.Client,
	rdb *redis.Client,
	kc *kafka.Client,
	disp *dispatcher.Dispatcher,
	reporter sentry.Reporter,
) app.AppComponents {
	var closers []app.Closer
	if db != nil {
		closers = append(closers, app.CloserFunc(db.Close))
	}
	if rdb != nil {
		closers = append(closers, rdb)
	}
	if kc != nil {
		closers = append(closers, kc)
	}
	closers = append(closers, disp)
	if c, ok := reporter.(*sentry.Client); ok {
		closers = append(closers, c)
	}

	return app.AppComponents{
		// web 先停止接收手动轮询，再停止调度
		Servers: []app.Server{poller, srv},
		Closers: closers,
	}
}
