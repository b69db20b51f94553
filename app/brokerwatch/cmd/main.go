package main

import (
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/dispatcher"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/service"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/source"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tenant"
	"github.com/lk2023060901/brokerwatch/pkg/app"
	"github.com/lk2023060901/brokerwatch/pkg/database/postgres"
	"github.com/lk2023060901/brokerwatch/pkg/database/redis"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
	"github.com/lk2023060901/brokerwatch/pkg/mq/kafka"
	"github.com/lk2023060901/brokerwatch/pkg/notify/webhook"
	"github.com/lk2023060901/brokerwatch/pkg/prometheus"
	"github.com/lk2023060901/brokerwatch/pkg/sentry"
	"github.com/lk2023060901/brokerwatch/pkg/web"
	"github.com/lk2023060901/brokerwatch/pkg/web/middleware"
)

// Config 定义 brokerwatch 服务的完整配置结构
type Config struct {
	Log     logger.Config             `mapstructure:"log"`
	Loggers map[string]*logger.Config `mapstructure:"loggers"`

	// HTTP 运维接口
	Web web.Config `mapstructure:"web"`

	// PollRateLimit 手动轮询按 (tenant, server) 限流
	PollRateLimit middleware.RateLimitConfig `mapstructure:"poll_rate_limit"`

	Prometheus prometheus.Config `mapstructure:"prometheus"`

	// 以下存储为空时退化为进程内实现（单副本部署）
	Postgres *postgres.Config `mapstructure:"postgres"`
	Redis    *redis.Config    `mapstructure:"redis"`
	Kafka    *kafka.Config    `mapstructure:"kafka"`

	Sentry sentry.Config `mapstructure:"sentry"`

	// RabbitMQ 管理 API 客户端
	Source source.Config `mapstructure:"source"`

	Webhook    webhook.Config    `mapstructure:"webhook"`
	Dispatcher dispatcher.Config `mapstructure:"dispatcher"`
	Service    service.Config    `mapstructure:"service"`

	// Tenants 内联租户配置，TenantsFile 非空时以文件为准并热加载
	Tenants     []tenant.Config `mapstructure:"tenants"`
	TenantsFile string          `mapstructure:"tenants_file"`
}

func main() {
	var cfg Config

	// 1. 加载配置
	if err := app.LoadConfig(&cfg); err != nil {
		panic(err)
	}

	// 2. 初始化主日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}

	// 3. 通过 Wire 初始化应用
	application, cleanup, err := InitApp(&cfg, l)
	if err != nil {
		l.Error("failed to initialize application", "error", err)
		return
	}
	defer cleanup()

	// 4. 运行服务
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
	}
}
