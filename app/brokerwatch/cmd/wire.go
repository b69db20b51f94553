//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/metrics"
	"github.com/lk2023060901/brokerwatch/pkg/app"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
)

func InitApp(cfg *Config, l logger.Logger) (app.Application, func(), error) {
	panic(wire.Build(
		// 1. 基础框架 (BaseApp)
		app.ProviderSet,
		provideAppOptions,
		provideBaseApp,

		// 2. Prometheus 与业务指标
		providePrometheus,
		metrics.New,

		// 3. 租户
		provideTenantStore,

		// 4. 数据层
		providePostgres,
		provideRedis,
		provideKafka,
		provideAlertStore,
		provideStatusCache,

		// 5. 检测、去重与投递
		provideSource,
		provideTracker,
		provideWebhook,
		provideDispatcher,

		// 6. 错误上报
		provideReporter,

		// 7. 周期调度
		providePipeline,
		providePoller,

		// 8. HTTP 接口
		provideWebServer,

		// 9. 组装
		provideAppComponents,
		wire.Bind(new(app.Application), new(*app.BaseApp)),
	))
}
