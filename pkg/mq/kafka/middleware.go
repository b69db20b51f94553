package kafka

import (
	"context"
	"time"

	"github.com/lk2023060901/brokerwatch/pkg/logger"
)

// ProducerLoggingMiddleware 生产者日志中间件
func ProducerLoggingMiddleware(log logger.Logger) ProducerMiddleware {
	return func(ctx context.Context, msg *Message, next PublishFunc) error {
		start := time.Now()
		err := next(ctx, msg)

		duration := time.Since(start)
		if err != nil {
			log.ErrorContext(ctx, "message publish failed",
				"topic", msg.Topic,
				"key", string(msg.Key),
				"duration", duration,
				"error", err,
			)
		} else {
			log.DebugContext(ctx, "message published",
				"topic", msg.Topic,
				"key", string(msg.Key),
				"duration", duration,
			)
		}
		return err
	}
}

// ProducerRecoveryMiddleware 生产者恢复中间件
func ProducerRecoveryMiddleware(log logger.Logger) ProducerMiddleware {
	return func(ctx context.Context, msg *Message, next PublishFunc) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("producer panic recovered",
					"topic", msg.Topic,
					"key", string(msg.Key),
					"panic", r,
				)
				err = ErrProducerPanic
			}
		}()
		return next(ctx, msg)
	}
}

// chain 组装中间件，先注册的在外层
func chain(final PublishFunc, mws []ProducerMiddleware) PublishFunc {
	publish := final
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		next := publish
		publish = func(ctx context.Context, msg *Message) error {
			return mw(ctx, msg, next)
		}
	}
	return publish
}
