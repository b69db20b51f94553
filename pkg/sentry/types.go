package sentry

import (
	"context"
	"time"
)

// Reporter 错误上报接口
type Reporter interface {
	// CaptureError 上报错误，tags 附加到本次事件
	CaptureError(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration) bool
}

// NoopReporter 不上报任何内容
type NoopReporter struct{}

// CaptureError 实现 Reporter
func (NoopReporter) CaptureError(context.Context, error, map[string]string) {}

// Flush 实现 Reporter
func (NoopReporter) Flush(time.Duration) bool { return true }

// Stats 统计信息
type Stats struct {
	EventsTotal    uint64 // 总事件数
	EventsCaptured uint64 // 成功捕获数
	EventsDropped  uint64 // 丢弃数
}
