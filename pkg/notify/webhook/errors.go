package webhook

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lk2023060901/brokerwatch/pkg/notify"
)

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	// RetryAfter 来自 Retry-After 头，未提供时为 0
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook: status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook: status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return notify.ErrUnexpectedStatus
}

// Retryable 5xx 与 429 可重试
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// parseRetryAfter 解析 Retry-After（秒数或 HTTP 日期）
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
