package metrics

import (
	"github.com/lk2023060901/brokerwatch/pkg/prometheus"
)

// HTTPMetrics HTTP 服务指标
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics 在给定的 Client 上注册 HTTP 指标
func NewHTTPMetrics(c *prometheus.Client) (*HTTPMetrics, error) {
	total, err := c.NewCounter("http_requests_total",
		"Total number of HTTP requests.",
		[]string{"path", "method", "status"})
	if err != nil {
		return nil, err
	}
	duration, err := c.NewHistogram("http_request_duration_seconds",
		"HTTP request latency in seconds.",
		[]string{"path", "method"}, nil)
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{RequestsTotal: total, RequestDuration: duration}, nil
}
