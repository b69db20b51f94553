package model

import "time"

// SinkKind 通知目标类型
type SinkKind string

const (
	SinkWebhook     SinkKind = "webhook"
	SinkChatWebhook SinkKind = "chat-webhook"
)

// PayloadV1 当前唯一支持的负载版本
const PayloadV1 = "v1"

// NotificationSink 租户配置的通知目标
type NotificationSink struct {
	ID      string   `json:"id"`
	Kind    SinkKind `json:"kind"`
	URL     string   `json:"url"`
	Secret  string   `json:"-"`
	Enabled bool     `json:"enabled"`
	Version string   `json:"version"`
}

// DeliveryAttempt 一次投递（含重试）的最终结果
type DeliveryAttempt struct {
	SinkID     string        `json:"sinkId"`
	Kind       SinkKind      `json:"kind"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"statusCode,omitempty"`
	Error      string        `json:"error,omitempty"`
	RetryCount int           `json:"retryCount"`
	Duration   time.Duration `json:"duration"`
	At         time.Time     `json:"at"`
}
