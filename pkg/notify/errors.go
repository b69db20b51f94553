package notify

import "errors"

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("notify: invalid config")

	// ErrWebhookEmpty Webhook URL 为空
	ErrWebhookEmpty = errors.New("notify: webhook url is empty")

	// ErrInvalidURL Webhook URL 格式错误
	ErrInvalidURL = errors.New("notify: invalid webhook url")

	// ErrRequestFailed 传输层请求失败（连接、超时等）
	ErrRequestFailed = errors.New("notify: http request failed")

	// ErrUnexpectedStatus 非 2xx 响应
	ErrUnexpectedStatus = errors.New("notify: unexpected status")
)
