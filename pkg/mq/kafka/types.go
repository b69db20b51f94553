package kafka

import (
	"context"
	"time"
)

// Message 消息结构
type Message struct {
	// Topic 主题
	Topic string

	// Key 消息键（同一 Key 的消息路由到同一分区）
	Key []byte

	Value []byte

	// Headers 消息头（如 event_type、content-type）
	Headers map[string]string

	Timestamp time.Time
}

// PublishFunc 发布函数
type PublishFunc func(ctx context.Context, msg *Message) error

// ProducerMiddleware 生产者中间件
type ProducerMiddleware func(ctx context.Context, msg *Message, next PublishFunc) error

// ProducerStats 生产者统计
type ProducerStats struct {
	// MessagesProduced 发送的消息数
	MessagesProduced int64

	// MessagesSucceeded 发送成功的消息数
	MessagesSucceeded int64

	// MessagesFailed 发送失败的消息数
	MessagesFailed int64
}
