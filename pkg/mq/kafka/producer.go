package kafka

import (
	"context"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
)

// messageWriter kafka.Writer 的最小子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer Kafka 生产者
type Producer struct {
	client  *Client
	topic   string
	writer  messageWriter
	publish PublishFunc

	produced  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	closed atomic.Bool
}

// newProducer 创建生产者
func newProducer(c *Client, topic string) (*Producer, error) {
	cfg := c.config.Producer

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(c.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxRetries + 1,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.ReadTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            parseCompression(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	if c.config.TLS != nil || c.config.SASL != nil {
		transport, err := newTransport(c.config)
		if err != nil {
			return nil, err
		}
		writer.Transport = transport
	}

	return newProducerWithWriter(c, topic, writer), nil
}

func newProducerWithWriter(c *Client, topic string, w messageWriter) *Producer {
	p := &Producer{
		client: c,
		topic:  topic,
		writer: w,
	}
	p.publish = chain(p.doPublish, c.producerMiddlewares)
	return p
}

// Publish 发布单条消息
func (p *Producer) Publish(ctx context.Context, msg *Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	msg.Topic = p.topic

	p.produced.Add(1)
	if err := p.publish(ctx, msg); err != nil {
		p.failed.Add(1)
		return err
	}
	p.succeeded.Add(1)
	return nil
}

// doPublish 实际发布
func (p *Producer) doPublish(ctx context.Context, msg *Message) error {
	return p.writer.WriteMessages(ctx, toKafkaMessage(msg))
}

// PublishBatch 批量发布消息（不经过中间件）
func (p *Producer) PublishBatch(ctx context.Context, msgs []*Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(msgs) == 0 {
		return nil
	}

	n := int64(len(msgs))
	p.produced.Add(n)

	kafkaMsgs := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		msg.Topic = p.topic
		kafkaMsgs[i] = toKafkaMessage(msg)
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsgs...); err != nil {
		p.failed.Add(n)
		return err
	}
	p.succeeded.Add(n)
	return nil
}

// Topic 返回 topic 名称
func (p *Producer) Topic() string {
	return p.topic
}

// Stats 返回统计信息
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesProduced:  p.produced.Load(),
		MessagesSucceeded: p.succeeded.Load(),
		MessagesFailed:    p.failed.Load(),
	}
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.client.logger.Debug("producer closing", "topic", p.topic)
	return p.writer.Close()
}

func toKafkaMessage(msg *Message) kafka.Message {
	km := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Time:  msg.Timestamp,
	}
	if len(msg.Headers) > 0 {
		km.Headers = make([]kafka.Header, 0, len(msg.Headers))
		for k, v := range msg.Headers {
			km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return km
}

// parseCompression 解析压缩算法
func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0 // none
	}
}
