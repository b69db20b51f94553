package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tracker"
	"github.com/lk2023060901/brokerwatch/pkg/mq/kafka"
)

// 告警生命周期事件类型
const (
	EventOpened   = "alert.opened"
	EventUpdated  = "alert.updated"
	EventResolved = "alert.resolved"
)

// AlertEvent 发布到事件流的单条告警变化
type AlertEvent struct {
	Type     string             `json:"type"`
	TenantID string             `json:"tenantId"`
	ServerID string             `json:"serverId"`
	Record   *model.AlertRecord `json:"record"`
	At       time.Time          `json:"at"`
}

// EventPublisher 发布 reconcile 产生的告警变化
type EventPublisher interface {
	Publish(ctx context.Context, tenantID, serverID string, res *tracker.Result) error
}

// MessagePublisher kafka.Client 满足该接口
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, msg *kafka.Message) error
}

// KafkaEventPublisher 以 tenant/fingerprint 为键发布事件，同一告警的事件落在同一分区
type KafkaEventPublisher struct {
	pub   MessagePublisher
	topic string
	now   func() time.Time
}

func NewKafkaEventPublisher(pub MessagePublisher, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{pub: pub, topic: topic, now: time.Now}
}

// Publish 依次发布 opened、updated、resolved 事件，单条失败不影响其余
func (k *KafkaEventPublisher) Publish(ctx context.Context, tenantID, serverID string, res *tracker.Result) error {
	at := k.now().UTC()
	var errs []error
	for _, group := range []struct {
		typ     string
		records []*model.AlertRecord
	}{
		{EventOpened, res.Opened},
		{EventUpdated, res.Updated},
		{EventResolved, res.Resolved},
	} {
		for _, r := range group.records {
			ev := AlertEvent{Type: group.typ, TenantID: tenantID, ServerID: serverID, Record: r, At: at}
			value, err := json.Marshal(ev)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			msg := &kafka.Message{
				Key:   []byte(tenantID + "/" + r.Fingerprint),
				Value: value,
				Headers: map[string]string{
					"event_type":   group.typ,
					"content-type": "application/json",
				},
				Timestamp: at,
			}
			if err := k.pub.Publish(ctx, k.topic, msg); err != nil {
				errs = append(errs, fmt.Errorf("publish %s %s: %w", group.typ, r.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}
