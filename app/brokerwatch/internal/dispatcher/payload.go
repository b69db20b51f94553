package dispatcher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/pkg/notify"
	"github.com/lk2023060901/brokerwatch/pkg/notify/slack"
)

const eventNotification = "alert.notification"

// 告警在负载中的状态
const (
	StatusFiring    = "firing"
	StatusEscalated = "escalated"
	StatusResolved  = "resolved"
)

// Ref 工作区或服务器引用
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Batch 一次周期产生的待通知变化
type Batch struct {
	Workspace Ref
	Server    Ref
	Opened    []*model.AlertRecord
	// Escalated 严重度升高的已打开告警
	Escalated []*model.AlertRecord
	Resolved  []*model.AlertRecord
	// Open 周期结束后仍打开的全部告警，用于汇总计数；为 nil 时按 Opened 与 Escalated 计数
	Open []*model.AlertRecord
}

// Empty 没有需要通知的变化
func (b *Batch) Empty() bool {
	return len(b.Opened) == 0 && len(b.Escalated) == 0 && len(b.Resolved) == 0
}

// PayloadAlert 负载中的单条告警
type PayloadAlert struct {
	model.AlertDetection
	Status      string     `json:"status"`
	Fingerprint string     `json:"fingerprint"`
	AlertID     string     `json:"alertId"`
	FirstSeenAt time.Time  `json:"firstSeenAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// PayloadSummary 当前打开告警的级别计数，另附本次升级与解决的条数
type PayloadSummary struct {
	Total     int `json:"total"`
	Critical  int `json:"critical"`
	Warning   int `json:"warning"`
	Info      int `json:"info"`
	Escalated int `json:"escalated"`
	Resolved  int `json:"resolved"`
}

// Payload v1 负载
type Payload struct {
	Version   string         `json:"version"`
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Workspace Ref            `json:"workspace"`
	Server    Ref            `json:"server"`
	Alerts    []PayloadAlert `json:"alerts"`
	Summary   PayloadSummary `json:"summary"`
}

// BuildPayload 构建负载，依次列出新打开、升级与已解决的告警
func BuildPayload(b *Batch, version string, now time.Time) (*Payload, error) {
	if version == "" {
		version = model.PayloadV1
	}
	if version != model.PayloadV1 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}

	p := &Payload{
		Version:   version,
		Event:     eventNotification,
		Timestamp: now.UTC(),
		Workspace: b.Workspace,
		Server:    b.Server,
		Alerts:    make([]PayloadAlert, 0, len(b.Opened)+len(b.Escalated)+len(b.Resolved)),
	}
	for _, r := range b.Opened {
		p.Alerts = append(p.Alerts, toPayloadAlert(r, StatusFiring))
	}
	for _, r := range b.Escalated {
		p.Alerts = append(p.Alerts, toPayloadAlert(r, StatusEscalated))
	}
	for _, r := range b.Resolved {
		p.Alerts = append(p.Alerts, toPayloadAlert(r, StatusResolved))
	}

	open := b.Open
	if open == nil {
		open = append(append([]*model.AlertRecord(nil), b.Opened...), b.Escalated...)
	}
	for _, r := range open {
		switch r.Detection.Severity {
		case model.SeverityCritical:
			p.Summary.Critical++
		case model.SeverityWarning:
			p.Summary.Warning++
		default:
			p.Summary.Info++
		}
	}
	p.Summary.Total = len(open)
	p.Summary.Escalated = len(b.Escalated)
	p.Summary.Resolved = len(b.Resolved)
	return p, nil
}

func toPayloadAlert(r *model.AlertRecord, status string) PayloadAlert {
	return PayloadAlert{
		AlertDetection: r.Detection,
		Status:         status,
		Fingerprint:    r.Fingerprint,
		AlertID:        r.AlertID,
		FirstSeenAt:    r.FirstSeenAt,
		ResolvedAt:     r.ResolvedAt,
	}
}

// shaper 将负载转换为某种 sink 的请求体
type shaper func(p *Payload, maxAlerts int) ([]byte, error)

// shaperFor 按 sink 类型选择转换函数
func shaperFor(kind model.SinkKind) (shaper, error) {
	switch kind {
	case model.SinkWebhook, "":
		return shapeWebhook, nil
	case model.SinkChatWebhook:
		return shapeChat, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
}

func shapeWebhook(p *Payload, _ int) ([]byte, error) {
	return json.Marshal(p)
}

// shapeChat 转为 Slack 兼容的 text + blocks 消息
func shapeChat(p *Payload, maxAlerts int) ([]byte, error) {
	level := notify.LevelInfo
	switch {
	case p.Summary.Critical > 0:
		level = notify.LevelCritical
	case p.Summary.Warning > 0:
		level = notify.LevelWarning
	}

	server := p.Server.Name
	if server == "" {
		server = p.Server.ID
	}
	text := fmt.Sprintf("%s [%s] %s: %d open, %d escalated, %d resolved",
		slack.LevelEmoji(level), strings.ToUpper(string(level)), server, p.Summary.Total, p.Summary.Escalated, p.Summary.Resolved)

	msg := slack.NewMessage(text).
		AddHeader(fmt.Sprintf("RabbitMQ alerts on %s", server)).
		AddFields(
			slack.Field("Critical", fmt.Sprint(p.Summary.Critical)),
			slack.Field("Warning", fmt.Sprint(p.Summary.Warning)),
			slack.Field("Info", fmt.Sprint(p.Summary.Info)),
			slack.Field("Escalated", fmt.Sprint(p.Summary.Escalated)),
			slack.Field("Resolved", fmt.Sprint(p.Summary.Resolved)),
		)

	for i, a := range p.Alerts {
		if maxAlerts > 0 && i >= maxAlerts {
			msg.AddContext(slack.Mrkdwn(fmt.Sprintf("…and %d more", len(p.Alerts)-i)))
			break
		}
		msg.AddDivider()
		emoji, title := slack.LevelEmoji(notify.Level(a.Severity)), a.Title
		switch a.Status {
		case StatusResolved:
			emoji, title = ":white_check_mark:", "Resolved: "+title
		case StatusEscalated:
			title = "Escalated to " + string(a.Severity) + ": " + title
		}
		msg.AddSection(fmt.Sprintf("%s *%s*\n%s", emoji, title, a.Description))
		msg.AddFields(
			slack.Field("Severity", string(a.Severity)),
			slack.Field("Source", fmt.Sprintf("%s %s", a.SourceType, a.Source())),
			slack.Field("Current", formatValue(a.Current)),
			slack.Field("Threshold", formatValue(a.Threshold)),
		)
		if a.Status != StatusResolved && a.Recommended != "" {
			msg.AddContext(slack.Mrkdwn("Recommended: " + a.Recommended))
		}
	}

	msg.AddContext(slack.Mrkdwn(fmt.Sprintf("Workspace %s · %s", p.Workspace.Name, p.Timestamp.Format(time.RFC3339))))
	return msg.Marshal()
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
