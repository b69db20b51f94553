package slack

import (
	"encoding/json"
	"fmt"

	"github.com/lk2023060901/brokerwatch/pkg/notify"
)

// 文本对象类型
const (
	PlainText = "plain_text"
	Markdown  = "mrkdwn"
)

// TextObject Slack 文本对象
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block Slack Block Kit 块
type Block struct {
	Type     string        `json:"type"`
	Text     *TextObject   `json:"text,omitempty"`
	Fields   []*TextObject `json:"fields,omitempty"`
	Elements []*TextObject `json:"elements,omitempty"`
}

// Message Incoming Webhook 消息，text 作为通知预览与降级展示
type Message struct {
	Text   string   `json:"text"`
	Blocks []*Block `json:"blocks,omitempty"`
}

// NewMessage 创建消息
func NewMessage(text string) *Message {
	return &Message{Text: text}
}

// AddHeader 添加标题块
func (m *Message) AddHeader(text string) *Message {
	m.Blocks = append(m.Blocks, &Block{Type: "header", Text: Plain(text)})
	return m
}

// AddSection 添加正文块
func (m *Message) AddSection(text string) *Message {
	m.Blocks = append(m.Blocks, &Block{Type: "section", Text: Mrkdwn(text)})
	return m
}

// AddFields 添加字段块（Slack 限制每块最多 10 个字段，超出自动拆分）
func (m *Message) AddFields(fields ...*TextObject) *Message {
	for len(fields) > 0 {
		n := min(len(fields), maxFieldsPerBlock)
		m.Blocks = append(m.Blocks, &Block{Type: "section", Fields: fields[:n]})
		fields = fields[n:]
	}
	return m
}

// AddContext 添加上下文块
func (m *Message) AddContext(elements ...*TextObject) *Message {
	m.Blocks = append(m.Blocks, &Block{Type: "context", Elements: elements})
	return m
}

// AddDivider 添加分割线
func (m *Message) AddDivider() *Message {
	m.Blocks = append(m.Blocks, &Block{Type: "divider"})
	return m
}

// Marshal 序列化为请求体
func (m *Message) Marshal() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("slack: marshal message: %w", err)
	}
	return body, nil
}

const maxFieldsPerBlock = 10

// Plain 创建纯文本对象
func Plain(text string) *TextObject {
	return &TextObject{Type: PlainText, Text: text}
}

// Mrkdwn 创建 markdown 文本对象
func Mrkdwn(text string) *TextObject {
	return &TextObject{Type: Markdown, Text: text}
}

// Field 创建 "*label*\nvalue" 形式的字段
func Field(label, value string) *TextObject {
	return Mrkdwn(fmt.Sprintf("*%s*\n%s", label, value))
}

// LevelEmoji 告警级别对应的 emoji
func LevelEmoji(level notify.Level) string {
	switch level {
	case notify.LevelCritical:
		return ":red_circle:"
	case notify.LevelWarning:
		return ":large_yellow_circle:"
	case notify.LevelInfo:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}
