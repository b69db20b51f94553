package notify

import (
	"net/http"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelCritical Level = "critical" // 严重
	LevelWarning  Level = "warning"  // 警告
	LevelInfo     Level = "info"     // 信息
)

// Request 一次出站投递
type Request struct {
	URL         string
	Body        []byte
	ContentType string
	// Secret 非空时对 Body 做 HMAC 签名
	Secret string
	Header http.Header
}

// Response 投递结果
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}
