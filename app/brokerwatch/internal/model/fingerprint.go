package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// 字段分隔符，不会出现在 broker 名称中
const fieldSep = "\x1f"

// Fingerprint 计算告警身份键，与时间无关
// 队列且 vhost 非空时将 vhost 纳入计算，不同 vhost 的同名队列互不影响
func Fingerprint(serverID string, d *AlertDetection) string {
	parts := []string{serverID, string(d.Category), string(d.SourceType), d.SourceName}
	if d.SourceType == SourceQueue && d.VHost != "" {
		parts = append(parts, d.VHost)
	}
	sum := xxhash.Sum64String(strings.Join(parts, fieldSep))
	return fmt.Sprintf("%s-%016x", d.Category, sum)
}

// AlertID 单次检测的审计标识，包含采集时间，不可用于身份比较
func AlertID(serverID string, d *AlertDetection, capturedAt time.Time) string {
	return strings.Join([]string{
		serverID,
		string(d.Category),
		d.Source(),
		strconv.FormatInt(capturedAt.UnixMilli(), 10),
	}, ":")
}
