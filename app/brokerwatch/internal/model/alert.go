package model

import (
	"time"
)

// Category 告警类别
type Category string

const (
	CategoryMemory          Category = "memory"
	CategoryDisk            Category = "disk"
	CategoryFileDescriptors Category = "fileDescriptors"
	CategoryQueueMessages   Category = "queueMessages"
	CategoryConnections     Category = "connections"
	// CategoryQueue 无消费者但有积压的队列
	CategoryQueue Category = "queue"
)

// Severity 告警级别
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank 级别权重，越大越严重
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// SourceType 告警来源类型
type SourceType string

const (
	SourceNode    SourceType = "node"
	SourceQueue   SourceType = "queue"
	SourceCluster SourceType = "cluster"
)

// AlertDetection 评估器的单条输出
type AlertDetection struct {
	Category    Category   `json:"category"`
	Severity    Severity   `json:"severity"`
	SourceType  SourceType `json:"sourceType"`
	SourceName  string     `json:"sourceName"`
	VHost       string     `json:"vhost,omitempty"`
	Current     float64    `json:"current"`
	Threshold   float64    `json:"threshold"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Recommended string     `json:"recommended"`
	Affected    []string   `json:"affected,omitempty"`
}

// Source 返回来源的展示名，队列带 vhost 前缀
func (d *AlertDetection) Source() string {
	if d.SourceType == SourceQueue && d.VHost != "" {
		return d.VHost + "/" + d.SourceName
	}
	return d.SourceName
}

// AlertRecord 按 (tenant, fingerprint) 持久化的告警生命周期记录
type AlertRecord struct {
	ID          string         `json:"id" db:"id"`
	TenantID    string         `json:"tenantId" db:"tenant_id"`
	ServerID    string         `json:"serverId" db:"server_id"`
	Fingerprint string         `json:"fingerprint" db:"fingerprint"`
	AlertID     string         `json:"alertId" db:"alert_id"`
	Detection   AlertDetection `json:"detection" db:"detection"`
	FirstSeenAt time.Time      `json:"firstSeenAt" db:"first_seen_at"`
	LastSeenAt  time.Time      `json:"lastSeenAt" db:"last_seen_at"`
	Resolved    bool           `json:"resolved" db:"resolved"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty" db:"resolved_at"`
}

// Open 记录是否仍处于打开状态
func (r *AlertRecord) Open() bool {
	return !r.Resolved
}

// Clone 深拷贝，避免调用方修改共享状态
func (r *AlertRecord) Clone() *AlertRecord {
	c := *r
	if r.Detection.Affected != nil {
		c.Detection.Affected = append([]string(nil), r.Detection.Affected...)
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
