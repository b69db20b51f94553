package model

import "time"

// Health 集群健康结论
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
	// HealthUnknown 数据不可用，无法给出结论
	HealthUnknown Health = "unknown"
)

// Availability 指标可用性，与告警语义分离
type Availability string

const (
	Available   Availability = "available"
	Partial     Availability = "partial"
	Unavailable Availability = "unavailable"
)

// Counts 打开告警的级别计数
type Counts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Summary 聚合器输出
type Summary struct {
	Health Health   `json:"health"`
	Issues []string `json:"issues"`
	Counts Counts   `json:"counts"`
}

// ServerStatus 单个 (tenant, server) 最近一次周期的运行视图
type ServerStatus struct {
	TenantID     string            `json:"tenantId"`
	ServerID     string            `json:"serverId"`
	Availability Availability      `json:"availability"`
	Reason       string            `json:"reason,omitempty"`
	Summary      Summary           `json:"summary"`
	OpenAlerts   []*AlertRecord    `json:"openAlerts"`
	Deliveries   []DeliveryAttempt `json:"deliveries,omitempty"`
	CheckedAt    time.Time         `json:"checkedAt"`
}
