package model

import "time"

// MetricSnapshot 单次轮询采集到的 broker 指标，仅在一次评估期间有效
type MetricSnapshot struct {
	ServerID   string
	CapturedAt time.Time
	Nodes      []NodeMetric
	Queues     []QueueMetric
	Totals     ClusterTotals
	// Unavailable 无权限或不可达的数据源端点，对应指标保持 nil
	Unavailable []string
}

// NodeMetric 节点指标，nil 表示无数据（区别于 0）
type NodeMetric struct {
	Name            string
	MemoryUsedRatio *float64
	DiskFreeRatio   *float64
	FDUsedRatio     *float64
	Sockets         *float64
	Running         bool
}

// QueueMetric 队列指标
type QueueMetric struct {
	Name                   string
	VHost                  string
	MessagesReady          *float64
	MessagesUnacknowledged *float64
	Consumers              *float64
}

// ClusterTotals 集群汇总指标
type ClusterTotals struct {
	Connections *float64
	Channels    *float64
}

// Float 返回 v 的指针，便于构造指标
func Float(v float64) *float64 {
	return &v
}
