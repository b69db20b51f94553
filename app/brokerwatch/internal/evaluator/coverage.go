package evaluator

import (
	"fmt"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
)

// Coverage 记录一份快照对各数据源的实际覆盖情况
//
// 数据源出现在快照中但对应类别没有可用数值（节点未运行、字段缺失、分母为 0、
// 数值畸形被跳过）时，快照无法说明告警是否已恢复
type Coverage struct {
	nodes   map[string]*model.NodeMetric
	queues  map[string]*model.QueueMetric
	skipped map[string]string
	totals  model.ClusterTotals
	cluster string
	stopped []string
}

// NewCoverage 基于快照与评估时跳过的数据源构建覆盖信息
func NewCoverage(snap *model.MetricSnapshot, skipped []Skip) *Coverage {
	c := &Coverage{
		nodes:   make(map[string]*model.NodeMetric),
		queues:  make(map[string]*model.QueueMetric),
		skipped: make(map[string]string, len(skipped)),
	}
	for _, s := range skipped {
		c.skipped[skipKey(s.SourceType, s.VHost, s.SourceName)] = s.Reason
	}
	if snap == nil {
		return c
	}
	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		c.nodes[n.Name] = n
		if n.Name != "" && !n.Running {
			c.stopped = append(c.stopped, n.Name)
		}
	}
	for i := range snap.Queues {
		q := &snap.Queues[i]
		c.queues[q.VHost+"\x1f"+q.Name] = q
	}
	c.totals = snap.Totals
	c.cluster = clusterName(snap)
	return c
}

// NoData 返回 d 所属数据源在本快照中缺少数据的原因，有数据时返回空串
//
// 快照中不存在的节点或队列视为已删除，返回空串
func (c *Coverage) NoData(d *model.AlertDetection) string {
	if reason, ok := c.skipped[skipKey(d.SourceType, d.VHost, d.SourceName)]; ok {
		return fmt.Sprintf("%s %s skipped: %s", d.SourceType, d.Source(), reason)
	}

	switch d.SourceType {
	case model.SourceNode:
		n, ok := c.nodes[d.SourceName]
		if !ok {
			return ""
		}
		if !n.Running {
			return fmt.Sprintf("node %s not running", n.Name)
		}
		if nodeValue(n, d.Category) == nil {
			return fmt.Sprintf("node %s reports no %s data", n.Name, d.Category)
		}

	case model.SourceQueue:
		q, ok := c.queues[d.VHost+"\x1f"+d.SourceName]
		if !ok {
			return ""
		}
		if q.MessagesReady == nil || (d.Category == model.CategoryQueue && q.Consumers == nil) {
			return fmt.Sprintf("queue %s reports no %s data", d.Source(), d.Category)
		}

	case model.SourceCluster:
		if c.totals.Connections == nil {
			return fmt.Sprintf("cluster %s reports no connection totals", c.cluster)
		}
	}
	return ""
}

// Stopped 返回快照中未运行的节点，按快照顺序
func (c *Coverage) Stopped() []string {
	return c.stopped
}

func nodeValue(n *model.NodeMetric, cat model.Category) *float64 {
	switch cat {
	case model.CategoryMemory:
		return n.MemoryUsedRatio
	case model.CategoryDisk:
		return n.DiskFreeRatio
	case model.CategoryFileDescriptors:
		return n.FDUsedRatio
	case model.CategoryConnections:
		return n.Sockets
	}
	return nil
}

func skipKey(t model.SourceType, vhost, name string) string {
	return string(t) + "\x1f" + vhost + "\x1f" + name
}
