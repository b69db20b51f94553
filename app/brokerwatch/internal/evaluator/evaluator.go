package evaluator

import (
	"fmt"
	"math"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
)

// Skip 被跳过的畸形数据源
type Skip struct {
	SourceType model.SourceType `json:"sourceType"`
	SourceName string           `json:"sourceName"`
	VHost      string           `json:"vhost,omitempty"`
	Reason     string           `json:"reason"`
}

// Report 评估结果
type Report struct {
	Detections []model.AlertDetection
	Skipped    []Skip
}

// Evaluate 将指标快照映射为告警检测结果，纯函数
func Evaluate(snap *model.MetricSnapshot, cfg *ThresholdConfig) []model.AlertDetection {
	return EvaluateReport(snap, cfg).Detections
}

// EvaluateReport 同 Evaluate，额外返回被跳过的数据源
func EvaluateReport(snap *model.MetricSnapshot, cfg *ThresholdConfig) Report {
	var r Report
	if snap == nil {
		return r
	}
	th := cfg.WithDefaults()

	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		if reason := checkNode(n); reason != "" {
			r.Skipped = append(r.Skipped, Skip{SourceType: model.SourceNode, SourceName: n.Name, Reason: reason})
			continue
		}
		r.Detections = append(r.Detections, evaluateNode(n, th)...)
	}

	for i := range snap.Queues {
		q := &snap.Queues[i]
		if reason := checkQueue(q); reason != "" {
			r.Skipped = append(r.Skipped, Skip{SourceType: model.SourceQueue, SourceName: q.Name, VHost: q.VHost, Reason: reason})
			continue
		}
		r.Detections = append(r.Detections, evaluateQueue(q, th)...)
	}

	if reason := checkValues(snap.Totals.Connections, snap.Totals.Channels); reason != "" {
		r.Skipped = append(r.Skipped, Skip{SourceType: model.SourceCluster, SourceName: clusterName(snap), Reason: reason})
	} else if d, ok := evaluateCluster(snap, th); ok {
		r.Detections = append(r.Detections, d)
	}

	return r
}

// classify 比较数值与阈值，同时越过两个阈值时只返回 critical
func classify(b Bound, lowerIsWorse bool, v float64) (model.Severity, float64, bool) {
	if lowerIsWorse {
		switch {
		case v <= b.Critical:
			return model.SeverityCritical, b.Critical, true
		case v <= b.Warning:
			return model.SeverityWarning, b.Warning, true
		}
		return "", 0, false
	}
	switch {
	case v >= b.Critical:
		return model.SeverityCritical, b.Critical, true
	case v >= b.Warning:
		return model.SeverityWarning, b.Warning, true
	}
	return "", 0, false
}

func evaluateNode(n *model.NodeMetric, th *ThresholdConfig) []model.AlertDetection {
	var out []model.AlertDetection
	affected := []string{n.Name}

	if n.MemoryUsedRatio != nil {
		v := percent(*n.MemoryUsedRatio)
		if sev, bound, ok := classify(th.Memory, false, v); ok {
			out = append(out, model.AlertDetection{
				Category:    model.CategoryMemory,
				Severity:    sev,
				SourceType:  model.SourceNode,
				SourceName:  n.Name,
				Current:     v,
				Threshold:   bound,
				Title:       fmt.Sprintf("High memory usage on node %s", n.Name),
				Description: fmt.Sprintf("Memory usage is %.1f%% of the high watermark (threshold %.0f%%).", v, bound),
				Recommended: "Drain large queues, add consumers or raise vm_memory_high_watermark before publishers are blocked.",
				Affected:    affected,
			})
		}
	}

	if n.DiskFreeRatio != nil {
		v := percent(*n.DiskFreeRatio)
		if sev, bound, ok := classify(th.Disk, true, v); ok {
			out = append(out, model.AlertDetection{
				Category:    model.CategoryDisk,
				Severity:    sev,
				SourceType:  model.SourceNode,
				SourceName:  n.Name,
				Current:     v,
				Threshold:   bound,
				Title:       fmt.Sprintf("Low disk space on node %s", n.Name),
				Description: fmt.Sprintf("Free disk headroom above the alarm limit is %.1f%% (threshold %.0f%%).", v, bound),
				Recommended: "Free disk space or expand the volume; the broker blocks publishers when the free disk alarm fires.",
				Affected:    affected,
			})
		}
	}

	if n.FDUsedRatio != nil {
		v := percent(*n.FDUsedRatio)
		if sev, bound, ok := classify(th.FileDescriptors, false, v); ok {
			out = append(out, model.AlertDetection{
				Category:    model.CategoryFileDescriptors,
				Severity:    sev,
				SourceType:  model.SourceNode,
				SourceName:  n.Name,
				Current:     v,
				Threshold:   bound,
				Title:       fmt.Sprintf("File descriptors nearly exhausted on node %s", n.Name),
				Description: fmt.Sprintf("File descriptor usage is %.1f%% (threshold %.0f%%).", v, bound),
				Recommended: "Raise the open file limit (ulimit -n) or reduce connection churn.",
				Affected:    affected,
			})
		}
	}

	if n.Sockets != nil {
		v := *n.Sockets
		if sev, bound, ok := classify(th.Connections, false, v); ok {
			out = append(out, model.AlertDetection{
				Category:    model.CategoryConnections,
				Severity:    sev,
				SourceType:  model.SourceNode,
				SourceName:  n.Name,
				Current:     v,
				Threshold:   bound,
				Title:       fmt.Sprintf("Too many sockets on node %s", n.Name),
				Description: fmt.Sprintf("Node has %.0f open sockets (threshold %.0f).", v, bound),
				Recommended: "Check for connection leaks and pool client connections.",
				Affected:    affected,
			})
		}
	}
	return out
}

func evaluateQueue(q *model.QueueMetric, th *ThresholdConfig) []model.AlertDetection {
	if q.MessagesReady == nil {
		return nil
	}
	backlog := *q.MessagesReady
	if q.MessagesUnacknowledged != nil {
		backlog += *q.MessagesUnacknowledged
	}
	label := q.Name
	if q.VHost != "" {
		label = q.VHost + "/" + q.Name
	}

	if sev, bound, ok := classify(th.QueueMessages, false, backlog); ok {
		return []model.AlertDetection{{
			Category:    model.CategoryQueueMessages,
			Severity:    sev,
			SourceType:  model.SourceQueue,
			SourceName:  q.Name,
			VHost:       q.VHost,
			Current:     backlog,
			Threshold:   bound,
			Title:       fmt.Sprintf("Message backlog on queue %s", label),
			Description: fmt.Sprintf("Queue holds %.0f ready and unacknowledged messages (threshold %.0f).", backlog, bound),
			Recommended: "Scale consumers or check for stuck consumers; consider a max-length policy.",
			Affected:    []string{label},
		}}
	}

	// 无消费者但有积压，积压已单独告警时不再重复
	if q.Consumers != nil && *q.Consumers == 0 && backlog > 0 {
		return []model.AlertDetection{{
			Category:    model.CategoryQueue,
			Severity:    model.SeverityInfo,
			SourceType:  model.SourceQueue,
			SourceName:  q.Name,
			VHost:       q.VHost,
			Current:     backlog,
			Threshold:   0,
			Title:       fmt.Sprintf("Queue %s has no consumers", label),
			Description: fmt.Sprintf("Queue holds %.0f messages and no consumer is attached.", backlog),
			Recommended: "Start a consumer for this queue or delete it if it is no longer used.",
			Affected:    []string{label},
		}}
	}
	return nil
}

func evaluateCluster(snap *model.MetricSnapshot, th *ThresholdConfig) (model.AlertDetection, bool) {
	if snap.Totals.Connections == nil {
		return model.AlertDetection{}, false
	}
	v := *snap.Totals.Connections
	sev, bound, ok := classify(th.Connections, false, v)
	if !ok {
		return model.AlertDetection{}, false
	}
	affected := make([]string, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.Name != "" {
			affected = append(affected, n.Name)
		}
	}
	name := clusterName(snap)
	return model.AlertDetection{
		Category:    model.CategoryConnections,
		Severity:    sev,
		SourceType:  model.SourceCluster,
		SourceName:  name,
		Current:     v,
		Threshold:   bound,
		Title:       fmt.Sprintf("Too many connections on cluster %s", name),
		Description: fmt.Sprintf("Cluster has %.0f client connections (threshold %.0f).", v, bound),
		Recommended: "Audit clients opening many connections and prefer channels over new connections.",
		Affected:    affected,
	}, true
}

func clusterName(snap *model.MetricSnapshot) string {
	if snap.ServerID != "" {
		return snap.ServerID
	}
	return "cluster"
}

func percent(ratio float64) float64 {
	return math.Round(ratio*100*100) / 100
}

func checkNode(n *model.NodeMetric) string {
	if n.Name == "" {
		return "empty node name"
	}
	return checkValues(n.MemoryUsedRatio, n.DiskFreeRatio, n.FDUsedRatio, n.Sockets)
}

func checkQueue(q *model.QueueMetric) string {
	if q.Name == "" {
		return "empty queue name"
	}
	return checkValues(q.MessagesReady, q.MessagesUnacknowledged, q.Consumers)
}

// checkValues 检查 NaN、Inf 与负值，nil 视为无数据
func checkValues(vs ...*float64) string {
	for _, v := range vs {
		if v == nil {
			continue
		}
		switch {
		case math.IsNaN(*v):
			return "NaN value"
		case math.IsInf(*v, 0):
			return "infinite value"
		case *v < 0:
			return fmt.Sprintf("negative value %v", *v)
		}
	}
	return ""
}
