package evaluator

import (
	"math"
	"testing"
	"time"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var f = model.Float

func TestEvaluateScenario(t *testing.T) {
	snap := &model.MetricSnapshot{
		ServerID:   "rabbit-prod",
		CapturedAt: time.Now(),
		Nodes: []model.NodeMetric{
			{Name: "A", MemoryUsedRatio: f(0.96), Running: true},
		},
		Queues: []model.QueueMetric{
			{Name: "orders", VHost: "/", MessagesReady: f(10000), MessagesUnacknowledged: f(0), Consumers: f(0)},
		},
	}
	cfg := &ThresholdConfig{
		Memory:        Bound{Warning: 80, Critical: 95},
		QueueMessages: Bound{Warning: 5000, Critical: 50000},
	}

	got := Evaluate(snap, cfg)
	require.Len(t, got, 2)

	assert.Equal(t, model.CategoryMemory, got[0].Category)
	assert.Equal(t, model.SeverityCritical, got[0].Severity)
	assert.Equal(t, "A", got[0].SourceName)
	assert.Equal(t, 96.0, got[0].Current)
	assert.Equal(t, 95.0, got[0].Threshold)

	assert.Equal(t, model.CategoryQueueMessages, got[1].Category)
	assert.Equal(t, model.SeverityWarning, got[1].Severity)
	assert.Equal(t, model.SourceQueue, got[1].SourceType)
	assert.Equal(t, "/", got[1].VHost)
}

func TestSeverityTieBreak(t *testing.T) {
	tests := []struct {
		name string
		node model.NodeMetric
		want model.Severity
	}{
		{"memory crosses both", model.NodeMetric{Name: "n", MemoryUsedRatio: f(0.99)}, model.SeverityCritical},
		{"memory warning only", model.NodeMetric{Name: "n", MemoryUsedRatio: f(0.85)}, model.SeverityWarning},
		{"disk crosses both", model.NodeMetric{Name: "n", DiskFreeRatio: f(0.05)}, model.SeverityCritical},
		{"disk warning only", model.NodeMetric{Name: "n", DiskFreeRatio: f(0.15)}, model.SeverityWarning},
		{"fd crosses both", model.NodeMetric{Name: "n", FDUsedRatio: f(1)}, model.SeverityCritical},
		{"sockets crosses both", model.NodeMetric{Name: "n", Sockets: f(9000)}, model.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(&model.MetricSnapshot{Nodes: []model.NodeMetric{tt.node}}, nil)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Severity)
		})
	}
}

func TestHealthyNodeProducesNothing(t *testing.T) {
	snap := &model.MetricSnapshot{Nodes: []model.NodeMetric{{
		Name: "n", MemoryUsedRatio: f(0.2), DiskFreeRatio: f(0.9), FDUsedRatio: f(0.1), Sockets: f(10), Running: true,
	}}}
	assert.Empty(t, Evaluate(snap, nil))
}

func TestNilMetricsProduceNoDetection(t *testing.T) {
	snap := &model.MetricSnapshot{
		Nodes:  []model.NodeMetric{{Name: "n"}},
		Queues: []model.QueueMetric{{Name: "q", Consumers: f(0)}},
		Totals: model.ClusterTotals{},
	}
	r := EvaluateReport(snap, nil)
	assert.Empty(t, r.Detections)
	assert.Empty(t, r.Skipped)
}

func TestZeroConsumerQueue(t *testing.T) {
	snap := &model.MetricSnapshot{Queues: []model.QueueMetric{
		{Name: "idle", VHost: "v", MessagesReady: f(10), Consumers: f(0)},
		{Name: "empty", VHost: "v", MessagesReady: f(0), Consumers: f(0)},
		{Name: "served", VHost: "v", MessagesReady: f(10), Consumers: f(2)},
	}}
	got := Evaluate(snap, nil)
	require.Len(t, got, 1)
	assert.Equal(t, model.CategoryQueue, got[0].Category)
	assert.Equal(t, model.SeverityInfo, got[0].Severity)
	assert.Equal(t, "idle", got[0].SourceName)
	assert.Equal(t, []string{"v/idle"}, got[0].Affected)
}

func TestMalformedSourceSkippedAlone(t *testing.T) {
	snap := &model.MetricSnapshot{
		Nodes: []model.NodeMetric{
			{Name: "", MemoryUsedRatio: f(0.99)},
			{Name: "nan", MemoryUsedRatio: f(math.NaN())},
			{Name: "ok", MemoryUsedRatio: f(0.99)},
		},
		Queues: []model.QueueMetric{
			{Name: "neg", MessagesReady: f(-1)},
			{Name: "big", MessagesReady: f(60000)},
		},
	}
	r := EvaluateReport(snap, nil)
	require.Len(t, r.Detections, 2)
	assert.Equal(t, "ok", r.Detections[0].SourceName)
	assert.Equal(t, "big", r.Detections[1].SourceName)
	assert.Equal(t, model.SeverityCritical, r.Detections[1].Severity)

	require.Len(t, r.Skipped, 3)
	assert.Equal(t, "empty node name", r.Skipped[0].Reason)
	assert.Equal(t, "NaN value", r.Skipped[1].Reason)
	assert.Equal(t, model.SourceQueue, r.Skipped[2].SourceType)
}

func TestClusterConnections(t *testing.T) {
	snap := &model.MetricSnapshot{
		ServerID: "srv",
		Nodes:    []model.NodeMetric{{Name: "a"}, {Name: "b"}},
		Totals:   model.ClusterTotals{Connections: f(1200), Channels: f(3000)},
	}
	got := Evaluate(snap, nil)
	require.Len(t, got, 1)
	assert.Equal(t, model.SourceCluster, got[0].SourceType)
	assert.Equal(t, "srv", got[0].SourceName)
	assert.Equal(t, model.SeverityWarning, got[0].Severity)
	assert.Equal(t, []string{"a", "b"}, got[0].Affected)

	snap.Totals.Connections = f(math.Inf(1))
	r := EvaluateReport(snap, nil)
	assert.Empty(t, r.Detections)
	require.Len(t, r.Skipped, 1)
	assert.Equal(t, model.SourceCluster, r.Skipped[0].SourceType)
}

func TestEvaluateDeterministic(t *testing.T) {
	snap := &model.MetricSnapshot{
		Nodes:  []model.NodeMetric{{Name: "a", MemoryUsedRatio: f(0.9), FDUsedRatio: f(0.97)}, {Name: "b", DiskFreeRatio: f(0.01)}},
		Queues: []model.QueueMetric{{Name: "q", MessagesReady: f(7000)}},
	}
	assert.Equal(t, Evaluate(snap, nil), Evaluate(snap, nil))
	assert.Nil(t, Evaluate(nil, nil))
}

func TestThresholdConfig(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.NoError(t, (&ThresholdConfig{}).Validate())

	bad := []*ThresholdConfig{
		{Memory: Bound{Warning: 90, Critical: 80}},
		{Disk: Bound{Warning: 10, Critical: 20}},
		{Connections: Bound{Warning: 10, Critical: 10}},
		{QueueMessages: Bound{Warning: -1, Critical: 10}},
	}
	for _, c := range bad {
		assert.ErrorIs(t, c.Validate(), ErrInvalidThresholds)
	}

	partial := (&ThresholdConfig{Memory: Bound{Warning: 50, Critical: 60}}).WithDefaults()
	assert.Equal(t, Bound{Warning: 50, Critical: 60}, partial.Memory)
	assert.Equal(t, DefaultThresholds().Disk, partial.Disk)
}
