package evaluator

import (
	"fmt"
)

// Bound 单个类别的告警阈值
type Bound struct {
	Warning  float64 `mapstructure:"warning" json:"warning" yaml:"warning"`
	Critical float64 `mapstructure:"critical" json:"critical" yaml:"critical"`
}

// IsZero 未配置
func (b Bound) IsZero() bool {
	return b.Warning == 0 && b.Critical == 0
}

// ThresholdConfig 租户阈值配置，百分比类指标使用 0-100
type ThresholdConfig struct {
	// Memory 内存使用率（越高越差）
	Memory Bound `mapstructure:"memory" json:"memory" yaml:"memory"`
	// Disk 磁盘剩余率（越低越差）
	Disk Bound `mapstructure:"disk" json:"disk" yaml:"disk"`
	// FileDescriptors 文件描述符使用率
	FileDescriptors Bound `mapstructure:"file_descriptors" json:"fileDescriptors" yaml:"file_descriptors"`
	// QueueMessages 队列积压（ready + unacked）
	QueueMessages Bound `mapstructure:"queue_messages" json:"queueMessages" yaml:"queue_messages"`
	// Connections 节点 socket 数与集群连接总数
	Connections Bound `mapstructure:"connections" json:"connections" yaml:"connections"`
}

// DefaultThresholds 返回默认阈值
func DefaultThresholds() *ThresholdConfig {
	return &ThresholdConfig{
		Memory:          Bound{Warning: 80, Critical: 95},
		Disk:            Bound{Warning: 20, Critical: 10},
		FileDescriptors: Bound{Warning: 80, Critical: 95},
		QueueMessages:   Bound{Warning: 5000, Critical: 50000},
		Connections:     Bound{Warning: 1000, Critical: 5000},
	}
}

// WithDefaults 返回副本，未配置的类别使用默认阈值
func (c *ThresholdConfig) WithDefaults() *ThresholdConfig {
	d := DefaultThresholds()
	if c == nil {
		return d
	}
	out := *c
	for _, p := range []struct{ dst, def *Bound }{
		{&out.Memory, &d.Memory},
		{&out.Disk, &d.Disk},
		{&out.FileDescriptors, &d.FileDescriptors},
		{&out.QueueMessages, &d.QueueMessages},
		{&out.Connections, &d.Connections},
	} {
		if p.dst.IsZero() {
			*p.dst = *p.def
		}
	}
	return &out
}

// Validate 校验 critical 严格比 warning 更严重
func (c *ThresholdConfig) Validate() error {
	checks := []struct {
		name         string
		b            Bound
		lowerIsWorse bool
	}{
		{"memory", c.Memory, false},
		{"disk", c.Disk, true},
		{"file_descriptors", c.FileDescriptors, false},
		{"queue_messages", c.QueueMessages, false},
		{"connections", c.Connections, false},
	}
	for _, ck := range checks {
		if ck.b.IsZero() {
			continue
		}
		if ck.b.Warning < 0 || ck.b.Critical < 0 {
			return fmt.Errorf("%w: %s bounds must be non-negative", ErrInvalidThresholds, ck.name)
		}
		if ck.lowerIsWorse && ck.b.Critical >= ck.b.Warning {
			return fmt.Errorf("%w: %s critical (%v) must be below warning (%v)",
				ErrInvalidThresholds, ck.name, ck.b.Critical, ck.b.Warning)
		}
		if !ck.lowerIsWorse && ck.b.Critical <= ck.b.Warning {
			return fmt.Errorf("%w: %s critical (%v) must be above warning (%v)",
				ErrInvalidThresholds, ck.name, ck.b.Critical, ck.b.Warning)
		}
	}
	return nil
}
