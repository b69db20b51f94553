// Package aggregator 将打开的告警集合归约为集群健康结论
package aggregator

import (
	"sort"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
)

// Summary 健康汇总
type Summary = model.Summary

// Summarize 计算健康结论、问题列表与级别计数，已解决的记录会被忽略
func Summarize(records []*model.AlertRecord) Summary {
	open := make([]*model.AlertRecord, 0, len(records))
	for _, r := range records {
		if r != nil && r.Open() {
			open = append(open, r)
		}
	}

	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i], open[j]
		if ra, rb := a.Detection.Severity.Rank(), b.Detection.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
			return a.FirstSeenAt.Before(b.FirstSeenAt)
		}
		return a.Fingerprint < b.Fingerprint
	})

	s := Summary{Health: model.HealthHealthy, Issues: make([]string, 0, len(open))}
	for _, r := range open {
		switch r.Detection.Severity {
		case model.SeverityCritical:
			s.Counts.Critical++
		case model.SeverityWarning:
			s.Counts.Warning++
		case model.SeverityInfo:
			s.Counts.Info++
		}
		s.Issues = append(s.Issues, r.Detection.Title)
	}
	s.Counts.Total = len(open)

	switch {
	case s.Counts.Critical > 0:
		s.Health = model.HealthCritical
	case s.Counts.Warning > 0:
		s.Health = model.HealthWarning
	}
	return s
}

// ForAvailability 数据不可用时健康结论不能是 healthy
func ForAvailability(s Summary, availability model.Availability) Summary {
	if availability != model.Available && s.Health == model.HealthHealthy {
		s.Health = model.HealthUnknown
	}
	return s
}
