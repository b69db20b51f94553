package tenant

import (
	"fmt"

	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/evaluator"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/source"
	"github.com/lk2023060901/brokerwatch/pkg/config"
)

// Server 租户下的一个集群
type Server struct {
	ID     string
	Name   string
	Target source.Target
}

// Tenant 解析后的租户，阈值已补全默认值
type Tenant struct {
	ID         string
	Name       string
	Thresholds *evaluator.ThresholdConfig
	Sinks      []model.NotificationSink
	Servers    []Server
}

// Server 按 ID 查找集群
func (t *Tenant) Server(id string) (*Server, bool) {
	for i := range t.Servers {
		if t.Servers[i].ID == id {
			return &t.Servers[i], true
		}
	}
	return nil, false
}

// DisplayName 名称为空时回退到 ID
func (t *Tenant) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

type configList struct {
	Tenants []Config `validate:"dive"`
}

// Build 校验并解析租户配置
func Build(cfgs []Config) ([]*Tenant, error) {
	if err := config.Validate(&configList{Tenants: cfgs}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTenant, err)
	}

	seen := make(map[string]struct{}, len(cfgs))
	out := make([]*Tenant, 0, len(cfgs))
	for i := range cfgs {
		c := &cfgs[i]
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tenant id %q", ErrInvalidTenant, c.ID)
		}
		seen[c.ID] = struct{}{}

		t, err := build(c)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func build(c *Config) (*Tenant, error) {
	th := c.Thresholds.WithDefaults()
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("%w: tenant %q: %v", ErrInvalidTenant, c.ID, err)
	}

	t := &Tenant{
		ID:         c.ID,
		Name:       c.Name,
		Thresholds: th,
		Sinks:      make([]model.NotificationSink, 0, len(c.Sinks)),
		Servers:    make([]Server, 0, len(c.Servers)),
	}

	sinkIDs := make(map[string]struct{}, len(c.Sinks))
	for _, s := range c.Sinks {
		if _, dup := sinkIDs[s.ID]; dup {
			return nil, fmt.Errorf("%w: tenant %q: duplicate sink id %q", ErrInvalidTenant, c.ID, s.ID)
		}
		sinkIDs[s.ID] = struct{}{}

		kind := model.SinkKind(s.Kind)
		if kind == "" {
			kind = model.SinkWebhook
		}
		t.Sinks = append(t.Sinks, model.NotificationSink{
			ID:      s.ID,
			Kind:    kind,
			URL:     s.URL,
			Secret:  s.Secret,
			Enabled: s.Enabled == nil || *s.Enabled,
			Version: s.Version,
		})
	}

	serverIDs := make(map[string]struct{}, len(c.Servers))
	for _, s := range c.Servers {
		if _, dup := serverIDs[s.ID]; dup {
			return nil, fmt.Errorf("%w: tenant %q: duplicate server id %q", ErrInvalidTenant, c.ID, s.ID)
		}
		serverIDs[s.ID] = struct{}{}

		t.Servers = append(t.Servers, Server{
			ID:   s.ID,
			Name: s.Name,
			Target: source.Target{
				ID:       s.ID,
				URL:      s.URL,
				Username: s.Username,
				Password: s.Password,
			},
		})
	}
	return t, nil
}
