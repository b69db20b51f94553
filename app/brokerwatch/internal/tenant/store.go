package tenant

import (
	"sort"
	"sync"

	"github.com/lk2023060901/brokerwatch/pkg/config"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
)

// ConfigKey 配置文件中租户列表所在的键
const ConfigKey = "tenants"

// Store 租户配置存储，支持热更新
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
	order   []string

	logger    logger.Logger
	listeners []func([]*Tenant)
}

// Option 存储选项
type Option func(*Store)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore 创建存储
func NewStore(cfgs []Config, opts ...Option) (*Store, error) {
	s := &Store{logger: logger.NewNoop()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Replace(cfgs); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace 整体替换租户列表，校验失败时保留原配置
func (s *Store) Replace(cfgs []Config) error {
	tenants, err := Build(cfgs)
	if err != nil {
		return err
	}

	byID := make(map[string]*Tenant, len(tenants))
	order := make([]string, 0, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
		order = append(order, t.ID)
	}
	sort.Strings(order)

	s.mu.Lock()
	s.tenants = byID
	s.order = order
	listeners := append([]func([]*Tenant){}, s.listeners...)
	s.mu.Unlock()

	if len(listeners) > 0 {
		list := s.List()
		for _, fn := range listeners {
			fn(list)
		}
	}
	return nil
}

// Get 获取租户
func (s *Store) Get(id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// Lookup 获取租户及其下的集群
func (s *Store) Lookup(tenantID, serverID string) (*Tenant, *Server, error) {
	t, err := s.Get(tenantID)
	if err != nil {
		return nil, nil, err
	}
	srv, ok := t.Server(serverID)
	if !ok {
		return nil, nil, ErrServerNotFound
	}
	return t, srv, nil
}

// List 按 ID 排序返回全部租户
func (s *Store) List() []*Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tenant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tenants[id])
	}
	return out
}

// OnChange 注册配置变化回调
func (s *Store) OnChange(fn func([]*Tenant)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Watch 以文件内容替换当前租户，并在 tenants 变化时重新加载
func (s *Store) Watch(path string, opts ...config.Option) error {
	w, err := config.NewWatcher[[]Config](path, ConfigKey, opts...)
	if err != nil {
		return err
	}
	if err := s.Replace(*w.Current()); err != nil {
		return err
	}
	w.OnChange(func(cfgs *[]Config) {
		if err := s.Replace(*cfgs); err != nil {
			s.logger.Error("tenant reload rejected", "path", path, "error", err)
			return
		}
		s.logger.Info("tenants reloaded", "path", path, "count", len(*cfgs))
	})
	w.OnError(func(err error) {
		s.logger.Error("tenant reload failed", "path", path, "error", err)
	})
	return w.Start()
}
