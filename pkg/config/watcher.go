package config

import (
	"sync"
)

// Watcher 配置监听器（用于热更新）
// 文件变化后重新解析为 T，解析失败时保留上一份配置。
type Watcher[T any] struct {
	mgr Manager
	key string

	mu        sync.RWMutex
	current   *T
	callbacks []func(*T)
	onError   func(error)
}

// NewWatcher 创建配置监听器（泛型版本）
// path: 配置文件路径
// key: 只解析该路径下的配置，为空时解析整个文件
func NewWatcher[T any](path, key string, opts ...Option) (*Watcher[T], error) {
	mgr := NewManager(opts...)
	if err := mgr.LoadFile(path); err != nil {
		return nil, err
	}

	w := &Watcher[T]{
		mgr:     mgr,
		key:     key,
		onError: func(error) {},
	}

	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current = cfg

	return w, nil
}

// Current 获取当前配置（线程安全）
func (w *Watcher[T]) Current() *T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange 注册配置变化回调
func (w *Watcher[T]) OnChange(callback func(*T)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// OnError 注册重新加载失败回调
func (w *Watcher[T]) OnError(callback func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = callback
}

// Start 开始监听文件变化
func (w *Watcher[T]) Start() error {
	return w.mgr.Watch(w.reload)
}

func (w *Watcher[T]) reload() {
	cfg, err := w.load()

	w.mu.Lock()
	if err != nil {
		onError := w.onError
		w.mu.Unlock()
		onError(err)
		return
	}
	w.current = cfg
	callbacks := append([]func(*T){}, w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (w *Watcher[T]) load() (*T, error) {
	var cfg T
	var err error
	if w.key == "" {
		err = w.mgr.Unmarshal(&cfg)
	} else {
		err = w.mgr.UnmarshalKey(w.key, &cfg)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
