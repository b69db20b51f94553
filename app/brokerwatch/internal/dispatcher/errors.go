package dispatcher

import "errors"

var (
	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("dispatcher: invalid config")

	// ErrUnsupportedVersion 不支持的负载版本
	ErrUnsupportedVersion = errors.New("dispatcher: unsupported payload version")

	// ErrUnsupportedKind 不支持的 sink 类型
	ErrUnsupportedKind = errors.New("dispatcher: unsupported sink kind")

	// ErrDispatcherClosed 已关闭
	ErrDispatcherClosed = errors.New("dispatcher: closed")
)
