package source

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("source: invalid config")

	// ErrInvalidTarget 目标缺少 ID 或 URL
	ErrInvalidTarget = errors.New("source: invalid target")

	// ErrSourceUnreachable 所有端点均不可达
	ErrSourceUnreachable = errors.New("source: broker management api unreachable")

	// ErrPermissionDenied 端点返回 401/403
	ErrPermissionDenied = errors.New("source: permission denied")
)

// EndpointError 单个端点请求失败
type EndpointError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *EndpointError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source: %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source: %s: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}
