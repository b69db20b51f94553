package tenant

import "errors"

var (
	// ErrInvalidTenant 租户配置非法
	ErrInvalidTenant = errors.New("tenant: invalid configuration")
	// ErrTenantNotFound 租户不存在
	ErrTenantNotFound = errors.New("tenant: not found")
	// ErrServerNotFound 服务器不存在
	ErrServerNotFound = errors.New("tenant: server not found")
)
