package dao

import "errors"

var (
	// ErrStatusNotFound 状态缓存中没有该集群
	ErrStatusNotFound = errors.New("dao: server status not found")
)
