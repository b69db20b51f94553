package evaluator

import "errors"

var (
	// ErrInvalidThresholds 阈值配置非法
	ErrInvalidThresholds = errors.New("evaluator: invalid thresholds")
)
