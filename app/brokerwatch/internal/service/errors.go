package service

import "errors"

var (
	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = errors.New("service: invalid config")
	// ErrCycleSkipped 其他副本持有周期锁
	ErrCycleSkipped = errors.New("service: cycle skipped, lock held elsewhere")
	// ErrCycleRunning 该集群上一个周期仍在执行
	ErrCycleRunning = errors.New("service: cycle already running")
	// ErrPollerBusy 工作池已满
	ErrPollerBusy = errors.New("service: poller is busy")
	// ErrPollerStopped 轮询器未运行
	ErrPollerStopped = errors.New("service: poller is not running")
)
