package tracker

import "errors"

var (
	// ErrInvalidKey tenant 或 server 为空
	ErrInvalidKey = errors.New("tracker: tenant and server are required")

	// ErrLoadFailed 加载打开记录失败
	ErrLoadFailed = errors.New("tracker: load open records failed")

	// ErrCommitFailed 提交变更集失败
	ErrCommitFailed = errors.New("tracker: store commit failed")

	// ErrOpenConflict 同一指纹已存在打开记录
	ErrOpenConflict = errors.New("tracker: fingerprint already open")

	// ErrRecordNotOpen 待更新或解决的记录不是打开状态
	ErrRecordNotOpen = errors.New("tracker: record is not open")
)
