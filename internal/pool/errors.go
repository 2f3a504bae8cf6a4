package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed 表示 pool 已 Shutdown：排队中与执行中的任务都不会再得到结果。
	ErrPoolClosed = errors.New("pool: 已关闭")
	// ErrNoWorkers 表示一个 worker 都无法创建（对整次运行是致命错误）。
	ErrNoWorkers = errors.New("pool: 没有可用的 worker")
)

// HashError 是 worker 对某个任务报告的应用层失败。
type HashError struct {
	Path string
	Err  error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("计算哈希失败：%q：%v", e.Path, e.Err)
}

func (e *HashError) Unwrap() error { return e.Err }

// WorkerCrashError 表示 worker 在执行任务时异常终止（panic）。
// 该任务不会自动重试；槽位会被重建。
type WorkerCrashError struct {
	Slot  int
	Path  string
	Value any
}

func (e *WorkerCrashError) Error() string {
	return fmt.Sprintf("worker #%d 处理 %q 时崩溃：%v", e.Slot, e.Path, e.Value)
}

// IsCrash 判断 err 是否为 worker 崩溃。
func IsCrash(err error) bool {
	var e *WorkerCrashError
	return errors.As(err, &e)
}
