// Package lock 提供扫描根目录上的运行锁：同一目录同一时间只允许一个 apply 运行移动文件。
package lock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/John-Robertt/txtdedup/internal/infra/fsx"
)

// FileName 是锁文件名（位于 <root>/.txtdedup/ 下）。
const FileName = "run.lock"

// ErrBusy 表示另一个进程正持有该目录的运行锁。
var ErrBusy = errors.New("另一个 txtdedup 正在处理该目录")

// RunLock 是已获取的运行锁。
type RunLock struct {
	path string
	fl   *flock.Flock
}

// Acquire 在 stateDir 下创建并非阻塞地获取锁文件。已被占用时返回包装了 ErrBusy 的错误。
func Acquire(stateDir string) (*RunLock, error) {
	if err := fsx.EnsureDir(stateDir); err != nil {
		return nil, err
	}
	path := filepath.Join(stateDir, FileName)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取运行锁 %q 失败：%w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w：%s", ErrBusy, path)
	}
	return &RunLock{path: path, fl: fl}, nil
}

// Path 返回锁文件路径。
func (l *RunLock) Path() string { return l.path }

// Release 释放锁。锁文件本身保留（删除会与其他进程的 TryLock 产生竞态）。
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
