//go:build windows

package fsx

import (
	"errors"
	"syscall"
)

// errorNotSameDevice 是 ERROR_NOT_SAME_DEVICE：Windows 上跨卷 rename 的错误码。
const errorNotSameDevice = syscall.Errno(17)

func isEXDEV(err error) bool {
	return errors.Is(err, errorNotSameDevice)
}
