// Package hasher 计算单个文件的内容摘要（MD5，仅用于内容一致性判断，不涉及安全）。
package hasher

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"syscall"
)

const (
	// DefaultChunkSize 是普通文件流式读取的默认块大小。
	DefaultChunkSize = 1 << 20
	// LargeFileThreshold 及以上的文件改走“显式按偏移读取”的路径，避免无界缓冲。
	LargeFileThreshold int64 = 100 << 20
	// LargeChunkSize 是大文件路径的固定块大小。
	LargeChunkSize = 1 << 20
)

// IOError 表示文件无法打开/读取。
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %q 失败：%v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NotFoundError 表示文件在打开前或读取过程中消失。
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("文件不存在：%q：%v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsNotFound 判断 err 是否为 NotFoundError。
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// Hash 计算 path 的十六进制摘要。chunkSize<=0 时使用 DefaultChunkSize。
//
// 两条读取路径（大文件按偏移读取 / 普通文件流式读取）对同样的字节必须得到同样的摘要。
func Hash(path string, chunkSize int) (string, error) {
	return hashFile(path, chunkSize, LargeFileThreshold)
}

func hashFile(path string, chunkSize int, threshold int64) (digest string, err error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return "", classify(path, "打开", err)
	}
	// 任何退出路径（包括读取中途出错）都必须关闭句柄。
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			digest, err = "", classify(path, "关闭", cerr)
		}
	}()

	fi, err := f.Stat()
	if err != nil {
		return "", classify(path, "stat", err)
	}

	h := md5.New()
	if fi.Size() >= threshold {
		err = readAtChunks(h, f, fi.Size())
	} else {
		_, err = io.CopyBuffer(onlyWriter{h}, onlyReader{f}, make([]byte, chunkSize))
	}
	if err != nil {
		return "", classify(path, "读取", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// readAtChunks 以固定块大小、递增偏移读取 size 字节。
// 文件在读取中被截断时返回 io.ErrUnexpectedEOF。
func readAtChunks(h hash.Hash, r io.ReaderAt, size int64) error {
	buf := make([]byte, LargeChunkSize)
	var off int64
	for off < size {
		n, err := r.ReadAt(buf, off)
		if n > 0 {
			h.Write(buf[:n])
			off += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if off < size {
					return io.ErrUnexpectedEOF
				}
				return nil
			}
			return err
		}
	}
	return nil
}

func classify(path, op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ESTALE) {
		return &NotFoundError{Path: path, Err: err}
	}
	return &IOError{Path: path, Op: op, Err: err}
}

// onlyWriter/onlyReader 屏蔽 ReaderFrom/WriterTo，保证 io.CopyBuffer 真正按 chunkSize 分块。
type onlyWriter struct{ w io.Writer }

func (o onlyWriter) Write(p []byte) (int, error) { return o.w.Write(p) }

type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }
