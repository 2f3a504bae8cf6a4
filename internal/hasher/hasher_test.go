package hasher

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHash_SameContentSameDigestAcrossChunkSizes(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 3*LargeChunkSize+123)
	for i := range data {
		data[i] = byte(i * 31)
	}
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, data)
	writeFile(t, b, data)

	sum := md5.Sum(data)
	want := hex.EncodeToString(sum[:])

	for _, chunk := range []int{0, 1, 7, 4096, LargeChunkSize, 5 * LargeChunkSize} {
		got, err := Hash(a, chunk)
		if err != nil {
			t.Fatalf("chunk=%d 不期望错误：%v", chunk, err)
		}
		if got != want {
			t.Fatalf("chunk=%d 摘要不一致：got=%s want=%s", chunk, got, want)
		}
	}

	// 大文件路径（阈值调小）必须与流式路径一致。
	large, err := hashFile(b, 4096, 1)
	if err != nil {
		t.Fatalf("大文件路径不期望错误：%v", err)
	}
	small, err := hashFile(b, 4096, int64(len(data))+1)
	if err != nil {
		t.Fatalf("流式路径不期望错误：%v", err)
	}
	if large != small || large != want {
		t.Fatalf("两条路径摘要不一致：large=%s small=%s want=%s", large, small, want)
	}
}

func TestHash_EmptyFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.txt")
	writeFile(t, p, nil)

	got, err := hashFile(p, 0, 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Fatalf("空文件摘要不正确：%s", got)
	}
}

func TestHash_NotFound(t *testing.T) {
	_, err := Hash(filepath.Join(t.TempDir(), "missing.txt"), 0)
	if !IsNotFound(err) {
		t.Fatalf("期望 NotFoundError，实际：%T %v", err, err)
	}
}

func TestHash_DirectoryIsIOError(t *testing.T) {
	_, err := Hash(t.TempDir(), 0)
	var ioe *IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("期望 IOError，实际：%T %v", err, err)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
