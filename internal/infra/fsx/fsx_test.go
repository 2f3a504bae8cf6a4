package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomic(dir, "a.txt", []byte("hello")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.txt.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomic(dir, "a.txt", []byte("hello"))
	if err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.txt.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
		if e.Name() == "a.txt" {
			t.Fatalf("不应写出最终文件：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_Replaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".txtdedup")

	if err := WriteFileAtomic(dir, "report.json", []byte("old")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomic(dir, "report.json", []byte("new")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil || string(b) != "new" {
		t.Fatalf("期望覆盖为 new，实际 %q（err=%v）", string(b), err)
	}
}

func TestMoveNoOverwrite_MovesAndCreatesParent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "novel2.txt")
	dst := filepath.Join(root, "duplicates", "novel2.txt")
	writeFile(t, src, "x")

	if err := MoveNoOverwrite(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("源文件应已移走：%v", err)
	}
	if b, err := os.ReadFile(dst); err != nil || string(b) != "x" {
		t.Fatalf("目标文件内容不正确：%q（err=%v）", string(b), err)
	}
}

func TestMoveNoOverwrite_ExistingTarget(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	dst := filepath.Join(root, "b.txt")
	writeFile(t, src, "src")
	writeFile(t, dst, "dst")

	err := MoveNoOverwrite(src, dst)
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "dst" {
		t.Fatalf("目标文件不应被覆盖：%q", string(b))
	}
}

func TestMoveNoOverwrite_TargetConflictDir(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	writeFile(t, src, "x")

	// 目标路径是目录：应返回 PathTypeConflictError，而不是 os.ErrExist。
	if err := os.Mkdir(filepath.Join(root, "b.txt"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := MoveNoOverwrite(src, filepath.Join(root, "b.txt"))
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "duplicates")
	writeFile(t, p, "not a dir")

	if err := EnsureDir(p); !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
