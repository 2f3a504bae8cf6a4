package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/txtdedup/internal/domain"
)

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()

	write := func(rel, content string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("创建目录失败：%v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("写入文件失败：%v", err)
		}
	}
	write("story.txt", "same content")
	write("backup/story.txt", "same content")
	write("series/검의 노래 1권.txt", "vol 1")
	write("series/검의 노래 2권.txt", "vol 2")

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/txtdedup", "run", root)
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if !rr.DryRun {
		t.Fatalf("默认应为 dry-run")
	}
	if rr.Summary.DuplicateGroups != 1 || rr.Summary.SeriesGroups != 1 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "执行:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "完成：files=4") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	// dry-run 不得落盘。
	if _, err := os.Stat(filepath.Join(root, "duplicates")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建归档目录：err=%v", err)
	}
}
