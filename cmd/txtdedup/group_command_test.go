package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestGroupCommand_PrintsDuplicateGroupsJSON(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.txt":         "same",
		"b.txt":         "same",
		"c.txt":         "other",
		"용사 1권.txt": "vol 1",
		"용사 2권.txt": "vol 2",
	}
	var args []string
	args = append(args, "group", "--workers", "2")
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("写入文件失败：%v", err)
		}
		args = append(args, p)
	}
	args = append(args, filepath.Join(dir, "missing.txt"))

	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	if err := root.Execute(); err != nil {
		t.Fatalf("group 执行失败：%v\nstderr=%s", err, stderr.String())
	}

	var out groupOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v\n%s", err, stdout.String())
	}
	if len(out.Keys) != 1 || out.Keys[0] != "group-1" {
		t.Fatalf("keys=%v，期望 [group-1]", out.Keys)
	}
	got := out.Groups["group-1"]
	want := []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("group-1=%v，期望 %v", got, want)
	}
}

func TestGroupCommand_RequiresFiles(t *testing.T) {
	if code := execute([]string{"group"}); code != 2 {
		t.Fatalf("缺少文件参数应返回 2，实际 %d", code)
	}
}
