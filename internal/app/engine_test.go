package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/John-Robertt/txtdedup/internal/domain"
	"github.com/John-Robertt/txtdedup/internal/hasher"
	"github.com/John-Robertt/txtdedup/internal/pool"
)

// fakeSubmitter 按路径返回预设结果，并记录每次提交。
type fakeSubmitter struct {
	mu      sync.Mutex
	digests map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeSubmitter) Submit(_ context.Context, path string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if err := f.errs[path]; err != nil {
		return "", err
	}
	if d, ok := f.digests[path]; ok {
		return d, nil
	}
	return "unique:" + path, nil
}

func (f *fakeSubmitter) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func tf(path string, size int64) domain.TextFile {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return domain.TextFile{AbsPath: path, RelPath: path, Base: base[:len(base)-len(ext)], Ext: ext, Size: size}
}

func TestGroupFiles_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "novel1.txt"), "same content")
	write(t, filepath.Join(dir, "novel2.txt"), "same content")
	write(t, filepath.Join(dir, "novel_series_1권.txt"), "volume one")
	write(t, filepath.Join(dir, "novel_series_2권.txt"), "volume two")

	p := pool.New(pool.Options{Size: 2})
	defer p.Shutdown()
	e := &Engine{Pool: p}

	paths := []string{
		filepath.Join(dir, "novel_series_2권.txt"),
		filepath.Join(dir, "novel1.txt"),
		filepath.Join(dir, "novel_series_1권.txt"),
		filepath.Join(dir, "novel2.txt"),
	}
	got, err := e.GroupFiles(context.Background(), paths, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("期望 1 个重复组，实际 %d：%v", len(got), got)
	}
	members := got["group-1"]
	want := []string{filepath.Join(dir, "novel1.txt"), filepath.Join(dir, "novel2.txt")}
	if len(members) != 2 || members[0] != want[0] || members[1] != want[1] {
		t.Fatalf("重复组成员不正确：%v", members)
	}
}

func TestDetect_ConfirmedSeriesNeverHashed(t *testing.T) {
	files := []domain.TextFile{
		tf("/lib/시리즈 1권.txt", 10),
		tf("/lib/시리즈 2권.txt", 10),
		tf("/lib/시리즈 3권.txt", 10),
		tf("/lib/other.txt", 10),
	}
	// 即使系列各卷内容完全相同，也不能出现在重复组里。
	fs := &fakeSubmitter{digests: map[string]string{
		"/lib/시리즈 1권.txt": "h",
		"/lib/시리즈 2권.txt": "h",
		"/lib/시리즈 3권.txt": "h",
	}}
	e := &Engine{Pool: fs}

	det, err := e.Detect(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(det.Series) != 1 || len(det.Series[0].Members) != 3 || !det.Series[0].Confirmed {
		t.Fatalf("期望确认 1 个 3 卷系列，实际 %+v", det.Series)
	}
	if calls := fs.submitted(); len(calls) != 1 || calls[0] != "/lib/other.txt" {
		t.Fatalf("系列成员不应被哈希：%v", calls)
	}
	if len(det.Duplicates) != 0 {
		t.Fatalf("不期望重复组：%v", det.Duplicates)
	}
	if _, ok := det.Excluded()["/lib/시리즈 2권.txt"]; !ok {
		t.Fatalf("Excluded 应包含系列成员")
	}
}

func TestDetect_RejectedSeriesFallsBackToHashing(t *testing.T) {
	// 卷号缺失（1,2,4）：系列不成立，全部文件走哈希路径。
	files := []domain.TextFile{
		tf("/lib/시리즈 1권.txt", 1),
		tf("/lib/시리즈 2권.txt", 1),
		tf("/lib/시리즈 4권.txt", 1),
		tf("/backup/시리즈 4권.txt", 1),
	}
	fs := &fakeSubmitter{digests: map[string]string{
		"/lib/시리즈 4권.txt":    "dup",
		"/backup/시리즈 4권.txt": "dup",
	}}
	det, err := (&Engine{Pool: fs}).Detect(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(det.Series) != 0 {
		t.Fatalf("不期望确认系列：%v", det.Series)
	}
	if len(fs.submitted()) != 4 {
		t.Fatalf("期望 4 个文件都被哈希，实际 %v", fs.submitted())
	}
	if len(det.Duplicates) != 1 {
		t.Fatalf("期望 1 个重复组，实际 %v", det.Duplicates)
	}
	g := det.Duplicates[0]
	if g.Key != "group-1" || g.Hash != "dup" || g.Members[0] != "/backup/시리즈 4권.txt" {
		t.Fatalf("重复组不正确：%+v", g)
	}
}

func TestDetect_PerFileFailuresDoNotAbort(t *testing.T) {
	files := []domain.TextFile{
		tf("/d/a.txt", 1),
		tf("/d/b.txt", 1),
		tf("/d/gone.txt", 1),
		tf("/d/crash.txt", 1),
		tf("/d/unreadable.txt", 1),
	}
	fs := &fakeSubmitter{
		digests: map[string]string{"/d/a.txt": "x", "/d/b.txt": "x"},
		errs: map[string]error{
			"/d/gone.txt":       &pool.HashError{Path: "/d/gone.txt", Err: &hasher.NotFoundError{Path: "/d/gone.txt", Err: os.ErrNotExist}},
			"/d/crash.txt":      &pool.WorkerCrashError{Slot: 0, Path: "/d/crash.txt", Value: "boom"},
			"/d/unreadable.txt": &pool.HashError{Path: "/d/unreadable.txt", Err: &hasher.IOError{Path: "/d/unreadable.txt", Op: "读取", Err: os.ErrPermission}},
		},
	}
	det, err := (&Engine{Pool: fs}).Detect(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("单文件失败不应中止检测：%v", err)
	}
	if len(det.Duplicates) != 1 {
		t.Fatalf("期望 1 个重复组，实际 %v", det.Duplicates)
	}
	codes := map[string]string{}
	for _, fe := range det.Failed {
		codes[fe.Path] = fe.Code
	}
	if codes["/d/gone.txt"] != domain.ErrCodeNotFound ||
		codes["/d/crash.txt"] != domain.ErrCodeWorkerCrash ||
		codes["/d/unreadable.txt"] != domain.ErrCodeIOFailed {
		t.Fatalf("失败分类不正确：%v", codes)
	}
}

func TestDetect_NoWorkersIsFatal(t *testing.T) {
	fs := &fakeSubmitter{errs: map[string]error{"/d/a.txt": pool.ErrNoWorkers}}
	_, err := (&Engine{Pool: fs}).Detect(context.Background(), []domain.TextFile{tf("/d/a.txt", 1)}, nil)
	if !errors.Is(err, pool.ErrNoWorkers) {
		t.Fatalf("期望 ErrNoWorkers，实际 %v", err)
	}
}

func TestDetect_TooLargeSkipped(t *testing.T) {
	files := []domain.TextFile{tf("/d/big.txt", 100), tf("/d/small.txt", 10)}
	fs := &fakeSubmitter{}
	det, err := (&Engine{Pool: fs, MaxFileSize: 50}).Detect(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(det.Skipped) != 1 || det.Skipped[0].Code != domain.ErrCodeTooLarge || det.Skipped[0].Path != "/d/big.txt" {
		t.Fatalf("期望 big.txt 被跳过，实际 %v", det.Skipped)
	}
	if calls := fs.submitted(); len(calls) != 1 || calls[0] != "/d/small.txt" {
		t.Fatalf("超限文件不应被哈希：%v", calls)
	}
}

func TestDetect_DuplicatePathHashedOnce(t *testing.T) {
	files := []domain.TextFile{tf("/d/a.txt", 1), tf("/d/a.txt", 1)}
	fs := &fakeSubmitter{digests: map[string]string{"/d/a.txt": "x"}}
	det, err := (&Engine{Pool: fs}).Detect(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(fs.submitted()) != 1 {
		t.Fatalf("同一路径只应哈希一次：%v", fs.submitted())
	}
	if len(det.Duplicates) != 0 || len(det.Files) != 1 {
		t.Fatalf("同一路径不应自成重复组：%+v", det)
	}
}

func TestDetect_NameAlike(t *testing.T) {
	files := []domain.TextFile{
		tf("/d/[작가] 소설 (완결).txt", 1),
		tf("/e/소설_완.txt", 1),
		tf("/f/소설.txt", 1),
	}
	fs := &fakeSubmitter{digests: map[string]string{
		"/d/[작가] 소설 (완결).txt": "a",
		"/e/소설_완.txt":          "b",
		"/f/소설.txt":            "b",
	}}
	det, err := (&Engine{Pool: fs}).Detect(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(det.NameAlike) != 1 || det.NameAlike[0].NormalizedName != "소설" || len(det.NameAlike[0].Members) != 3 {
		t.Fatalf("NameAlike 不正确：%+v", det.NameAlike)
	}
	if len(det.Duplicates) != 1 {
		t.Fatalf("期望 1 个重复组，实际 %v", det.Duplicates)
	}
}

func TestDetect_ProgressPhasesInOrder(t *testing.T) {
	files := []domain.TextFile{
		tf("/d/시리즈 1권.txt", 1),
		tf("/d/시리즈 2권.txt", 1),
		tf("/d/a.txt", 1),
		tf("/d/b.txt", 1),
	}
	order := map[string]int{
		domain.PhaseExtract:  0,
		domain.PhaseValidate: 1,
		domain.PhaseHash:     2,
		domain.PhaseGroup:    3,
		domain.PhaseDone:     4,
	}
	var mu sync.Mutex
	var events []domain.Progress
	onProgress := func(p domain.Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}
	if _, err := (&Engine{Pool: &fakeSubmitter{}}).Detect(context.Background(), files, onProgress); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	last := -1
	hashed := 0
	for _, ev := range events {
		o, ok := order[ev.Status]
		if !ok {
			t.Fatalf("未知阶段：%+v", ev)
		}
		if o < last {
			t.Fatalf("阶段顺序倒退：%+v", events)
		}
		last = o
		if ev.Status == domain.PhaseHash {
			hashed++
			if ev.Total != 2 || ev.Current != hashed {
				t.Fatalf("hashing 计数不正确：%+v", ev)
			}
		}
	}
	if hashed != 2 {
		t.Fatalf("期望 2 个 hashing 事件，实际 %d", hashed)
	}
	if events[len(events)-1].Status != domain.PhaseDone {
		t.Fatalf("最后一个事件应为 done：%+v", events[len(events)-1])
	}
}

func TestDetect_RealPoolSurvivesOneCrash(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt", "f.txt"} {
		p := filepath.Join(dir, name)
		write(t, p, "same")
		paths = append(paths, p)
	}

	var crashed atomic.Bool
	p := pool.New(pool.Options{
		Size: 2,
		Factory: func(int) (pool.Executor, error) {
			return pool.ExecutorFunc(func(path string, chunk int) (string, error) {
				if filepath.Base(path) == "c.txt" && crashed.CompareAndSwap(false, true) {
					panic("boom")
				}
				return hasher.Hash(path, chunk)
			}), nil
		},
	})
	defer p.Shutdown()

	var files []domain.TextFile
	for _, path := range paths {
		files = append(files, tf(path, 4))
	}
	det, err := (&Engine{Pool: p}).Detect(context.Background(), files, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(det.Failed) != 1 || det.Failed[0].Code != domain.ErrCodeWorkerCrash {
		t.Fatalf("期望 1 个 worker_crash，实际 %v", det.Failed)
	}
	if len(det.Duplicates) != 1 || len(det.Duplicates[0].Members) != 5 {
		t.Fatalf("其余 5 个文件应组成重复组：%v", det.Duplicates)
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
