package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/John-Robertt/txtdedup/internal/app/run"
	"github.com/John-Robertt/txtdedup/internal/config"
	"github.com/John-Robertt/txtdedup/internal/domain"
	"github.com/John-Robertt/txtdedup/internal/scan"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 哈希阶段用进度条；其余阶段只在进入时打印一行
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time
	lastPhase string

	bar      *progressbar.ProgressBar
	barTotal int

	moved int
	fail  int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (只规划，不移动)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] txtdedup run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  keep: %s\n", eff.Keep)
	fmt.Fprintf(p.w, "  workers: %d\n", eff.Workers)
	fmt.Fprintf(p.w, "  chunk_size: %s\n", formatSize(int64(eff.ChunkSize)))
	fmt.Fprintf(p.w, "  max_file_size: %s\n", formatSize(eff.MaxFileSize))
	fmt.Fprintf(p.w, "  extensions: %s\n", formatStringListJSON(eff.Extensions))
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 %s/, %s/\n", formatStringListJSON(eff.ExcludeDirs), eff.DuplicatesDir, scan.StateDir)
	fmt.Fprintf(p.w, "  sniff_text: %s\n", onOff(eff.SniffText))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  duplicates: %s\n", filepath.Join(eff.Path, eff.DuplicatesDir))
	if eff.Apply {
		fmt.Fprintf(p.w, "  report: %s\n", filepath.Join(eff.Path, scan.StateDir, run.ReportName))
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnProgress(ev domain.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Status == domain.PhaseHash {
		p.updateBarLocked(ev)
		return
	}
	if ev.Status == p.lastPhase || ev.Status == domain.PhaseDone {
		return
	}
	p.finishBarLocked()
	p.lastPhase = ev.Status
	if label := phaseLabel(ev.Status); label != "" {
		fmt.Fprintf(p.w, "%s...\n", label)
	}
}

func (p *progressUI) updateBarLocked(ev domain.Progress) {
	if ev.Total <= 0 {
		return
	}
	if p.bar == nil || p.barTotal != ev.Total {
		p.finishBarLocked()
		p.lastPhase = ev.Status
		p.barTotal = ev.Total
		p.bar = progressbar.NewOptions(ev.Total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription("哈希"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(ev.Current)
	if ev.Current >= ev.Total {
		p.finishBarLocked()
	}
}

func (p *progressUI) finishBarLocked() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
	p.barTotal = 0
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishBarLocked()

	switch name {
	case run.PhaseScan:
		fmt.Fprintf(p.w, "扫描: files=%d problems=%d (%s)\n",
			intField(fields, "files"), intField(fields, "problems"), formatShortDuration(dur),
		)
	case run.PhaseDetect:
		fmt.Fprintf(p.w, "检测: series=%d duplicates=%d name_alike=%d skipped=%d failed=%d (%s)\n",
			intField(fields, "series"),
			intField(fields, "duplicates"),
			intField(fields, "name_alike"),
			intField(fields, "skipped"),
			intField(fields, "failed"),
			formatShortDuration(dur),
		)
	case run.PhasePlan:
		fmt.Fprintf(p.w, "规划: groups=%d moves=%d (%s)\n\n",
			intField(fields, "groups"), intField(fields, "moves"), formatShortDuration(dur),
		)
	case run.PhaseExec:
		fmt.Fprintf(p.w, "执行: groups=%d moved=%d failed=%d elapsed=%s\n",
			intField(fields, "groups"), p.moved, p.fail, formatElapsed(time.Since(p.startedAt)),
		)
	default:
		// 兜底：未知阶段也不要静默。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnGroupDone(idx, total int, res domain.GroupResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	moves := 0
	for _, f := range res.Files {
		switch f.Status {
		case domain.FileStatusMoved:
			p.moved++
			moves++
		case domain.FileStatusPlanned:
			moves++
		case domain.FileStatusFailed:
			p.fail++
		}
	}

	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, res.Key, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusPlanned:
		fmt.Fprintf(p.w, "[%d/%d] %s PLAN keep=%s move=%d (%s)\n",
			idx, total, res.Key, truncate(res.Keep, 80), moves, formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s OK keep=%s move=%d (%s)\n",
			idx, total, res.Key, truncate(res.Keep, 80), moves, formatShortDuration(dur),
		)
	}
}

func phaseLabel(status string) string {
	switch status {
	case domain.PhaseDiscover:
		return "发现文件"
	case domain.PhaseStat:
		return "读取文件信息"
	case domain.PhaseExtract:
		return "解析文件名"
	case domain.PhaseValidate:
		return "校验系列"
	case domain.PhaseGroup:
		return "分组"
	default:
		return ""
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// truncate 按字符截断（文件名多为中日韩文字，按字节截会切坏 UTF-8）。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
