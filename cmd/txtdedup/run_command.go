package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/txtdedup/internal/app/run"
	"github.com/John-Robertt/txtdedup/internal/config"
	"github.com/John-Robertt/txtdedup/internal/domain"
	"github.com/John-Robertt/txtdedup/internal/logging"
	"github.com/John-Robertt/txtdedup/internal/scan"
)

type runFlags struct {
	apply    bool
	keep     string
	workers  int
	logLevel string
}

func newRunCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "扫描目录并归档重复文件（默认 dry-run）",
		Long: `扫描 path（未指定则读取当前目录下的 txtdedup.toml）中的文本文件：
分卷系列（例如 "xx 1권.txt"、"xx 2권.txt"）不会被当成重复；
内容相同的文件每组保留一个，其余在 --apply 时移入归档目录。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{
				Apply:       f.apply,
				ApplySet:    cmd.Flags().Changed("apply"),
				Keep:        f.keep,
				KeepSet:     cmd.Flags().Changed("keep"),
				Workers:     f.workers,
				WorkersSet:  cmd.Flags().Changed("workers"),
				LogLevel:    f.logLevel,
				LogLevelSet: cmd.Flags().Changed("log-level"),
			}
			if len(args) == 1 {
				cli.Path = args[0]
			}
			return runRun(cmd, cli)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.apply, "apply", false, "执行移动并写入报告（默认 dry-run）；支持 --apply=false 覆盖配置")
	flags.StringVar(&f.keep, "keep", "", "保留策略："+strings.Join(domain.KeepPolicies, "|")+"（默认 first）")
	flags.IntVar(&f.workers, "workers", 0, fmt.Sprintf("哈希 worker 数（默认 CPU 数 - 1，上限 %d）", config.MaxWorkers))
	flags.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error（默认 info）")

	return cmd
}

func runRun(cmd *cobra.Command, cli config.CLIArgs) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	stdoutTTY := isTTY(os.Stdout)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return exitError{code: 1}
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(stdout, stderr, stdoutTTY, reportForConfigError(cwdAbs, cli, err))
		return exitError{code: 1}
	}

	log, err := logging.New(logging.Options{Level: eff.LogLevel, Format: eff.LogFormat, Writer: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "初始化日志失败：%v\n", err)
		return exitError{code: 1}
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(cmd.Context(), eff, log, obs)

	emitReport(stdout, stderr, stdoutTTY, rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 {
		return nil
	}
	return exitError{code: 1}
}

// emitReport 按 stdout 是否为终端选择输出形态：
// 终端打印摘要 + 表格；否则 stdout 只输出一个 RunReport JSON（摘要走 stderr）。
func emitReport(stdout, stderr io.Writer, tty bool, rr domain.RunReport) {
	if tty {
		fmt.Fprintln(stdout, summaryLine(rr))
		if len(rr.Groups) > 0 {
			fmt.Fprintln(stdout, renderGroups(rr.Groups))
		}
		if len(rr.Series) > 0 {
			fmt.Fprintln(stdout, renderSeries(rr.Series))
		}
		for _, na := range rr.NameAlike {
			fmt.Fprintf(stdout, "名称相近（内容不同，未处理）：%s\n", strings.Join(na.Members, ", "))
		}
		for _, fe := range rr.Errors {
			fmt.Fprintf(stderr, "%s %s: %s\n", fe.Path, fe.Code, fe.Msg)
		}
		for _, g := range rr.Groups {
			if g.Status == domain.StatusFailed {
				fmt.Fprintf(stderr, "%s %s: %s\n", g.Key, g.ErrorCode, g.ErrorMsg)
			}
		}
		return
	}

	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	return fmt.Sprintf("完成：files=%d series=%d duplicates=%d planned=%d moved=%d skipped=%d failed=%d",
		s.Files, s.SeriesGroups, s.DuplicateGroups, s.Planned, s.Moved, s.Skipped, s.Failed,
	)
}

func reportForConfigError(cwdAbs string, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	path := cwdAbs
	if strings.TrimSpace(cli.Path) != "" {
		if abs, e := filepath.Abs(cli.Path); e == nil {
			path = abs
		}
	}
	rr := domain.RunReport{
		Path:       path,
		DryRun:     !(cli.ApplySet && cli.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Errors: []domain.FileError{{
			Path: path,
			Code: config.Code(err),
			Msg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Path, scan.StateDir, run.ReportName))
	}
	fmt.Fprintf(w, "duplicates: %s\n", filepath.Join(eff.Path, eff.DuplicatesDir))
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
