// Package run 执行一次完整运行：扫描 → 检测 → 规划 → 执行（dry-run 只规划不移动）。
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/txtdedup/internal/app"
	"github.com/John-Robertt/txtdedup/internal/app/planner"
	"github.com/John-Robertt/txtdedup/internal/config"
	"github.com/John-Robertt/txtdedup/internal/domain"
	"github.com/John-Robertt/txtdedup/internal/infra/fsx"
	"github.com/John-Robertt/txtdedup/internal/infra/lock"
	"github.com/John-Robertt/txtdedup/internal/pool"
	"github.com/John-Robertt/txtdedup/internal/scan"
)

// ReportName 是 apply 模式写入 <root>/.txtdedup/ 的报告文件名。
const ReportName = "report.json"

// moveRetries 是归档目标被并发占用时的换名重试次数。
const moveRetries = 3

type hashPool interface {
	app.Submitter
	Shutdown()
}

// 可替换的构造函数，让测试能注入会崩溃/失败的 worker。
var newPool = func(opts pool.Options) hashPool {
	return pool.New(opts)
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为文件/分组级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, log *slog.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, log *slog.Logger, obs Observer) domain.RunReport {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Path:      eff.Path,
		DryRun:    !eff.Apply,
		Keep:      eff.Keep,
		StartedAt: started,
		Groups:    make([]domain.GroupResult, 0, 16),
	}
	log = log.With("run_id", rr.RunID)
	if eff.DuplicatesDir == "" {
		eff.DuplicatesDir = config.DefaultDuplicatesDir
	}
	stateDir := filepath.Join(eff.Path, scan.StateDir)

	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	fail := func(code, msg string) domain.RunReport {
		log.Error(msg)
		rr.Errors = append(rr.Errors, domain.FileError{Path: eff.Path, Code: code, Msg: msg})
		return finish()
	}

	// apply 会移动文件：同一目录同时只允许一个运行。
	if eff.Apply {
		l, err := lock.Acquire(stateDir)
		if err != nil {
			return fail(domain.ErrCodeIOFailed, fmt.Sprintf("获取运行锁失败：%v", err))
		}
		defer func() {
			if err := l.Release(); err != nil {
				log.Warn("释放运行锁失败", "error", err)
			}
		}()
	}

	// 扫描。
	scanStarted := time.Now()
	files, problems, err := scan.FindCandidateFiles(eff.Path, scan.Options{
		Extensions:    eff.Extensions,
		ExcludeDirs:   eff.ExcludeDirs,
		DuplicatesDir: eff.DuplicatesDir,
		SniffText:     eff.SniffText,
	}, progressFunc(obs))
	if err != nil {
		return fail(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err))
	}
	rr.Summary.Files = len(files)
	for _, p := range problems {
		p.Path = relOf(eff.Path, p.Path)
		if p.Code == domain.ErrCodeNotText {
			rr.Skipped = append(rr.Skipped, p)
			continue
		}
		log.Warn("扫描时无法读取文件", "path", p.Path, "error", p.Msg)
		rr.Errors = append(rr.Errors, p)
	}
	if obs != nil {
		obs.OnPhaseDone(PhaseScan, map[string]any{
			"files":    len(files),
			"problems": len(problems),
		}, time.Since(scanStarted))
	}

	// 检测。
	detectStarted := time.Now()
	hp := newPool(pool.Options{Size: eff.Workers, Logger: log})
	defer hp.Shutdown()
	engine := &app.Engine{
		Pool:        hp,
		ChunkSize:   eff.ChunkSize,
		MaxFileSize: eff.MaxFileSize,
		Logger:      log,
	}
	det, err := engine.Detect(ctx, files, progressFunc(obs))
	if err != nil {
		code := domain.ErrCodeHashFailed
		if errors.Is(err, pool.ErrNoWorkers) {
			code = domain.ErrCodeWorkerCrash
		}
		return fail(code, fmt.Sprintf("检测失败：%v", err))
	}
	for _, s := range det.Series {
		rr.Series = append(rr.Series, domain.SeriesResult{Name: s.NormalizedSeriesName, Files: relAll(eff.Path, s.Members)})
	}
	for _, na := range det.NameAlike {
		rr.NameAlike = append(rr.NameAlike, domain.NameAlike{NormalizedName: na.NormalizedName, Members: relAll(eff.Path, na.Members)})
	}
	for _, fe := range det.Skipped {
		fe.Path = relOf(eff.Path, fe.Path)
		rr.Skipped = append(rr.Skipped, fe)
	}
	for _, fe := range det.Failed {
		fe.Path = relOf(eff.Path, fe.Path)
		rr.Errors = append(rr.Errors, fe)
	}
	if obs != nil {
		obs.OnPhaseDone(PhaseDetect, map[string]any{
			"series":     len(det.Series),
			"duplicates": len(det.Duplicates),
			"name_alike": len(det.NameAlike),
			"skipped":    len(det.Skipped),
			"failed":     len(det.Failed),
		}, time.Since(detectStarted))
	}

	// 规划。
	planStarted := time.Now()
	dupDir := filepath.Join(eff.Path, eff.DuplicatesDir)
	existing, err := planner.ReadExistingNames(dupDir)
	if err != nil {
		return fail(domain.ErrCodeIOFailed, fmt.Sprintf("读取归档目录失败：%v", err))
	}
	pl := planner.New(dupDir, eff.Keep, existing)

	byPath := make(map[string]domain.TextFile, len(det.Files))
	for _, f := range det.Files {
		byPath[f.AbsPath] = f
	}
	plans := make([]domain.GroupPlan, 0, len(det.Duplicates))
	moves := 0
	for _, g := range det.Duplicates {
		members := make([]domain.TextFile, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, byPath[m])
		}
		gp, err := pl.PlanGroup(g, members)
		if err != nil {
			rr.Groups = append(rr.Groups, failedGroup(eff.Path, g, byPath, domain.ErrCodeIOFailed, fmt.Sprintf("规划失败：%v", err)))
			continue
		}
		moves += len(gp.Moves)
		plans = append(plans, gp)
	}
	if obs != nil {
		obs.OnPhaseDone(PhasePlan, map[string]any{
			"groups": len(plans),
			"moves":  moves,
		}, time.Since(planStarted))
	}

	// 执行：分组串行（所有移动写入同一个归档目录，串行保证换名分配无竞态）。
	execStarted := time.Now()
	for i, gp := range plans {
		if err := ctx.Err(); err != nil {
			rr.Errors = append(rr.Errors, domain.FileError{Path: eff.Path, Code: domain.ErrCodeIOFailed, Msg: fmt.Sprintf("运行被取消：%v", err)})
			break
		}
		oneStarted := time.Now()
		res := execGroup(eff, gp, byPath, pl, log)
		rr.Groups = append(rr.Groups, res)
		if obs != nil {
			obs.OnGroupDone(i+1, len(plans), res, time.Since(oneStarted))
		}
	}
	if obs != nil {
		obs.OnPhaseDone(PhaseExec, map[string]any{
			"apply":  eff.Apply,
			"groups": len(plans),
		}, time.Since(execStarted))
	}

	out := finish()
	if eff.Apply {
		if err := writeReport(stateDir, out); err != nil {
			log.Error("写入报告失败", "error", err)
			rr.Errors = append(rr.Errors, domain.FileError{
				Path: relOf(eff.Path, filepath.Join(stateDir, ReportName)),
				Code: domain.ErrCodeIOFailed,
				Msg:  fmt.Sprintf("写入报告失败：%v", err),
			})
			out = finish()
		}
	}
	return out
}

func execGroup(eff config.EffectiveConfig, gp domain.GroupPlan, byPath map[string]domain.TextFile, pl *planner.Planner, log *slog.Logger) domain.GroupResult {
	res := domain.GroupResult{
		Key:    gp.Key,
		Hash:   gp.Hash,
		Keep:   relOf(eff.Path, gp.Keep),
		Status: domain.StatusPlanned,
		Files:  make([]domain.FileResult, 0, len(gp.Moves)+1),
	}
	res.Files = append(res.Files, domain.FileResult{
		Src:    res.Keep,
		Size:   byPath[gp.Keep].Size,
		Status: domain.FileStatusKeep,
	})
	for _, mv := range gp.Moves {
		res.Files = append(res.Files, domain.FileResult{
			Src:    relOf(eff.Path, mv.SrcAbs),
			Dst:    relOf(eff.Path, mv.DstAbs),
			Size:   byPath[mv.SrcAbs].Size,
			Status: domain.FileStatusPlanned,
		})
	}

	// dry-run：只规划，不触碰磁盘。
	if !eff.Apply {
		return res
	}

	res.Status = domain.StatusProcessed
	// 保留文件必须仍然存在，否则不移动任何副本。
	if _, err := os.Stat(gp.Keep); err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeNotFound
		res.ErrorMsg = fmt.Sprintf("保留文件不可用：%v", err)
		res.Files[0].Status = domain.FileStatusFailed
		for i := 1; i < len(res.Files); i++ {
			res.Files[i].Status = domain.FileStatusSkipped
		}
		return res
	}

	for i, mv := range gp.Moves {
		fr := &res.Files[i+1]
		dst, err := moveWithRetry(mv, pl)
		if err != nil {
			log.Warn("移动重复文件失败", "src", mv.SrcAbs, "dst", mv.DstAbs, "error", err)
			fr.Status = domain.FileStatusFailed
			res.Status = domain.StatusFailed
			if res.ErrorCode == "" {
				res.ErrorCode, res.ErrorMsg = moveErrorCode(err), err.Error()
			}
			continue
		}
		fr.Dst = relOf(eff.Path, dst)
		fr.Status = domain.FileStatusMoved
	}
	return res
}

// moveWithRetry 执行一次不覆盖移动；目标被占用时换名重试。
func moveWithRetry(mv domain.MovePlan, pl *planner.Planner) (string, error) {
	dst := mv.DstAbs
	for attempt := 0; ; attempt++ {
		err := fsx.MoveNoOverwrite(mv.SrcAbs, dst)
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, os.ErrExist) || attempt >= moveRetries {
			return "", err
		}
		dst = filepath.Join(filepath.Dir(dst), pl.Alloc(filepath.Base(mv.SrcAbs)))
	}
}

func moveErrorCode(err error) string {
	switch {
	case fsx.IsPathTypeConflict(err), errors.Is(err, os.ErrExist):
		return domain.ErrCodeTargetConflict
	case errors.Is(err, os.ErrNotExist):
		return domain.ErrCodeNotFound
	default:
		return domain.ErrCodeMoveFailed
	}
}

func failedGroup(root string, g domain.DuplicateGroup, byPath map[string]domain.TextFile, code, msg string) domain.GroupResult {
	out := domain.GroupResult{
		Key:       g.Key,
		Hash:      g.Hash,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Files:     make([]domain.FileResult, 0, len(g.Members)),
	}
	for _, m := range g.Members {
		out.Files = append(out.Files, domain.FileResult{Src: relOf(root, m), Size: byPath[m].Size, Status: domain.FileStatusFailed})
	}
	return out
}

func writeReport(stateDir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(stateDir, ReportName, append(b, '\n'))
}

// relOf 尽量输出相对 root 的路径；失败则输出原始路径（至少可追溯）。
func relOf(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return rel
	}
	return p
}

func relAll(root string, ps []string) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, relOf(root, p))
	}
	return out
}
