// Package app 编排一次检测：系列识别 → 系列确认 → 内容哈希分组。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/txtdedup/internal/classify"
	"github.com/John-Robertt/txtdedup/internal/domain"
	"github.com/John-Robertt/txtdedup/internal/hasher"
	"github.com/John-Robertt/txtdedup/internal/pool"
	"github.com/John-Robertt/txtdedup/internal/scan"
	"github.com/John-Robertt/txtdedup/internal/series"
)

// DefaultMaxFileSize 是参与哈希的文件大小上限；更大的文件仍会被扫描到，但记为 skipped。
const DefaultMaxFileSize int64 = 50 << 20

// defaultMaxPending 限制同时挂起的 Submit 数量（pool 自己限制真正的并发）。
const defaultMaxPending = 256

// Submitter 是引擎对哈希 worker pool 的最小依赖。
type Submitter interface {
	Submit(ctx context.Context, path string, chunkSize int) (string, error)
}

// Engine 是 GroupingEngine：先剥离已确认的系列，再对剩余文件做内容哈希分组。
type Engine struct {
	Pool Submitter
	// ChunkSize <= 0 时使用 hasher.DefaultChunkSize。
	ChunkSize int
	// MaxFileSize <= 0 表示不限制。
	MaxFileSize int64
	// MaxPending <= 0 时使用默认值。
	MaxPending int
	Logger     *slog.Logger
}

// Detection 是一次检测的完整结果。
type Detection struct {
	// Files 与输入一一对应（去重后），NormalizedName/Hash 已填充。
	Files      []domain.TextFile
	Series     []domain.SeriesGroup
	Duplicates []domain.DuplicateGroup
	NameAlike  []domain.NameAlike
	Skipped    []domain.FileError
	Failed     []domain.FileError
}

// Excluded 返回属于已确认系列的文件路径集合。
func (d Detection) Excluded() map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range d.Series {
		for _, m := range s.Members {
			out[m] = struct{}{}
		}
	}
	return out
}

// Detect 对 files 执行三阶段检测。
//
// 单个文件的失败（读不到、worker 崩溃等）只会让该文件退出本次检测并记入 Failed；
// 只有 pool 无法启动（pool.ErrNoWorkers）、pool 已关闭或 ctx 取消会让整次检测失败。
func (e *Engine) Detect(ctx context.Context, files []domain.TextFile, onProgress domain.ProgressFunc) (Detection, error) {
	if e.Pool == nil {
		return Detection{}, errors.New("检测引擎缺少 worker pool")
	}
	log := e.logger()

	files = dedupe(files)
	det := Detection{
		Files:      files,
		Series:     []domain.SeriesGroup{},
		Duplicates: []domain.DuplicateGroup{},
		NameAlike:  []domain.NameAlike{},
		Skipped:    []domain.FileError{},
		Failed:     []domain.FileError{},
	}

	// 阶段 1：系列名提取。
	names := make(map[int]string, len(files))
	for i := range files {
		f := &files[i]
		f.NormalizedName = classify.Normalize(f.Base)
		if vm, ok := classify.ExtractVolume(f.Base); ok {
			names[i] = vm.SeriesNameNormalized
		}
		onProgress.Emit(domain.PhaseExtract, i+1, len(files), f.RelPath)
	}

	// 阶段 2：系列确认。
	excluded := make([]bool, len(files))
	candidates := bucketSeries(files, names)
	for i, c := range candidates {
		onProgress.Emit(domain.PhaseValidate, i+1, len(candidates), c.name)
		if len(c.fileIdx) < 2 {
			continue
		}
		members := make([]string, 0, len(c.fileIdx))
		for _, idx := range c.fileIdx {
			members = append(members, files[idx].AbsPath)
		}
		if err := series.Check(members); err != nil {
			log.Debug("候选系列未通过校验", "series", c.name, "files", len(members), "reason", string(series.RejectReason(err)))
			continue
		}
		for _, idx := range c.fileIdx {
			excluded[idx] = true
		}
		det.Series = append(det.Series, domain.SeriesGroup{
			NormalizedSeriesName: c.name,
			Members:              members,
			Confirmed:            true,
		})
	}

	// 阶段 3：对剩余文件计算哈希。
	pending := make([]int, 0, len(files))
	for i := range files {
		if excluded[i] {
			continue
		}
		if e.MaxFileSize > 0 && files[i].Size > e.MaxFileSize {
			det.Skipped = append(det.Skipped, domain.FileError{
				Path: files[i].AbsPath,
				Code: domain.ErrCodeTooLarge,
				Msg:  fmt.Sprintf("文件大小 %d 超过上限 %d，不参与哈希", files[i].Size, e.MaxFileSize),
			})
			continue
		}
		pending = append(pending, i)
	}

	failed, err := e.hashAll(ctx, files, pending, onProgress)
	if err != nil {
		return Detection{}, err
	}
	det.Failed = failed

	onProgress.Emit(domain.PhaseGroup, 0, 1, "")
	det.Duplicates = groupByHash(files)
	det.NameAlike = groupNameAlike(files)
	onProgress.Emit(domain.PhaseGroup, 1, 1, fmt.Sprintf("%d 组重复", len(det.Duplicates)))
	onProgress.Emit(domain.PhaseDone, len(files), len(files), "")

	log.Info("检测完成",
		"files", len(files),
		"series", len(det.Series),
		"duplicates", len(det.Duplicates),
		"skipped", len(det.Skipped),
		"failed", len(det.Failed),
	)
	return det, nil
}

// hashAll 把 pending 中的文件并发提交给 pool，结果写回 files[i].Hash。
func (e *Engine) hashAll(ctx context.Context, files []domain.TextFile, pending []int, onProgress domain.ProgressFunc) ([]domain.FileError, error) {
	log := e.logger()
	chunk := e.ChunkSize
	if chunk <= 0 {
		chunk = hasher.DefaultChunkSize
	}
	limit := e.MaxPending
	if limit <= 0 {
		limit = defaultMaxPending
	}

	var (
		mu     sync.Mutex
		done   int
		failed = make([]domain.FileError, 0)
	)
	total := len(pending)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, idx := range pending {
		path := files[idx].AbsPath
		g.Go(func() error {
			digest, err := e.Pool.Submit(gctx, path, chunk)
			if err != nil && isFatal(err) {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				log.Warn("计算哈希失败，文件不参与本次检测", "path", path, "error", err)
				failed = append(failed, domain.FileError{Path: path, Code: errorCode(err), Msg: err.Error()})
			} else {
				// 每个 goroutine 只写自己的下标。
				files[idx].Hash = digest
			}
			onProgress.Emit(domain.PhaseHash, done, total, files[idx].RelPath)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return failed, nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// GroupFiles 对给定路径执行检测，只返回重复组（groupKey → 成员路径）。
// 已确认的系列在内部消化，不会出现在结果中；无法 stat 的路径直接丢弃。
func (e *Engine) GroupFiles(ctx context.Context, paths []string, onProgress domain.ProgressFunc) (map[string][]string, error) {
	files := make([]domain.TextFile, 0, len(paths))
	for _, p := range paths {
		f, err := scan.Describe("", p)
		if err != nil {
			e.logger().Warn("无法读取文件信息，已忽略", "path", p, "error", err)
			continue
		}
		files = append(files, f)
	}

	det, err := e.Detect(ctx, files, onProgress)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(det.Duplicates))
	for _, g := range det.Duplicates {
		out[g.Key] = append([]string(nil), g.Members...)
	}
	return out, nil
}

// isFatal 判断错误是否应让整次检测失败（其余错误只影响单个文件）。
func isFatal(err error) bool {
	return errors.Is(err, pool.ErrNoWorkers) ||
		errors.Is(err, pool.ErrPoolClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func errorCode(err error) string {
	var ioe *hasher.IOError
	switch {
	case pool.IsCrash(err):
		return domain.ErrCodeWorkerCrash
	case hasher.IsNotFound(err):
		return domain.ErrCodeNotFound
	case errors.As(err, &ioe):
		return domain.ErrCodeIOFailed
	default:
		return domain.ErrCodeHashFailed
	}
}

// dedupe 去掉重复路径（保留第一次出现）。同一文件只能被哈希一次。
func dedupe(files []domain.TextFile) []domain.TextFile {
	seen := make(map[string]struct{}, len(files))
	out := make([]domain.TextFile, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f.AbsPath]; ok {
			continue
		}
		seen[f.AbsPath] = struct{}{}
		out = append(out, f)
	}
	return out
}
