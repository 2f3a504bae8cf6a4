package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/John-Robertt/txtdedup/internal/domain"
)

// StateDir 是工具自己的状态目录（报告、锁文件），扫描时永久排除。
const StateDir = ".txtdedup"

// DefaultExtensions 是默认的候选扩展名。
var DefaultExtensions = []string{".txt"}

type Options struct {
	// Extensions 为空时使用 DefaultExtensions；比较时大小写不敏感。
	Extensions []string
	// ExcludeDirs 视为相对 root 的路径（若是绝对路径，则按绝对路径处理）。
	ExcludeDirs []string
	// DuplicatesDir 是重复文件的归档目录（相对 root），扫描时永久排除。
	DuplicatesDir string
	// SniffText=true 时按内容嗅探 MIME，只保留 text/plain 家族的文件。
	SniffText bool
}

// FindCandidateFiles 递归扫描 root 下的文本文件。
//
// 规则（硬约束）：
// - 永久排除：<root>/.txtdedup/ 与 <root>/<DuplicatesDir>/
// - 只收录普通文件（符号链接、设备文件等一律忽略）
// - 输出按 RelPath 字典序稳定排序
//
// root 本身不可读是致命错误；子目录/单个文件的错误降级为 FileError，扫描继续。
// 进度：先发 discovering（每发现一个候选文件），再发 stat（逐个读取元信息）。
func FindCandidateFiles(root string, opts Options, onProgress domain.ProgressFunc) ([]domain.TextFile, []domain.FileError, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, err
	}
	root = filepath.Clean(root)
	fi, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}
	if !fi.IsDir() {
		return nil, nil, fmt.Errorf("扫描根目录不是目录：%s", root)
	}

	excluded := buildExcluded(root, opts.DuplicatesDir, opts.ExcludeDirs)
	exts := normalizeExts(opts.Extensions)

	type entry struct {
		path string
		d    fs.DirEntry
	}
	found := make([]entry, 0, 128)
	problems := make([]domain.FileError, 0)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			problems = append(problems, domain.FileError{Path: path, Code: domain.ErrCodeIOFailed, Msg: walkErr.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}

		found = append(found, entry{path: path, d: d})
		onProgress.Emit(domain.PhaseDiscover, len(found), 0, path)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	files := make([]domain.TextFile, 0, len(found))
	for i, e := range found {
		onProgress.Emit(domain.PhaseStat, i+1, len(found), e.path)

		info, err := e.d.Info()
		if err != nil {
			problems = append(problems, statProblem(e.path, err))
			continue
		}
		if opts.SniffText {
			ok, err := isText(e.path)
			if err != nil {
				problems = append(problems, statProblem(e.path, err))
				continue
			}
			if !ok {
				problems = append(problems, domain.FileError{Path: e.path, Code: domain.ErrCodeNotText, Msg: "内容不是纯文本"})
				continue
			}
		}
		files = append(files, newTextFile(root, e.path, info))
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	sort.Slice(problems, func(i, j int) bool { return problems[i].Path < problems[j].Path })
	return files, problems, nil
}

// Describe 为单个路径构造 TextFile（不经过目录扫描，例如调用方直接给出文件列表）。
// RelPath 相对 root；root 为空时 RelPath 即 AbsPath。
func Describe(root, path string) (domain.TextFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.TextFile{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return domain.TextFile{}, err
	}
	if !info.Mode().IsRegular() {
		return domain.TextFile{}, fmt.Errorf("不是普通文件：%s", abs)
	}
	if root == "" {
		return newTextFile("", abs, info), nil
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return domain.TextFile{}, err
	}
	return newTextFile(root, abs, info), nil
}

func newTextFile(root, path string, info fs.FileInfo) domain.TextFile {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	return domain.TextFile{
		AbsPath: path,
		RelPath: rel,
		Base:    strings.TrimSuffix(name, ext),
		Ext:     strings.ToLower(ext),
		Size:    info.Size(),
		ModUnix: info.ModTime().Unix(),
	}
}

func statProblem(path string, err error) domain.FileError {
	code := domain.ErrCodeIOFailed
	if os.IsNotExist(err) {
		code = domain.ErrCodeNotFound
	}
	return domain.FileError{Path: path, Code: code, Msg: err.Error()}
}

// isText 用内容嗅探判断文件是否属于 text/plain 家族（text/html 等子类型同样算文本）。
func isText(path string) (bool, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false, err
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true, nil
		}
	}
	return false, nil
}

func normalizeExts(in []string) map[string]struct{} {
	if len(in) == 0 {
		in = DefaultExtensions
	}
	out := make(map[string]struct{}, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}

func buildExcluded(root, duplicatesDir string, excludeDirs []string) []string {
	excluded := make([]string, 0, 2+len(excludeDirs))
	excluded = append(excluded, filepath.Join(root, StateDir))
	if d := strings.TrimSpace(duplicatesDir); d != "" {
		excluded = append(excluded, resolve(root, d))
	}

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		excluded = append(excluded, resolve(root, x))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	// p 是相对路径：相对 root。
	return filepath.Clean(filepath.Join(root, p))
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
