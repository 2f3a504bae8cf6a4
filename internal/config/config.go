package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/txtdedup/internal/domain"
	"github.com/John-Robertt/txtdedup/internal/logging"
)

// FileName 是配置文件的固定文件名。
const FileName = "txtdedup.toml"

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 txtdedup.toml。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = domain.ErrCodeConfigMissing
)

const (
	DefaultKeep          = domain.KeepFirst
	DefaultChunkSize     = 1 << 20
	DefaultMaxFileSize   = int64(50 << 20)
	DefaultDuplicatesDir = "duplicates"
	// MaxWorkers 是 workers 的上限；超出截断。
	MaxWorkers = 64
)

// DefaultWorkers 是 workers 的内置默认值：CPU 数 - 1，至少 1。
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// CLIArgs 是 CLI 暴露的入口参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Apply    bool
	ApplySet bool

	Keep    string
	KeepSet bool

	Workers    int
	WorkersSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 txtdedup.toml 的解析结构。大小字段接受 "1MiB"/"50MB" 这类写法。
type FileConfig struct {
	Path          string   `toml:"path"`
	Apply         *bool    `toml:"apply"`
	Keep          string   `toml:"keep"`
	Workers       int      `toml:"workers"`
	ChunkSize     string   `toml:"chunk_size"`
	MaxFileSize   string   `toml:"max_file_size"`
	Extensions    []string `toml:"extensions"`
	ExcludeDirs   []string `toml:"exclude_dirs"`
	DuplicatesDir string   `toml:"duplicates_dir"`
	SniffText     bool     `toml:"sniff_text"`
	LogLevel      string   `toml:"log_level"`
	LogFormat     string   `toml:"log_format"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string

	Apply bool
	Keep  string

	Workers     int
	ChunkSize   int
	MaxFileSize int64

	Extensions    []string
	ExcludeDirs   []string
	DuplicatesDir string
	SniffText     bool

	LogLevel  string
	LogFormat string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/txtdedup.toml（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/txtdedup.toml（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：CLI > 配置文件 > 内置默认值。CLI 未暴露的字段仅由配置文件控制。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选，位置固定在 <path>/txtdedup.toml。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	// CLI 没给 path：必须读取 <cwd>/txtdedup.toml，且其中必须包含 path。
	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	keep := DefaultKeep
	if cli.KeepSet {
		keep = strings.ToLower(strings.TrimSpace(cli.Keep))
	} else if strings.TrimSpace(fc.Keep) != "" {
		keep = strings.ToLower(strings.TrimSpace(fc.Keep))
	}
	if !slices.Contains(domain.KeepPolicies, keep) {
		return invalid(fmt.Errorf("keep 只能是 %s，实际是 %q", strings.Join(domain.KeepPolicies, "/"), keep))
	}

	workers := fc.Workers
	if cli.WorkersSet {
		workers = cli.Workers
	}
	if workers == 0 {
		workers = DefaultWorkers()
	}
	// 范围 [1, MaxWorkers]；超出截断。
	if workers < 1 {
		workers = 1
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	chunk, err := parseSize("chunk_size", fc.ChunkSize, DefaultChunkSize)
	if err != nil {
		return invalid(err)
	}
	maxSize, err := parseSize("max_file_size", fc.MaxFileSize, DefaultMaxFileSize)
	if err != nil {
		return invalid(err)
	}
	if chunk > 1<<30 {
		return invalid(fmt.Errorf("chunk_size 过大：%s", humanize.IBytes(uint64(chunk))))
	}

	dupDir := strings.TrimSpace(fc.DuplicatesDir)
	if dupDir == "" {
		dupDir = DefaultDuplicatesDir
	}
	dupDir = filepath.Clean(dupDir)
	if filepath.IsAbs(dupDir) || dupDir == "." || dupDir == ".." || strings.HasPrefix(dupDir, ".."+string(filepath.Separator)) {
		return invalid(fmt.Errorf("duplicates_dir 必须是 path 下的相对目录：%q", fc.DuplicatesDir))
	}

	exts := make([]string, 0, len(fc.Extensions))
	for _, e := range fc.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	if len(exts) == 0 {
		exts = []string{".txt"}
	}

	logLevel := fc.LogLevel
	if cli.LogLevelSet {
		logLevel = cli.LogLevel
	}
	if _, err := logging.ParseLevel(logLevel); err != nil {
		return invalid(err)
	}
	logFormat, err := logging.ParseFormat(fc.LogFormat)
	if err != nil {
		return invalid(err)
	}

	return EffectiveConfig{
		Path:          absPath,
		Apply:         apply,
		Keep:          keep,
		Workers:       workers,
		ChunkSize:     int(chunk),
		MaxFileSize:   maxSize,
		Extensions:    exts,
		ExcludeDirs:   append([]string(nil), fc.ExcludeDirs...),
		DuplicatesDir: dupDir,
		SniffText:     fc.SniffText,
		LogLevel:      strings.ToLower(strings.TrimSpace(logLevel)),
		LogFormat:     logFormat,
	}, nil
}

// parseSize 解析 "1MiB"/"50 MB"/"4096" 这类大小写法；空串返回默认值。
func parseSize(field, raw string, def int64) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%s 无效：%w", field, err)
	}
	if n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("%s 必须大于 0：%q", field, raw)
	}
	return int64(n), nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件（未知字段视为错误，避免拼写错误被静默忽略）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}

	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return FileConfig{}, true, fmt.Errorf("第 %d 行第 %d 列：%w", row, col, err)
		}
		var se *toml.StrictMissingError
		if errors.As(err, &se) {
			return FileConfig{}, true, fmt.Errorf("未知字段：%s", strings.TrimSpace(se.String()))
		}
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
