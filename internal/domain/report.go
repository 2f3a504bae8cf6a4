package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusPlanned   = "planned"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

const (
	FileStatusKeep     = "keep"
	FileStatusPlanned  = "planned"
	FileStatusMoved    = "moved"
	FileStatusFailed   = "failed"
	FileStatusSkipped  = "skipped"
	FileStatusExcluded = "excluded"
)

const (
	ErrCodeIOFailed       = "io_failed"
	ErrCodeNotFound       = "not_found"
	ErrCodeHashFailed     = "hash_failed"
	ErrCodeWorkerCrash    = "worker_crash"
	ErrCodeTooLarge       = "too_large"
	ErrCodeNotText        = "not_text"
	ErrCodeMoveFailed     = "move_failed"
	ErrCodeTargetConflict = "target_conflict"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
	ErrCodeConfigMissing  = "config_missing_path"
)

// FileError 描述单个文件在某个阶段的失败/跳过原因（单文件失败不影响整体运行）。
type FileError struct {
	Path string `json:"path"`
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`
	Keep   string `json:"keep"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary   ReportSummary  `json:"summary"`
	Series    []SeriesResult `json:"series"`
	Groups    []GroupResult  `json:"groups"`
	NameAlike []NameAlike    `json:"name_alike"`
	Skipped   []FileError    `json:"skipped"`
	Errors    []FileError    `json:"errors"`
}

type ReportSummary struct {
	Files           int `json:"files"`
	SeriesGroups    int `json:"series_groups"`
	SeriesFiles     int `json:"series_files"`
	DuplicateGroups int `json:"duplicate_groups"`
	Planned         int `json:"planned"`
	Moved           int `json:"moved"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

type SeriesResult struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

type GroupResult struct {
	Key       string       `json:"key"`
	Hash      string       `json:"hash"`
	Keep      string       `json:"keep"`
	Status    string       `json:"status"`
	ErrorCode string       `json:"error_code"`
	ErrorMsg  string       `json:"error_msg"`
	Files     []FileResult `json:"files"`
}

type FileResult struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Size   int64  `json:"size"`
	Status string `json:"status"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) groups 稳定排序：按 keep 路径字典序；series 按名称
// 3) summary 由明细计算得出（Files 由调用方填写）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Series == nil {
		r.Series = []SeriesResult{}
	}
	if r.Groups == nil {
		r.Groups = []GroupResult{}
	}
	if r.NameAlike == nil {
		r.NameAlike = []NameAlike{}
	}
	if r.Skipped == nil {
		r.Skipped = []FileError{}
	}
	if r.Errors == nil {
		r.Errors = []FileError{}
	}

	sort.SliceStable(r.Groups, func(i, j int) bool { return r.Groups[i].Keep < r.Groups[j].Keep })
	sort.SliceStable(r.Series, func(i, j int) bool { return r.Series[i].Name < r.Series[j].Name })

	s := ReportSummary{Files: r.Summary.Files}
	s.SeriesGroups = len(r.Series)
	for _, sr := range r.Series {
		s.SeriesFiles += len(sr.Files)
	}
	s.DuplicateGroups = len(r.Groups)
	for _, g := range r.Groups {
		for _, f := range g.Files {
			switch f.Status {
			case FileStatusPlanned:
				s.Planned++
			case FileStatusMoved:
				s.Moved++
			case FileStatusFailed:
				s.Failed++
			}
		}
	}
	s.Skipped = len(r.Skipped)
	s.Failed += len(r.Errors)
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
