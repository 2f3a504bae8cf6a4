package domain

// 进度事件的 Status 取值（按阶段先后排列）。
const (
	PhaseDiscover = "discovering"
	PhaseStat     = "stat"
	PhaseExtract  = "extracting"
	PhaseValidate = "validating"
	PhaseHash     = "hashing"
	PhaseGroup    = "grouping"
	PhaseDone     = "done"
)

// Progress 是检测引擎发出的进度事件（纯观察用途，不影响控制流）。
type Progress struct {
	Status  string `json:"status"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Details string `json:"details"`
}

// ProgressFunc 接收进度事件；调用方可以传 nil。
type ProgressFunc func(Progress)

// NewProgress 根据 current/total 计算 percent（total<=0 视为已完成）。
func NewProgress(status string, current, total int, details string) Progress {
	pct := 100
	if total > 0 {
		if current < 0 {
			current = 0
		}
		pct = current * 100 / total
		if pct > 100 {
			pct = 100
		}
	}
	return Progress{
		Status:  status,
		Current: current,
		Total:   total,
		Percent: pct,
		Details: details,
	}
}

// Emit 在 fn 非 nil 时发出事件。
func (fn ProgressFunc) Emit(status string, current, total int, details string) {
	if fn == nil {
		return
	}
	fn(NewProgress(status, current, total, details))
}
