package run

import (
	"time"

	"github.com/John-Robertt/txtdedup/internal/config"
	"github.com/John-Robertt/txtdedup/internal/domain"
)

// Observer 用于把“运行进度/阶段/分组结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：OnProgress 可能来自哈希 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnProgress 转发扫描与检测引擎的细粒度进度事件。
	OnProgress(p domain.Progress)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnGroupDone 在某个重复组处理完成时调用（用于每组一行输出）。
	OnGroupDone(idx, total int, res domain.GroupResult, dur time.Duration)
}

// 阶段名（OnPhaseDone 的 name）。
const (
	PhaseScan   = "scan"
	PhaseDetect = "detect"
	PhasePlan   = "plan"
	PhaseExec   = "exec"
)

func progressFunc(obs Observer) domain.ProgressFunc {
	if obs == nil {
		return nil
	}
	return obs.OnProgress
}
