package run

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/txtdedup/internal/config"
	"github.com/John-Robertt/txtdedup/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	statuses   map[string]int
	groups     []string
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnProgress(p domain.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.statuses == nil {
		o.statuses = map[string]int{}
	}
	o.statuses[p.Status]++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnGroupDone(idx, total int, res domain.GroupResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.groups = append(o.groups, res.Key)
}

func TestExecuteWithObserver_EmitsPhaseAndGroupEvents(t *testing.T) {
	root := library(t)

	obs := &recordObserver{}
	_ = ExecuteWithObserver(context.Background(), cfg(root, false), nil, obs)

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}

	wantPhases := []string{PhaseScan, PhaseDetect, PhasePlan, PhaseExec}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	if len(obs.groups) != 1 || obs.groups[0] != "group-1" {
		t.Fatalf("分组事件不符合预期：groups=%v", obs.groups)
	}
	// 6 个文件中 3 个属于系列，只有 3 个参与哈希。
	if obs.statuses[domain.PhaseStat] != 6 || obs.statuses[domain.PhaseHash] != 3 || obs.statuses[domain.PhaseDone] != 1 {
		t.Fatalf("进度事件不符合预期：%v", obs.statuses)
	}
}

func TestExecuteWithObserver_NilObserver_SameResultAsExecute(t *testing.T) {
	root := library(t)
	c := cfg(root, false)

	a := Execute(context.Background(), c, nil)
	b := ExecuteWithObserver(context.Background(), c, nil, nil)

	// 时间与 run_id 本身允许不同；对比时归零。
	a.StartedAt, a.FinishedAt, a.RunID = time.Time{}, time.Time{}, ""
	b.StartedAt, b.FinishedAt, b.RunID = time.Time{}, time.Time{}, ""

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("nil observer 不应改变结果：\nExecute=%+v\nWithObs=%+v", a, b)
	}
}
