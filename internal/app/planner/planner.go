// Package planner 为重复组生成确定性的执行计划：选出保留文件，其余移入归档目录。
package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/txtdedup/internal/domain"
)

// ReadExistingNames 读取归档目录中已有的文件名（只做 ReadDir，不读文件内容）。
// 若目录不存在，返回空集合且不报错。
func ReadExistingNames(dupDir string) (map[string]struct{}, error) {
	names := map[string]struct{}{}
	entries, err := os.ReadDir(dupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return nil, err
	}
	for _, e := range entries {
		names[e.Name()] = struct{}{}
	}
	return names, nil
}

// ChooseKeep 按策略从 members 中选出保留文件的下标。平局时取路径字典序最小者。
func ChooseKeep(members []domain.TextFile, policy string) (int, error) {
	if len(members) == 0 {
		return -1, fmt.Errorf("重复组为空")
	}

	better := func(a, b domain.TextFile) bool { return false }
	switch policy {
	case domain.KeepFirst, "":
	case domain.KeepLargest:
		better = func(a, b domain.TextFile) bool { return a.Size > b.Size }
	case domain.KeepNewest:
		better = func(a, b domain.TextFile) bool { return a.ModUnix > b.ModUnix }
	case domain.KeepShortest:
		better = func(a, b domain.TextFile) bool {
			return utf8.RuneCountInString(filepath.Base(a.AbsPath)) < utf8.RuneCountInString(filepath.Base(b.AbsPath))
		}
	default:
		return -1, fmt.Errorf("未知的保留策略：%q", policy)
	}

	best := 0
	for i := 1; i < len(members); i++ {
		a, b := members[i], members[best]
		if better(a, b) || (!better(b, a) && a.AbsPath < b.AbsPath) {
			best = i
		}
	}
	return best, nil
}

// Planner 在一次运行内为所有重复组分配归档文件名；同一运行内的分配互不冲突。
type Planner struct {
	DupDir string
	Policy string
	used   map[string]struct{}
}

// New 以归档目录现状初始化 Planner。
func New(dupDir, policy string, existing map[string]struct{}) *Planner {
	used := make(map[string]struct{}, len(existing))
	for n := range existing {
		used[n] = struct{}{}
	}
	return &Planner{DupDir: filepath.Clean(dupDir), Policy: policy, used: used}
}

// PlanGroup 为一个重复组生成计划（不做任何写入/移动）。
// members 必须与 g.Members 一一对应，且包含 Size/ModUnix 等保留策略需要的信息。
func (p *Planner) PlanGroup(g domain.DuplicateGroup, members []domain.TextFile) (domain.GroupPlan, error) {
	if len(members) < 2 {
		return domain.GroupPlan{}, fmt.Errorf("重复组 %s 成员不足 2 个", g.Key)
	}
	keep, err := ChooseKeep(members, p.Policy)
	if err != nil {
		return domain.GroupPlan{}, err
	}

	ordered := append([]domain.TextFile(nil), members...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].AbsPath < ordered[j].AbsPath })

	plan := domain.GroupPlan{
		Key:   g.Key,
		Hash:  g.Hash,
		Keep:  members[keep].AbsPath,
		Moves: make([]domain.MovePlan, 0, len(members)-1),
	}
	for _, f := range ordered {
		if f.AbsPath == plan.Keep {
			continue
		}
		plan.Moves = append(plan.Moves, domain.MovePlan{
			SrcAbs: f.AbsPath,
			DstAbs: filepath.Join(p.DupDir, p.Alloc(filepath.Base(f.AbsPath))),
		})
	}
	return plan, nil
}

// Alloc 为 name 分配一个未被占用的文件名并登记（尽量保留原文件名，冲突时追加 __N）。
func (p *Planner) Alloc(name string) string {
	dst := allocName(name, p.used)
	p.used[dst] = struct{}{}
	return dst
}

func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d%s", base, n, ext)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}

// SortPlans 让上层在需要时可显式保证稳定顺序（而不是依赖 map 遍历顺序）。
func SortPlans(plans []domain.GroupPlan) {
	sort.Slice(plans, func(i, j int) bool { return plans[i].Keep < plans[j].Keep })
}
