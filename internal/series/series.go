// Package series 判定一组文件是否构成同一部作品的连续分卷。
package series

import (
	"errors"
	"fmt"
	"sort"

	"github.com/John-Robertt/txtdedup/internal/classify"
)

// Reason 描述一组文件被拒绝为系列的原因。
type Reason string

const (
	ReasonTooFew          Reason = "too_few"
	ReasonNoVolume        Reason = "no_volume"
	ReasonBadVolume       Reason = "bad_volume"
	ReasonNameMismatch    Reason = "name_mismatch"
	ReasonDuplicateVolume Reason = "duplicate_volume"
	ReasonNotSequential   Reason = "not_sequential"
)

// RejectError 是 Check 的拒绝结果。它不是故障：调用方据此把文件退回重复检测路径。
type RejectError struct {
	Reason Reason
	Path   string
}

func (e *RejectError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path == "" {
		return fmt.Sprintf("不是连续系列：%s", e.Reason)
	}
	return fmt.Sprintf("不是连续系列：%s（%s）", e.Reason, e.Path)
}

// RejectReason 提取拒绝原因；err 不是 *RejectError 时返回空串。
func RejectReason(err error) Reason {
	var re *RejectError
	if errors.As(err, &re) && re != nil {
		return re.Reason
	}
	return ""
}

// IsSameSeries 报告 files 是否为同一系列的连续分卷。
func IsSameSeries(files []string) bool {
	return Check(files) == nil
}

// Check 与 IsSameSeries 相同，但拒绝时给出原因。
//
// 规则：至少两个文件；每个文件都能解析出整数卷号；规范化系列名全部一致；
// 卷号两两不同；排序后相邻差值满足 IsSequential。
func Check(files []string) error {
	if len(files) < 2 {
		return &RejectError{Reason: ReasonTooFew}
	}

	var name string
	seen := make(map[int]struct{}, len(files))
	volumes := make([]int, 0, len(files))
	for i, p := range files {
		vm, ok := classify.ExtractVolume(classify.Stem(p))
		if !ok {
			return &RejectError{Reason: ReasonNoVolume, Path: p}
		}
		if vm.VolumeNumber == nil {
			return &RejectError{Reason: ReasonBadVolume, Path: p}
		}
		if i == 0 {
			name = vm.SeriesNameNormalized
		} else if vm.SeriesNameNormalized != name {
			return &RejectError{Reason: ReasonNameMismatch, Path: p}
		}
		n := *vm.VolumeNumber
		if _, dup := seen[n]; dup {
			return &RejectError{Reason: ReasonDuplicateVolume, Path: p}
		}
		seen[n] = struct{}{}
		volumes = append(volumes, n)
	}

	sort.Ints(volumes)
	if !IsSequential(volumes) {
		return &RejectError{Reason: ReasonNotSequential}
	}
	return nil
}

// IsSequential 判断已排序且互不相同的卷号是否“连续”。
//
// 相邻差值全部为 1 时成立；此外，差值全部落在 {1, 9, 10} 内也成立，
// 用于容忍 1, 10, 20 这类按十卷编号的合集。
func IsSequential(sorted []int) bool {
	if len(sorted) < 2 {
		return true
	}
	for i := 1; i < len(sorted); i++ {
		switch sorted[i] - sorted[i-1] {
		case 1, 9, 10:
		default:
			return false
		}
	}
	return true
}
