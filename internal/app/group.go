package app

import (
	"fmt"
	"sort"

	"github.com/John-Robertt/txtdedup/internal/domain"
)

// bucketSeries 把解析出卷号的文件按规范化系列名分桶（桶内保持输入顺序）。
// 返回的桶按系列名字典序排列，保证确认阶段的处理顺序稳定。
func bucketSeries(files []domain.TextFile, names map[int]string) []candidate {
	index := make(map[string]int, len(names))
	out := make([]candidate, 0, len(names))
	for i := range files {
		name, ok := names[i]
		if !ok {
			continue
		}
		if idx, ok := index[name]; ok {
			out[idx].fileIdx = append(out[idx].fileIdx, i)
			continue
		}
		index[name] = len(out)
		out = append(out, candidate{name: name, fileIdx: []int{i}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

type candidate struct {
	name    string
	fileIdx []int
}

// groupByHash 把已计算哈希的文件按摘要分组，只保留成员 >= 2 的桶。
//
// - 组内成员按路径字典序排列
// - 组之间按首个成员路径排序，Key 依次为 group-1, group-2, ...
func groupByHash(files []domain.TextFile) []domain.DuplicateGroup {
	buckets := make(map[string][]string, len(files))
	for i := range files {
		h := files[i].Hash
		if h == "" {
			continue
		}
		buckets[h] = append(buckets[h], files[i].AbsPath)
	}

	groups := make([]domain.DuplicateGroup, 0, 16)
	for h, members := range buckets {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		groups = append(groups, domain.DuplicateGroup{Hash: h, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Members[0] < groups[j].Members[0] })
	for i := range groups {
		groups[i].Key = fmt.Sprintf("group-%d", i+1)
	}
	return groups
}

// groupNameAlike 找出规范化文件名相同、但内容并非全部一致的文件（提示用途）。
// 只考虑已成功计算哈希的文件；规范化结果为空的文件不参与。
func groupNameAlike(files []domain.TextFile) []domain.NameAlike {
	type bucket struct {
		members []string
		hashes  map[string]struct{}
	}
	buckets := make(map[string]*bucket, len(files))
	for i := range files {
		f := files[i]
		if f.Hash == "" || f.NormalizedName == "" {
			continue
		}
		b := buckets[f.NormalizedName]
		if b == nil {
			b = &bucket{hashes: make(map[string]struct{}, 2)}
			buckets[f.NormalizedName] = b
		}
		b.members = append(b.members, f.AbsPath)
		b.hashes[f.Hash] = struct{}{}
	}

	out := make([]domain.NameAlike, 0)
	for name, b := range buckets {
		if len(b.members) < 2 || len(b.hashes) < 2 {
			continue
		}
		sort.Strings(b.members)
		out = append(out, domain.NameAlike{NormalizedName: name, Members: b.members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out
}
