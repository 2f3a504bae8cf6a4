package main

import (
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/John-Robertt/txtdedup/internal/domain"
)

// renderGroups 把重复组渲染成表格：每个文件一行，组键只写在组的第一行。
func renderGroups(groups []domain.GroupResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"组", "哈希", "文件", "大小", "状态", "去向"})

	for i, g := range groups {
		if i > 0 {
			tw.AppendSeparator()
		}
		for j, f := range g.Files {
			key, hash := "", ""
			if j == 0 {
				key = g.Key
				hash = shortHash(g.Hash)
			}
			tw.AppendRow(table.Row{key, hash, truncate(f.Src, 60), formatSize(f.Size), fileStatusLabel(f.Status), truncate(f.Dst, 60)})
		}
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func renderSeries(series []domain.SeriesResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"系列", "卷数", "文件"})
	for _, s := range series {
		tw.AppendRow(table.Row{s.Name, strconv.Itoa(len(s.Files)), truncate(strings.Join(s.Files, ", "), 80)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func fileStatusLabel(status string) string {
	switch status {
	case domain.FileStatusKeep:
		return "保留"
	case domain.FileStatusPlanned:
		return "待移动"
	case domain.FileStatusMoved:
		return "已移动"
	case domain.FileStatusFailed:
		return "失败"
	case domain.FileStatusSkipped:
		return "跳过"
	default:
		return status
	}
}

func shortHash(h string) string {
	if len(h) <= 8 {
		return h
	}
	return h[:8]
}
