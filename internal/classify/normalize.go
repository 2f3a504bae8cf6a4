// Package classify 负责文件名规范化与“系列名 + 卷号”解析。
package classify

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	metadataRE  = regexp.MustCompile(`[\[\(\{].*?[\]\)\}]`)
	spaceRunRE  = regexp.MustCompile(`\s+`)
	separatorRE = regexp.MustCompile(`[_\-+\s]+`)
	nonWordRE   = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	trailingRE  = regexp.MustCompile(`(?:[0-9]+|완|完)+$`)
)

// volumeIndicators 判断规范化后的文本本身是否“像卷号”：是则保留尾部数字。
// 输入已去掉标点与分隔符，所以这里不出现 "vol." 里的点。
var volumeIndicators = []*regexp.Regexp{
	regexp.MustCompile(`\d+권.*?완결`),
	regexp.MustCompile(`\d+권.*?完`),
	regexp.MustCompile(`\d+권`),
	regexp.MustCompile(`제\d+권`),
	regexp.MustCompile(`\d+부`),
	regexp.MustCompile(`[상중하]권`),
	regexp.MustCompile(`vol\d+`),
	regexp.MustCompile(`volume\d+`),
	regexp.MustCompile(`시즌\d+`),
	regexp.MustCompile(`season\d+`),
}

var lower = cases.Lower(language.Und)

// Stem 返回不含目录与扩展名的文件名。
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Normalize 把文件名（不含扩展名）规范化为可比较的 key。
//
// 步骤：NFC → 去掉 [..] (..) {..} 元数据 → 去掉分隔符 → 小写 → 只保留字母/数字/下划线 →
// 若文本本身不像卷号，去掉尾部数字与完结标记（완/完）。
//
// Normalize 是幂等的：Normalize(Normalize(x)) == Normalize(x)。
func Normalize(filename string) string {
	s := norm.NFC.String(filename)
	s = metadataRE.ReplaceAllString(s, "")
	s = spaceRunRE.ReplaceAllString(s, " ")
	s = separatorRE.ReplaceAllString(s, "")
	s = lower.String(s)
	s = nonWordRE.ReplaceAllString(s, "")
	// 删除字符后相邻的字母可能重新组合（例如分离的 jamo），再做一次 NFC 保证幂等。
	s = norm.NFC.String(s)
	if !IsVolumeIndicator(s) {
		s = trailingRE.ReplaceAllString(s, "")
	}
	return s
}

// IsVolumeIndicator 判断 s 中是否含有卷号/季号等标记（大小写不敏感）。
func IsVolumeIndicator(s string) bool {
	s = lower.String(s)
	for _, re := range volumeIndicators {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
