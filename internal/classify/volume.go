package classify

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/John-Robertt/txtdedup/internal/domain"
)

// MinSeriesNameLen 是可信系列名的最小字符数；更短的前缀过于含糊，直接丢弃该次匹配。
const MinSeriesNameLen = 2

type volumeMatcher struct {
	kind string
	re   *regexp.Regexp
}

// volumeMatchers 按优先级排列，第一个命中（且系列名足够长）的 matcher 胜出。
// 这些模式故意彼此重叠，顺序本身就是消歧规则：末尾数字兜底必须最后尝试。
var volumeMatchers = []volumeMatcher{
	{"volume", regexp.MustCompile(`(?i)(.*?)[\s_-]*(\d+)권`)},
	{"volume_range", regexp.MustCompile(`(?i)(.*?)[\s_-]*(\d+)-\d+권`)},
	{"volume_prefixed", regexp.MustCompile(`(?i)(.*?)[\s_-]*[제권]\s*(\d+)`)},
	{"upper_middle_lower", regexp.MustCompile(`(?i)(.*?)[\s_-]*(상|중|하)편?`)},
	{"english_ordinal", regexp.MustCompile(`(?i)(.*?)[\s_-]*(first|second|third|fourth|fifth)`)},
	{"vol", regexp.MustCompile(`(?i)(.*?)[\s_-]*vol\.?\s*(\d+)`)},
	{"part", regexp.MustCompile(`(?i)(.*?)[\s_-]*part\.?\s*(\d+)`)},
	{"hash", regexp.MustCompile(`(?i)(.*?)[\s_-]*#(\d+)`)},
	{"episode", regexp.MustCompile(`(?i)(.*?)[\s_-]*(\d+)화`)},
	{"chapter", regexp.MustCompile(`(?i)(.*?)[\s_-]*(\d+)장`)},
	{"piece", regexp.MustCompile(`(?i)(.*?)[\s_-]*(\d+)편`)},
	{"season_ko", regexp.MustCompile(`(?i)(.*?)[\s_-]*시즌\s*(\d+)`)},
	{"season", regexp.MustCompile(`(?i)(.*?)[\s_-]*season\s*(\d+)`)},
	{"trailing_digits", regexp.MustCompile(`(?i)(.*?)[\s_-]*(\d+)(?:\.(?:txt|epub))?$`)},
}

var (
	seriesSepRE    = regexp.MustCompile(`[\s\-_]+`)
	seriesWordRE   = regexp.MustCompile(`(?i)시리즈|series`)
	indicatorRE    = regexp.MustCompile(`(?i)volume|vol|part|episode|chapter|권|화|편|장`)
	digitsRE       = regexp.MustCompile(`\d+`)
	asciiDigitsRE  = regexp.MustCompile(`^[0-9]+$`)
	koreanVolumes  = map[string]int{"상": 1, "중": 2, "하": 3}
	englishVolumes = map[string]int{"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5}
)

// ExtractVolume 从文件名（不含目录；扩展名可选）中解析系列名与卷号 token。
// 无法解析时返回 false：这不是错误，文件只是走重复检测路径而非系列路径。
func ExtractVolume(filename string) (domain.VolumeMatch, bool) {
	s := norm.NFC.String(filename)
	for _, m := range volumeMatchers {
		sub := m.re.FindStringSubmatch(s)
		if sub == nil {
			continue
		}
		raw := strings.TrimSpace(sub[1])
		if utf8.RuneCountInString(raw) < MinSeriesNameLen {
			continue
		}
		vm := domain.VolumeMatch{
			SeriesNameRaw:        raw,
			SeriesNameNormalized: NormalizeSeriesName(raw),
			VolumeToken:          sub[2],
		}
		if n, ok := VolumeToInteger(sub[2]); ok {
			vm.VolumeNumber = &n
		}
		return vm, true
	}
	return domain.VolumeMatch{}, false
}

// NormalizeSeriesName 把系列名规范化为可比较形式：去掉分隔符、括号注释、
// "시리즈"/"series"、卷/部/话等指示词以及所有数字，然后转小写。
func NormalizeSeriesName(name string) string {
	s := norm.NFC.String(name)
	s = seriesSepRE.ReplaceAllString(s, "")
	s = metadataRE.ReplaceAllString(s, "")
	s = seriesWordRE.ReplaceAllString(s, "")
	s = indicatorRE.ReplaceAllString(s, "")
	s = digitsRE.ReplaceAllString(s, "")
	return lower.String(s)
}

// VolumeToInteger 把卷号 token 转为整数：纯数字、상/중/하、first..fifth。
// 其它 token 返回 false，调用方必须把该匹配视为不可用于连续性判定。
func VolumeToInteger(token string) (int, bool) {
	token = strings.TrimSpace(token)
	if asciiDigitsRE.MatchString(token) {
		n, err := strconv.Atoi(token)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	if n, ok := koreanVolumes[token]; ok {
		return n, true
	}
	if n, ok := englishVolumes[strings.ToLower(token)]; ok {
		return n, true
	}
	return 0, false
}
