package domain

// VolumeMatch 是从文件名中解析出的“系列名 + 卷号”信息，仅在分类阶段临时存在。
type VolumeMatch struct {
	SeriesNameRaw        string
	SeriesNameNormalized string
	VolumeToken          string
	// VolumeNumber 为 nil 表示卷号 token 无法转换为整数（不可用于连续性判定）。
	VolumeNumber *int
}

// SeriesGroup 是同一系列不同卷的文件集合。
// Confirmed=true 表示已通过系列校验：其成员不再参与哈希，也不会出现在任何重复组中。
type SeriesGroup struct {
	NormalizedSeriesName string
	Members              []string
	Confirmed            bool
}
