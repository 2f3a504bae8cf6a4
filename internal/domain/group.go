package domain

// DuplicateGroup 是内容哈希完全一致的文件集合（最终输出单元，产出后不可变）。
//
// 约束：Members 至少 2 个，按路径字典序排列。
type DuplicateGroup struct {
	Key     string   `json:"key"`
	Hash    string   `json:"hash"`
	Members []string `json:"members"`
}

// NameAlike 是“规范化文件名相同但内容不同”的提示性分组。
// 只用于报告，不参与移动。
type NameAlike struct {
	NormalizedName string   `json:"normalized_name"`
	Members        []string `json:"members"`
}
