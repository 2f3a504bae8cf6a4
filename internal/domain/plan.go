package domain

// MovePlan 规划一次文件移动（只描述 src/dst；真正执行在 run 层）。
type MovePlan struct {
	SrcAbs string
	DstAbs string
}

// GroupPlan 是对某个重复组的最小执行计划：保留 Keep，其余按 Moves 移入 duplicates 目录。
type GroupPlan struct {
	Key   string
	Hash  string
	Keep  string
	Moves []MovePlan
}

// 保留策略：决定重复组中哪个文件留在原地。
const (
	KeepFirst    = "first"    // 路径字典序最小
	KeepLargest  = "largest"  // 体积最大（内容相同时通常等价于 first）
	KeepNewest   = "newest"   // 修改时间最新
	KeepShortest = "shortest" // 文件名最短（通常是不带 "(1)" 等后缀的原始文件）
)

// KeepPolicies 按文档顺序列出所有合法的保留策略。
var KeepPolicies = []string{KeepFirst, KeepLargest, KeepNewest, KeepShortest}
