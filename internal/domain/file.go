package domain

// TextFile 描述一次扫描得到的候选文本文件（FileRecord）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - Hash 只在文件没有被确认属于某个系列时才会计算，且一次运行内最多计算一次
type TextFile struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // ".txt"
	Size    int64
	ModUnix int64

	NormalizedName string
	Hash           string // 空串表示尚未计算（或被排除）
}
