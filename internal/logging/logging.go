// Package logging 构造运行期使用的 slog logger。日志只写 stderr，stdout 留给 JSON 报告。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options 描述 logger 的构造参数。
type Options struct {
	Level  string
	Format string
	// Writer 为 nil 时写 os.Stderr。
	Writer io.Writer
}

// New 按 Options 构造 logger。
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, ho)
	default:
		h = slog.NewTextHandler(w, ho)
	}
	return slog.New(h), nil
}

// Discard 返回丢弃所有输出的 logger。
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel 解析 debug|info|warn|error（大小写不敏感；空串为 info）。
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", level)
	}
}

// ParseFormat 解析 console|json（空串为 console）。
func ParseFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("log_format 只能是 console 或 json，实际是 %q", format)
	}
}
