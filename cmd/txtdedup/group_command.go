package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/txtdedup/internal/app"
	"github.com/John-Robertt/txtdedup/internal/config"
	"github.com/John-Robertt/txtdedup/internal/logging"
	"github.com/John-Robertt/txtdedup/internal/pool"
)

// groupOutput 是 group 子命令的 JSON 输出：组键 → 成员路径。
type groupOutput struct {
	Groups map[string][]string `json:"groups"`
	Keys   []string            `json:"keys"`
}

func newGroupCommand() *cobra.Command {
	var workers int
	var logLevel string

	cmd := &cobra.Command{
		Use:   "group <file>...",
		Short: "只对给定文件做重复分组，输出 JSON（不扫描目录、不移动）",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stderr := cmd.ErrOrStderr()

			log, err := logging.New(logging.Options{Level: logLevel, Writer: stderr})
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = config.DefaultWorkers()
			}
			if workers > config.MaxWorkers {
				workers = config.MaxWorkers
			}

			p := pool.New(pool.Options{Size: workers, Logger: log})
			defer p.Shutdown()

			engine := &app.Engine{
				Pool:        p,
				ChunkSize:   config.DefaultChunkSize,
				MaxFileSize: config.DefaultMaxFileSize,
				Logger:      log,
			}
			groups, err := engine.GroupFiles(cmd.Context(), args, nil)
			if err != nil {
				fmt.Fprintf(stderr, "分组失败：%v\n", err)
				return exitError{code: 1}
			}

			out := groupOutput{Groups: groups, Keys: make([]string, 0, len(groups))}
			for k := range groups {
				out.Keys = append(out.Keys, k)
			}
			// group-2 排在 group-10 之前。
			sort.Slice(out.Keys, func(i, j int) bool {
				a, b := out.Keys[i], out.Keys[j]
				if len(a) != len(b) {
					return len(a) < len(b)
				}
				return a < b
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, fmt.Sprintf("哈希 worker 数（默认 CPU 数 - 1，上限 %d）", config.MaxWorkers))
	cmd.Flags().StringVar(&logLevel, "log-level", "", "日志级别：debug|info|warn|error（默认 info）")
	return cmd
}
