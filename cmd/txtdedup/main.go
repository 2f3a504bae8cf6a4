package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// exitError 让子命令在“已经输出过结果”的情况下只传递退出码。
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// 其余错误都来自 cobra 的参数解析：按用法错误处理。
	fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
	fmt.Fprintln(os.Stderr, `使用 "txtdedup --help" 查看用法。`)
	return 2
}
