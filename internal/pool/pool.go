// Package pool 提供固定大小、带崩溃恢复的哈希 worker pool。
//
// 结构：
// - 槽位表按稳定的整数 id 索引；worker 崩溃后在原槽位重建（id 不变，generation+1）
// - 单个 dispatcher goroutine 独占队列与槽位状态；提交/完成都通过 channel 送达，
//   因此“同一空闲槽位被分配两次”或“队首被重复移除”在结构上不可能发生
// - 队列按提交顺序 FIFO 出队；完成顺序不做保证
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/John-Robertt/txtdedup/internal/hasher"
)

// Executor 在某个槽位上执行单个哈希任务。
// 实现允许 panic：pool 会把它视为 worker 崩溃并重建该槽位。
type Executor interface {
	Hash(path string, chunkSize int) (string, error)
}

// ExecutorFunc 让普通函数满足 Executor。
type ExecutorFunc func(path string, chunkSize int) (string, error)

func (f ExecutorFunc) Hash(path string, chunkSize int) (string, error) { return f(path, chunkSize) }

// Factory 为槽位创建（或重建）执行器。
type Factory func(slot int) (Executor, error)

// Options 是 pool 的构造参数。零值可用。
type Options struct {
	// Size<=0 时使用 DefaultSize()。
	Size int
	// Factory 为 nil 时每个槽位都使用 hasher.Hash。
	Factory Factory
	Logger  *slog.Logger
}

// Stats 是 dispatcher 状态的快照（测试与进度展示用）。
type Stats struct {
	Size      int
	Live      int
	Busy      int
	Queued    int
	Recreated int
}

// DefaultSize 返回 CPU 数 - 1（至少 1）。
func DefaultSize() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

type Pool struct {
	size    int
	factory Factory
	log     *slog.Logger

	startOnce sync.Once
	startErr  error
	running   atomic.Bool

	submitCh chan *task
	doneCh   chan completion
	queryCh  chan chan Stats

	closeOnce sync.Once
	quit      chan struct{}
	exited    chan struct{}
}

type task struct {
	path   string
	chunk  int
	result chan result // cap=1：每个任务恰好收到一次终态结果
}

type result struct {
	digest string
	err    error
}

type completion struct {
	slot    int
	gen     int
	task    *task
	digest  string
	err     error
	crashed bool
}

// slot 只由 dispatcher goroutine 访问（启动阶段除外，此时 dispatcher 尚未运行）。
type slot struct {
	id      int
	gen     int
	busy    bool
	dead    bool
	current *task
	exec    Executor
	tasks   chan *task
}

// New 构造 pool。worker 在第一次 Submit 时才创建。
func New(opts Options) *Pool {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize()
	}
	factory := opts.Factory
	if factory == nil {
		factory = func(int) (Executor, error) { return ExecutorFunc(hasher.Hash), nil }
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		size:     size,
		factory:  factory,
		log:      log,
		submitCh: make(chan *task),
		doneCh:   make(chan completion),
		queryCh:  make(chan chan Stats),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Size 返回槽位数。
func (p *Pool) Size() int { return p.size }

// Submit 提交一个哈希任务并等待其终态结果。
//
// 返回的错误：
// - *HashError：执行器报告失败（pool 继续服务其他任务）
// - *WorkerCrashError：执行该任务的 worker 崩溃（不自动重试）
// - ErrNoWorkers：无法创建任何 worker
// - ErrPoolClosed：pool 已关闭
// - ctx.Err()：调用方放弃等待（任务本身仍可能被执行）
func (p *Pool) Submit(ctx context.Context, path string, chunkSize int) (string, error) {
	select {
	case <-p.quit:
		return "", ErrPoolClosed
	default:
	}

	p.startOnce.Do(p.start)
	if p.startErr != nil {
		return "", p.startErr
	}

	t := &task{path: path, chunk: chunkSize, result: make(chan result, 1)}
	select {
	case p.submitCh <- t:
	case <-p.quit:
		return "", ErrPoolClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case r := <-t.result:
		return r.digest, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown 终止所有 worker 并丢弃排队任务：等待中的调用方收到 ErrPoolClosed。
// 可重复调用。
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() { close(p.quit) })
	// 未启动的 pool 不再允许启动。
	p.startOnce.Do(func() {})
	if p.running.Load() {
		<-p.exited
	}
}

// Stats 返回当前快照；pool 未运行时只有 Size 有意义。
func (p *Pool) Stats() Stats {
	if !p.running.Load() {
		return Stats{Size: p.size}
	}
	reply := make(chan Stats, 1)
	select {
	case p.queryCh <- reply:
		return <-reply
	case <-p.exited:
		return Stats{Size: p.size}
	}
}

func (p *Pool) start() {
	slots := make([]*slot, 0, p.size)
	live := 0
	var lastErr error
	for i := 0; i < p.size; i++ {
		s := &slot{id: i}
		if err := p.spawn(s); err != nil {
			p.log.Warn("创建 worker 失败", "slot", i, "error", err)
			s.dead = true
			lastErr = err
		} else {
			live++
		}
		slots = append(slots, s)
	}
	if live == 0 {
		p.startErr = fmt.Errorf("%w：%v", ErrNoWorkers, lastErr)
		return
	}

	p.log.Debug("worker pool 已启动", "size", p.size, "live", live)
	p.running.Store(true)
	go p.loop(slots)
}

func (p *Pool) spawn(s *slot) error {
	exec, err := p.factory(s.id)
	if err != nil {
		return err
	}
	if exec == nil {
		return fmt.Errorf("slot %d: factory 返回了 nil executor", s.id)
	}
	s.exec = exec
	s.gen++
	s.tasks = make(chan *task, 1)
	go p.work(s.id, s.gen, exec, s.tasks)
	return nil
}

func (p *Pool) work(id, gen int, exec Executor, tasks <-chan *task) {
	for t := range tasks {
		c := invoke(id, gen, exec, t)
		select {
		case p.doneCh <- c:
		case <-p.quit:
			return
		}
		if c.crashed {
			return
		}
	}
}

func invoke(id, gen int, exec Executor, t *task) (c completion) {
	c = completion{slot: id, gen: gen, task: t}
	defer func() {
		if v := recover(); v != nil {
			c.digest = ""
			c.crashed = true
			c.err = &WorkerCrashError{Slot: id, Path: t.path, Value: v}
		}
	}()

	digest, err := exec.Hash(t.path, t.chunk)
	if err != nil {
		c.err = &HashError{Path: t.path, Err: err}
		return c
	}
	c.digest = digest
	return c
}

func (p *Pool) loop(slots []*slot) {
	defer close(p.exited)

	var queue []*task
	recreated := 0

	liveCount := func() int {
		n := 0
		for _, s := range slots {
			if !s.dead {
				n++
			}
		}
		return n
	}

	dispatch := func() {
		if liveCount() == 0 {
			for _, t := range queue {
				t.result <- result{err: ErrNoWorkers}
			}
			queue = nil
			return
		}
		for _, s := range slots {
			if len(queue) == 0 {
				return
			}
			if s.busy || s.dead {
				continue
			}
			t := queue[0]
			queue[0] = nil
			queue = queue[1:]
			s.busy = true
			s.current = t
			s.tasks <- t // cap=1 且槽位空闲：不会阻塞
		}
	}

	for {
		select {
		case t := <-p.submitCh:
			queue = append(queue, t)
			dispatch()

		case c := <-p.doneCh:
			s := slots[c.slot]
			s.busy = false
			s.current = nil
			c.task.result <- result{digest: c.digest, err: c.err}

			if c.crashed {
				p.log.Warn("worker 崩溃，重建槽位", "slot", s.id, "generation", s.gen, "path", c.task.path, "error", c.err)
				close(s.tasks)
				if err := p.spawn(s); err != nil {
					s.dead = true
					p.log.Error("重建 worker 失败，槽位停用", "slot", s.id, "error", err)
				} else {
					recreated++
				}
			}
			dispatch()

		case reply := <-p.queryCh:
			st := Stats{Size: len(slots), Queued: len(queue), Recreated: recreated}
			for _, s := range slots {
				if !s.dead {
					st.Live++
				}
				if s.busy {
					st.Busy++
				}
			}
			reply <- st

		case <-p.quit:
			for _, t := range queue {
				t.result <- result{err: ErrPoolClosed}
			}
			for _, s := range slots {
				if s.current != nil {
					s.current.result <- result{err: ErrPoolClosed}
					s.current = nil
				}
				if !s.dead {
					close(s.tasks)
				}
			}
			return
		}
	}
}
