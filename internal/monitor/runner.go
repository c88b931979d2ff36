// Package monitor 管理后台推送接收循环的生命周期：每个实例同一时刻最多一个循环。
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

var monitorLog = logrus.WithField("component", "monitor")

// State 监控循环状态
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// LoopFunc 接收循环主体。每轮开始前调用 keepRunning，返回 false 时应完成清理后返回。
type LoopFunc func(ctx context.Context, keepRunning func() bool) error

type launch struct {
	ctx  context.Context
	loop LoopFunc
}

// Runner 后台监控循环的启动/停止器
type Runner struct {
	name string
	log  *logrus.Entry

	mu    sync.Mutex
	state State
	// exiting 循环已经观察到 STOPPING 并承诺退出，此时不能再原地恢复
	exiting bool
	// revived STOPPING 期间被恢复、但循环尚未观察到恢复
	revived *launch
	// restart 旧循环退出后需要再启动一次
	restart *launch
	done    chan struct{}
	runs    int
}

// NewRunner 创建 Runner，name 只用于日志
func NewRunner(name string) *Runner {
	return &Runner{
		name: name,
		log:  monitorLog.WithField("monitor", name),
	}
}

// Start 启动循环。
//   - IDLE: 启动新的 goroutine
//   - RUNNING: 无操作
//   - STOPPING 且循环尚未提交退出: 恢复为 RUNNING，沿用当前循环
//   - STOPPING 且循环已提交退出: 旧循环清理完成后再启动一次
//
// 返回 false 表示本次调用没有改变任何状态。
func (r *Runner) Start(ctx context.Context, loop LoopFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRunning:
		return false
	case StateStopping:
		if r.exiting {
			if r.restart != nil {
				return false
			}
			r.restart = &launch{ctx: ctx, loop: loop}
			r.log.Debug("循环正在退出，排队重启")
			return true
		}
		r.state = StateRunning
		r.revived = &launch{ctx: ctx, loop: loop}
		r.log.Debug("停止前恢复循环")
		return true
	}

	r.state = StateRunning
	r.exiting = false
	r.done = make(chan struct{})
	go r.run(ctx, loop)
	return true
}

// Deactivate 请求循环在当前接收调用返回后退出（协作式）
func (r *Runner) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restart = nil
	r.revived = nil
	if r.state == StateRunning {
		r.state = StateStopping
		r.log.Debug("请求停止循环")
	}
}

// Active 是否处于 RUNNING
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateRunning
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Runs 累计启动过的循环次数
func (r *Runner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// Done 当前循环（含排队的重启）结束时关闭；IDLE 时返回已关闭的 channel
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.done
}

// Wait 等待循环回到 IDLE
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) keepRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateRunning:
		r.revived = nil
		return true
	case StateStopping:
		r.exiting = true
	}
	return false
}

func (r *Runner) run(ctx context.Context, loop LoopFunc) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("监控循环 panic: %v\n%s", p, debug.Stack())
		}
		r.finish()
	}()

	r.log.Info("监控循环已启动")
	if err := loop(ctx, r.keepRunning); err != nil && ctx.Err() == nil {
		r.log.Warnf("监控循环异常退出: %v", err)
		return
	}
	r.log.Info("监控循环已退出")
}

func (r *Runner) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.restart
	if next == nil {
		// 恢复请求发生在循环自行退出之后，按新的启动处理
		next = r.revived
	}
	r.restart = nil
	r.revived = nil
	r.exiting = false

	if next != nil {
		r.state = StateRunning
		go r.run(next.ctx, next.loop)
		return
	}

	r.state = StateIdle
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
}
