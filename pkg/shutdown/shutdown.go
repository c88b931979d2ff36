package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

var shutdownLog = logrus.WithField("component", "shutdown")

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器。回调按注册的逆序依次执行：
// 先注册的是底层资源（journal、notifier），最后关闭。
type Manager struct {
	mu        sync.Mutex
	callbacks []namedHandler
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown 执行所有关闭回调（阻塞，只执行一次）。
// ctx 应带超时；超时后剩余回调仍会被调用，但拿到的是已取消的 ctx。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		shutdownLog.Info("没有注册的关闭回调")
		return
	}
	shutdownLog.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := cb.fn(ctx); err != nil {
			shutdownLog.Warnf("关闭 %s 失败: %v", cb.name, err)
			continue
		}
		shutdownLog.Debugf("已关闭 %s", cb.name)
	}

	if ctx.Err() != nil {
		shutdownLog.Warnf("关闭超时: %v", ctx.Err())
		return
	}
	shutdownLog.Info("所有关闭回调已完成")
}

// WaitForSignal 阻塞到收到 SIGINT/SIGTERM 或 ctx 结束
func WaitForSignal(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		shutdownLog.Infof("收到信号 %v，准备退出", sig)
		return sig
	case <-ctx.Done():
		return nil
	}
}
