package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/metrics"
	"github.com/betbot/wetrade/internal/ports"
)

var notifyLog = logrus.WithField("component", "notify")

const (
	DefaultBuffer = 256
	DefaultRecent = 100
)

// Sink 事件的持久化/转发目标
type Sink interface {
	Write(ctx context.Context, ev domain.Event) error
}

// Notifier 用户消息出口：Notify 只做非阻塞投递，由后台 goroutine 写日志和 Sink。
// 缓冲区满时直接丢弃，保证核心循环永远不会被日志拖慢。
type Notifier struct {
	ch    chan domain.Event
	sinks []Sink
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	recentMu sync.Mutex
	recent   []domain.Event
	keep     int

	dropped atomic.Int64
}

// Option 配置项
type Option func(*Notifier)

// WithBuffer 投递缓冲区大小
func WithBuffer(n int) Option {
	return func(nt *Notifier) {
		if n > 0 {
			nt.ch = make(chan domain.Event, n)
		}
	}
}

// WithRecent 内存中保留最近 n 条事件（状态接口使用）
func WithRecent(n int) Option {
	return func(nt *Notifier) {
		if n >= 0 {
			nt.keep = n
		}
	}
}

// WithSink 追加 Sink
func WithSink(s Sink) Option {
	return func(nt *Notifier) {
		if s != nil {
			nt.sinks = append(nt.sinks, s)
		}
	}
}

// New 创建并启动后台写入 goroutine
func New(opts ...Option) *Notifier {
	n := &Notifier{
		ch:   make(chan domain.Event, DefaultBuffer),
		done: make(chan struct{}),
		keep: DefaultRecent,
	}
	for _, o := range opts {
		o(n)
	}
	go n.loop()
	return n
}

// Notify 投递事件；补齐 ID/Time/Level，关闭后或缓冲满时丢弃
func (n *Notifier) Notify(ev domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Level == "" {
		ev.Level = domain.LevelInfo
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.drop()
		return
	}
	select {
	case n.ch <- ev:
	default:
		n.drop()
	}
}

func (n *Notifier) drop() {
	if n.dropped.Add(1)%100 == 1 {
		notifyLog.Warnf("事件缓冲已满或已关闭，丢弃事件（累计 %d）", n.dropped.Load())
	}
	metrics.EventsDropped.Add(1)
}

// Dropped 累计丢弃的事件数
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Recent 最近的事件（旧 → 新）
func (n *Notifier) Recent() []domain.Event {
	n.recentMu.Lock()
	defer n.recentMu.Unlock()
	return append([]domain.Event(nil), n.recent...)
}

// Close 停止接收并等待缓冲中的事件写完
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) loop() {
	defer close(n.done)
	for ev := range n.ch {
		n.write(ev)
	}
}

func (n *Notifier) write(ev domain.Event) {
	entry := notifyLog.WithField("kind", ev.Kind)
	if ev.OrderID != "" {
		entry = entry.WithField("order_id", ev.OrderID)
	}
	if ev.Symbol != "" {
		entry = entry.WithField("symbol", ev.Symbol)
	}
	switch ev.Level {
	case domain.LevelError:
		entry.Error(ev.Message)
	case domain.LevelWarn:
		entry.Warn(ev.Message)
	default:
		entry.Info(ev.Message)
	}
	metrics.EventsWritten.Add(1)

	if n.keep > 0 {
		n.recentMu.Lock()
		n.recent = append(n.recent, ev)
		if len(n.recent) > n.keep {
			n.recent = n.recent[len(n.recent)-n.keep:]
		}
		n.recentMu.Unlock()
	}

	for _, s := range n.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Write(ctx, ev); err != nil {
			notifyLog.Debugf("写入事件 sink 失败: %v", err)
		}
		cancel()
	}
}

var _ ports.Notifier = (*Notifier)(nil)
