// Package portstest 提供 ports 接口的内存实现，供各包测试共用。
package portstest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/wetrade/internal/ports"
)

// StreamHub 记录由它创建的所有 FakeStream，并统计同时在线的连接数
type StreamHub struct {
	// LoginErrs 按顺序消费，跨连接共享（用于模拟“第一次登录失败”）
	LoginErrs []error
	// Idle HandleMessage 在没有推送时返回前等待的时间（模拟心跳）
	Idle time.Duration

	mu      sync.Mutex
	streams []*FakeStream
	batches chan []ports.StreamMessage

	live    atomic.Int32
	maxLive atomic.Int32
}

func NewStreamHub() *StreamHub {
	return &StreamHub{
		Idle:    5 * time.Millisecond,
		batches: make(chan []ports.StreamMessage, 64),
	}
}

// Factory 返回 ports.StreamFactory
func (h *StreamHub) Factory() ports.StreamFactory {
	return func() ports.StreamClient {
		s := &FakeStream{hub: h, handlers: make(map[string]ports.StreamHandler)}
		h.mu.Lock()
		h.streams = append(h.streams, s)
		h.mu.Unlock()
		return s
	}
}

// Push 投递一批推送，由当前在线连接的 HandleMessage 取走
func (h *StreamHub) Push(msgs ...ports.StreamMessage) {
	h.batches <- msgs
}

func (h *StreamHub) Streams() []*FakeStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*FakeStream(nil), h.streams...)
}

// Live 当前已登录未登出的连接数
func (h *StreamHub) Live() int { return int(h.live.Load()) }

// MaxLive 历史上同时在线连接数的最大值
func (h *StreamHub) MaxLive() int { return int(h.maxLive.Load()) }

func (h *StreamHub) nextLoginErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.LoginErrs) == 0 {
		return nil
	}
	err := h.LoginErrs[0]
	h.LoginErrs = h.LoginErrs[1:]
	return err
}

// FakeStream ports.StreamClient 的内存实现
type FakeStream struct {
	hub *StreamHub

	mu       sync.Mutex
	handlers map[string]ports.StreamHandler
	loggedIn bool

	Logins       int
	Logouts      int
	AcctSubs     int
	AcctUnsubs   int
	Symbols      []string
	UnsubSymbols []string
	Handled      int
}

func (s *FakeStream) Login(ctx context.Context) error {
	if err := s.hub.nextLoginErr(); err != nil {
		return err
	}
	s.mu.Lock()
	s.Logins++
	s.loggedIn = true
	s.mu.Unlock()

	n := s.hub.live.Add(1)
	for {
		m := s.hub.maxLive.Load()
		if n <= m || s.hub.maxLive.CompareAndSwap(m, n) {
			break
		}
	}
	return nil
}

func (s *FakeStream) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logouts++
	if s.loggedIn {
		s.loggedIn = false
		s.hub.live.Add(-1)
	}
	return nil
}

func (s *FakeStream) AddHandler(service string, handler ports.StreamHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[service] = handler
}

func (s *FakeStream) AccountActivitySub(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AcctSubs++
	return nil
}

func (s *FakeStream) AccountActivityUnsubs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AcctUnsubs++
	return nil
}

func (s *FakeStream) LevelOneEquitySubs(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Symbols = append(s.Symbols, symbols...)
	return nil
}

func (s *FakeStream) LevelOneEquityUnsubs(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnsubSymbols = append(s.UnsubSymbols, symbols...)
	return nil
}

func (s *FakeStream) HandleMessage(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case batch := <-s.hub.batches:
		for _, msg := range batch {
			s.mu.Lock()
			h := s.handlers[msg.Service]
			s.Handled++
			s.mu.Unlock()
			if h != nil {
				h(ctx, msg)
			}
		}
		return nil
	case <-time.After(s.hub.Idle):
		return nil
	}
}

// StreamStats FakeStream 计数器快照
type StreamStats struct {
	Logins       int
	Logouts      int
	AcctSubs     int
	AcctUnsubs   int
	Symbols      []string
	UnsubSymbols []string
	Handled      int
}

// Stats 返回计数器的一致快照
func (s *FakeStream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStats{
		Logins:       s.Logins,
		Logouts:      s.Logouts,
		AcctSubs:     s.AcctSubs,
		AcctUnsubs:   s.AcctUnsubs,
		Symbols:      append([]string(nil), s.Symbols...),
		UnsubSymbols: append([]string(nil), s.UnsubSymbols...),
		Handled:      s.Handled,
	}
}

var _ ports.StreamClient = (*FakeStream)(nil)
