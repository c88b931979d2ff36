package portstest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/ports"
)

// ErrTransport 模拟网络错误
var ErrTransport = errors.New("portstest: transport failure")

// OrderAPI ports.OrderAPI 的可编排实现
type OrderAPI struct {
	mu sync.Mutex

	PlaceResult *domain.PlaceResult
	PlaceErr    error
	Record      *domain.OrderRecord
	GetErr      error
	CancelErr   error
	// GetDelay GetOrder 返回前的等待时间
	GetDelay time.Duration

	Placed    []domain.OrderPayload
	GetCalls  map[string]int
	Cancelled []string
}

func NewOrderAPI() *OrderAPI {
	return &OrderAPI{GetCalls: make(map[string]int)}
}

func (a *OrderAPI) PlaceOrder(ctx context.Context, accountHash string, payload domain.OrderPayload) (*domain.PlaceResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Placed = append(a.Placed, payload)
	if a.PlaceErr != nil {
		return nil, a.PlaceErr
	}
	return a.PlaceResult, nil
}

func (a *OrderAPI) GetOrder(ctx context.Context, accountHash, orderID string) (*domain.OrderRecord, error) {
	a.mu.Lock()
	delay := a.GetDelay
	a.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.GetCalls == nil {
		a.GetCalls = make(map[string]int)
	}
	a.GetCalls[orderID]++
	if a.GetErr != nil {
		return nil, a.GetErr
	}
	if a.Record == nil {
		return nil, ErrTransport
	}
	rec := *a.Record
	return &rec, nil
}

func (a *OrderAPI) CancelOrder(ctx context.Context, accountHash, orderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Cancelled = append(a.Cancelled, orderID)
	return a.CancelErr
}

// SetStatus 修改后续 GetOrder 返回的状态
func (a *OrderAPI) SetStatus(status string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Record == nil {
		a.Record = &domain.OrderRecord{}
	}
	a.Record.Status = status
	a.GetErr = nil
}

// SetGetErr 让后续 GetOrder 失败
func (a *OrderAPI) SetGetErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.GetErr = err
}

func (a *OrderAPI) Calls(orderID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.GetCalls[orderID]
}

// Hub ports.SubscriptionHub 的记录型实现
type Hub struct {
	Hash string

	mu      sync.Mutex
	subs    map[string]ports.OrderSubscriber
	Adds    int
	Removes []Removal
}

// Removal 一次 RemoveOrderSubscription 调用
type Removal struct {
	OrderID    string
	Deactivate bool
}

func NewHub(hash string) *Hub {
	return &Hub{Hash: hash, subs: make(map[string]ports.OrderSubscriber)}
}

func (h *Hub) AccountHash() string { return h.Hash }

func (h *Hub) AddOrderSubscription(ctx context.Context, sub ports.OrderSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Adds++
	h.subs[sub.OrderID()] = sub
}

func (h *Hub) RemoveOrderSubscription(orderID string, deactivateIfEmpty bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, orderID)
	h.Removes = append(h.Removes, Removal{OrderID: orderID, Deactivate: deactivateIfEmpty})
}

func (h *Hub) Subscribed(orderID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[orderID]
	return ok
}

func (h *Hub) Counts() (adds int, removes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Adds, len(h.Removes)
}

// Notifier 记录所有事件
type Notifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *Notifier) Notify(ev domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *Notifier) Events() []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Event(nil), n.events...)
}

// Count 某类事件的数量
func (n *Notifier) Count(kind domain.EventKind) int {
	c := 0
	for _, ev := range n.Events() {
		if ev.Kind == kind {
			c++
		}
	}
	return c
}

// Clock ports.MarketClock 的手动实现
type Clock struct {
	closed atomic.Bool
}

func (c *Clock) HasMarketClosed() bool { return c.closed.Load() }

func (c *Clock) SetClosed(v bool) { c.closed.Store(v) }

// Auth 统计重新认证次数
type Auth struct {
	Err   error
	calls atomic.Int32
}

func (a *Auth) Reauthenticate(ctx context.Context, newToken bool) error {
	a.calls.Add(1)
	return a.Err
}

func (a *Auth) Calls() int { return int(a.calls.Load()) }

// Eventually 在 timeout 内轮询 cond
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

var (
	_ ports.OrderAPI        = (*OrderAPI)(nil)
	_ ports.SubscriptionHub = (*Hub)(nil)
	_ ports.Notifier        = (*Notifier)(nil)
	_ ports.MarketClock     = (*Clock)(nil)
	_ ports.Authenticator   = (*Auth)(nil)
)
