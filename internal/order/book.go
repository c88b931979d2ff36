package order

import (
	"sort"
	"sync"

	"github.com/betbot/wetrade/internal/domain"
)

// Book 进程内创建过的订单（按创建顺序），供状态接口列出
type Book struct {
	mu     sync.RWMutex
	orders []*Order
}

func NewBook() *Book { return &Book{} }

// Add 记录订单；同一个 *Order 只记录一次
func (b *Book) Add(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, x := range b.orders {
		if x == o {
			return
		}
	}
	b.orders = append(b.orders, o)
}

// Get 按订单号查找（未下单的订单没有订单号，查不到）
func (b *Book) Get(id string) (*Order, bool) {
	if id == "" {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.orders {
		if o.OrderID() == id {
			return o, true
		}
	}
	return nil, false
}

// Snapshots 所有订单快照，最近更新的在前
func (b *Book) Snapshots() []domain.OrderSnapshot {
	b.mu.RLock()
	out := make([]domain.OrderSnapshot, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o.Snapshot())
	}
	b.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Open 尚未进入终态的订单
func (b *Book) Open() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Order
	for _, o := range b.orders {
		if !o.Status().IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}
