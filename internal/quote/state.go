package quote

import (
	"sort"
	"sync"
	"time"

	"github.com/betbot/wetrade/internal/domain"
)

// PriceState 各标的最新行情。条目只会被覆盖，不会被删除；每个标的的 UpdatedAt 严格递增。
type PriceState struct {
	mu      sync.RWMutex
	quotes  map[string]domain.QuoteSnapshot
	changed chan struct{}
}

func NewPriceState() *PriceState {
	return &PriceState{
		quotes:  make(map[string]domain.QuoteSnapshot),
		changed: make(chan struct{}),
	}
}

// Apply 合并一条增量并唤醒等待者
func (s *PriceState) Apply(u domain.QuoteUpdate) domain.QuoteSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.quotes[u.Symbol]
	next := u.Apply(prev)

	now := time.Now()
	if !now.After(prev.UpdatedAt) {
		now = prev.UpdatedAt.Add(time.Nanosecond)
	}
	next.UpdatedAt = now
	s.quotes[u.Symbol] = next

	close(s.changed)
	s.changed = make(chan struct{})
	return next
}

// Get 单个标的的快照
func (s *PriceState) Get(symbol string) (domain.QuoteSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// All 按标的排序的全部快照
func (s *PriceState) All() []domain.QuoteSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuoteSnapshot, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *PriceState) getWithSignal(symbol string) (domain.QuoteSnapshot, bool, <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok, s.changed
}

// Changed 下一次写入时关闭
func (s *PriceState) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}
