package quote

import (
	"context"
	"fmt"
)

// MultiQuote 多标的（最多 MaxSymbols 个）行情跟踪，共用一条推送连接
type MultiQuote struct {
	*Tracker
}

// NewMultiQuote 创建多标的行情跟踪（不自动启动）
func NewMultiQuote(ctx context.Context, deps Deps, symbols []string, opts Options) (*MultiQuote, error) {
	t, err := newTracker(ctx, deps, symbols, opts)
	if err != nil {
		return nil, err
	}
	return &MultiQuote{Tracker: t}, nil
}

// LastPrices 推送得到的最新成交价（尚未收到的标的不出现）
func (m *MultiQuote) LastPrices() map[string]float64 {
	out := make(map[string]float64, len(m.symbols))
	for _, snap := range m.state.All() {
		if snap.HasLast() {
			out[snap.Symbol] = snap.LastPrice
		}
	}
	return out
}

// GetLastPrices REST 查询所有标的的最新成交价
func (m *MultiQuote) GetLastPrices(ctx context.Context) (map[string]float64, error) {
	quotes, err := m.deps.API.GetQuotes(ctx, m.symbols)
	if err != nil {
		m.log.Warnf("获取报价失败: %v", err)
		return nil, fmt.Errorf("get quotes: %w", err)
	}
	out := make(map[string]float64, len(quotes))
	for _, sym := range m.symbols {
		if rec, ok := quotes[sym]; ok {
			out[sym] = rec.LastPrice
		}
	}
	return out, nil
}
