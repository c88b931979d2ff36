package quote

import (
	"context"
	"fmt"

	"github.com/betbot/wetrade/internal/domain"
)

// Quote 单个标的的行情跟踪
type Quote struct {
	*Tracker
	symbol string
}

// NewQuote 创建单标的行情跟踪（不自动启动）
func NewQuote(ctx context.Context, deps Deps, symbol string, opts Options) (*Quote, error) {
	t, err := newTracker(ctx, deps, []string{symbol}, opts)
	if err != nil {
		return nil, err
	}
	return &Quote{Tracker: t, symbol: t.symbols[0]}, nil
}

func (q *Quote) Symbol() string { return q.symbol }

// LastPrice 推送得到的最新成交价，尚未收到时为 0
func (q *Quote) LastPrice() float64 {
	snap, _ := q.state.Get(q.symbol)
	return snap.LastPrice
}

// WaitForPriceFall 等待价格严格跌破 threshold
func (q *Quote) WaitForPriceFall(ctx context.Context, threshold float64, then Continuation) error {
	return q.Tracker.WaitForPriceFall(ctx, q.symbol, threshold, then)
}

// WaitForPriceRise 等待价格严格涨破 threshold
func (q *Quote) WaitForPriceRise(ctx context.Context, threshold float64, then Continuation) error {
	return q.Tracker.WaitForPriceRise(ctx, q.symbol, threshold, then)
}

func (q *Quote) RunBelowPrice(threshold float64, fn Continuation) {
	q.Tracker.RunBelowPrice(q.symbol, threshold, fn)
}

func (q *Quote) RunAbovePrice(threshold float64, fn Continuation) {
	q.Tracker.RunAbovePrice(q.symbol, threshold, fn)
}

// GetQuote REST 查询当前报价
func (q *Quote) GetQuote(ctx context.Context) (domain.QuoteRecord, error) {
	quotes, err := q.deps.API.GetQuotes(ctx, []string{q.symbol})
	if err != nil {
		q.log.Warnf("获取报价失败: %v", err)
		return domain.QuoteRecord{}, fmt.Errorf("get quote %s: %w", q.symbol, err)
	}
	rec, ok := quotes[q.symbol]
	if !ok {
		return domain.QuoteRecord{}, fmt.Errorf("%w: %s missing from response", ErrUnknownSymbol, q.symbol)
	}
	return rec, nil
}

// GetLastPrice REST 查询最新成交价
func (q *Quote) GetLastPrice(ctx context.Context) (float64, error) {
	rec, err := q.GetQuote(ctx)
	if err != nil {
		return 0, err
	}
	return rec.LastPrice, nil
}

// GetOpen 当日开盘价
func (q *Quote) GetOpen(ctx context.Context) (float64, error) {
	rec, err := q.GetQuote(ctx)
	if err != nil {
		return 0, err
	}
	return rec.OpenPrice, nil
}
