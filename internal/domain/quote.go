package domain

import "time"

// QuoteSnapshot 某个标的的最新行情（未收到的字段保持上一次的值）
type QuoteSnapshot struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"last_price"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	BidSize   float64   `json:"bid_size"`
	AskSize   float64   `json:"ask_size"`
	LastSize  float64   `json:"last_size"`
	QuoteTime time.Time `json:"quote_time"`
	TradeTime time.Time `json:"trade_time"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLast 是否已经收到过成交价
func (q QuoteSnapshot) HasLast() bool {
	return q.LastPrice > 0
}

// QuoteUpdate 一条 LEVELONE 推送里的增量字段，nil 表示本条消息没有该字段
type QuoteUpdate struct {
	Symbol    string
	LastPrice *float64
	BidPrice  *float64
	AskPrice  *float64
	BidSize   *float64
	AskSize   *float64
	LastSize  *float64
	QuoteTime *time.Time
	TradeTime *time.Time
}

// Apply 将增量合并到快照上："有新值用新值，否则保留旧值"
func (u QuoteUpdate) Apply(prev QuoteSnapshot) QuoteSnapshot {
	next := prev
	next.Symbol = u.Symbol
	if u.LastPrice != nil {
		next.LastPrice = *u.LastPrice
	}
	if u.BidPrice != nil {
		next.BidPrice = *u.BidPrice
	}
	if u.AskPrice != nil {
		next.AskPrice = *u.AskPrice
	}
	if u.BidSize != nil {
		next.BidSize = *u.BidSize
	}
	if u.AskSize != nil {
		next.AskSize = *u.AskSize
	}
	if u.LastSize != nil {
		next.LastSize = *u.LastSize
	}
	if u.QuoteTime != nil {
		next.QuoteTime = *u.QuoteTime
	}
	if u.TradeTime != nil {
		next.TradeTime = *u.TradeTime
	}
	return next
}

// QuoteRecord REST 报价接口里单个标的的 quote 部分
type QuoteRecord struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"lastPrice"`
	BidPrice    float64 `json:"bidPrice"`
	AskPrice    float64 `json:"askPrice"`
	OpenPrice   float64 `json:"openPrice"`
	HighPrice   float64 `json:"highPrice"`
	LowPrice    float64 `json:"lowPrice"`
	ClosePrice  float64 `json:"closePrice"`
	TotalVolume int64   `json:"totalVolume"`
}

// MarketSession 单日常规交易时段（美东时间）
type MarketSession struct {
	Date  time.Time
	Open  time.Time
	Close time.Time
	// IsOpen 为 false 表示当天休市（周末/节假日）
	IsOpen bool
}
