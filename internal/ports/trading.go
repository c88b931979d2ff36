package ports

import (
	"context"
	"time"

	"github.com/betbot/wetrade/internal/domain"
)

// Small capability interfaces shared across layers (order/account/quote and the REST adapter).

type OrderAPI interface {
	// PlaceOrder 返回原始状态码和 Location 头；是否成功由调用方判断
	PlaceOrder(ctx context.Context, accountHash string, payload domain.OrderPayload) (*domain.PlaceResult, error)
	GetOrder(ctx context.Context, accountHash, orderID string) (*domain.OrderRecord, error)
	CancelOrder(ctx context.Context, accountHash, orderID string) error
}

type AccountAPI interface {
	GetAccountNumbers(ctx context.Context) ([]domain.AccountNumber, error)
	GetAccounts(ctx context.Context, withPositions bool) ([]domain.AccountInfo, error)
	GetAccount(ctx context.Context, accountHash string, withPositions bool) (*domain.AccountInfo, error)
	GetOrdersForAccount(ctx context.Context, accountHash string, from, to time.Time) ([]domain.OrderRecord, error)
}

type QuoteAPI interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]domain.QuoteRecord, error)
}

type MarketHoursAPI interface {
	GetMarketHours(ctx context.Context, date time.Time) (*domain.MarketSession, error)
}

// MarketClock 监控循环每轮检查一次
type MarketClock interface {
	HasMarketClosed() bool
}

// Notifier 用户可见的叙述输出，不能阻塞调用方
type Notifier interface {
	Notify(ev domain.Event)
}
