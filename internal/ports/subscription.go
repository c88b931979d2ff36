package ports

import (
	"context"

	"github.com/betbot/wetrade/internal/domain"
)

// OrderSubscriber 被订阅中心持有引用（不持有所有权）的订单。
// order 与 account 都只依赖本包。
type OrderSubscriber interface {
	OrderID() string
	CheckStatus(ctx context.Context) (domain.OrderStatus, bool)
}

// SubscriptionHub 账户侧的订阅中心
type SubscriptionHub interface {
	AccountHash() string
	AddOrderSubscription(ctx context.Context, sub OrderSubscriber)
	RemoveOrderSubscription(orderID string, deactivateIfEmpty bool)
}
