package account

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/wetrade/internal/domain"
)

// ListAccounts 当前用户关联的账户号与 hash
func (a *Account) ListAccounts(ctx context.Context) ([]domain.AccountNumber, error) {
	numbers, err := a.deps.API.GetAccountNumbers(ctx)
	if err != nil {
		a.log.Warnf("获取账户列表失败: %v", err)
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return numbers, nil
}

// ViewAccounts 所有关联账户的详情
func (a *Account) ViewAccounts(ctx context.Context) ([]domain.AccountInfo, error) {
	accounts, err := a.deps.API.GetAccounts(ctx, false)
	if err != nil {
		a.log.Warnf("获取账户详情失败: %v", err)
		return nil, fmt.Errorf("view accounts: %w", err)
	}
	return accounts, nil
}

// CheckBalance 账户清算价值
func (a *Account) CheckBalance(ctx context.Context) (decimal.Decimal, error) {
	info, err := a.deps.API.GetAccount(ctx, a.key, false)
	if err != nil {
		a.log.Warnf("获取账户余额失败: %v", err)
		return decimal.Zero, fmt.Errorf("check balance: %w", err)
	}
	return info.AggregatedBalance.LiquidationValue, nil
}

// ViewPortfolio 账户详情（含持仓）
func (a *Account) ViewPortfolio(ctx context.Context) (*domain.AccountInfo, error) {
	info, err := a.deps.API.GetAccount(ctx, a.key, true)
	if err != nil {
		a.log.Warnf("获取持仓失败: %v", err)
		return nil, fmt.Errorf("view portfolio: %w", err)
	}
	return info, nil
}

// GetOrderHistory 时间范围内的订单；from/to 为零值时默认最近 24 小时
func (a *Account) GetOrderHistory(ctx context.Context, from, to time.Time) ([]domain.OrderRecord, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if from.After(to) {
		return nil, fmt.Errorf("order history: from %s is after to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	orders, err := a.deps.API.GetOrdersForAccount(ctx, a.key, from, to)
	if err != nil {
		a.log.Warnf("获取订单历史失败: %v", err)
		return nil, fmt.Errorf("order history: %w", err)
	}
	return orders, nil
}
