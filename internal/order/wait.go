package order

import (
	"context"
	"fmt"
	"time"

	"github.com/betbot/wetrade/internal/domain"
)

// Continuation 达到目标状态后在等待者所在 goroutine 上执行
type Continuation func(ctx context.Context) error

// DisableWaiting 让所有进行中的 WaitForStatus 在下一轮返回 ErrWaitDisabled
func (o *Order) DisableWaiting() { o.waitDisabled.Store(true) }

// EnableWaiting 恢复等待
func (o *Order) EnableWaiting() { o.waitDisabled.Store(false) }

// WaitForStatus 等待本地缓存的状态变为 target（只观察推送/查询写入的结果，不主动发请求）。
//
// 退出条件：
//   - REJECTED：无论 target 是什么都走拒单通知，返回 ErrOrderRejected，不执行 then
//   - 达到 target：执行 then 并返回其错误
//   - CANCELED / EXECUTED / EXPIRED（非 target）：返回 ErrOrderFinished
//
// 以上情况都会取消订阅。DisableWaiting 或 ctx 结束时直接返回，保留订阅。
func (o *Order) WaitForStatus(ctx context.Context, target domain.OrderStatus, then Continuation) error {
	if o.OrderID() == "" {
		return ErrNotPlaced
	}
	target = domain.NormalizeOrderStatus(string(target))
	o.CreateSubscription(ctx)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		if o.waitDisabled.Load() {
			return ErrWaitDisabled
		}

		status, changed := o.statusAndSignal()
		switch {
		case status == domain.OrderStatusRejected:
			o.CancelSubscription()
			o.handleRejected()
			return ErrOrderRejected

		case status == target:
			o.CancelSubscription()
			orderLog.Infof("订单 %s 已达到状态 %s", o.OrderID(), status)
			if then != nil {
				return then(ctx)
			}
			return nil

		case status.StopsWaiting():
			o.CancelSubscription()
			o.notify(domain.EventOrderFinished, domain.LevelInfo, fmt.Sprintf(
				"Order # %s %s - no longer waiting (Account: %s)", o.OrderID(), status, shortKey(o.hub.AccountHash())))
			return fmt.Errorf("%w: %s", ErrOrderFinished, status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}

func (o *Order) handleRejected() {
	orderLog.Warnf("订单被拒绝: %s %s", o.OrderID(), o.spec.Symbol)
	o.notify(domain.EventOrderRejected, domain.LevelWarn, fmt.Sprintf(
		"Order %s REJECTED - no longer waiting (Account: %s)", o.OrderID(), shortKey(o.hub.AccountHash())))
}
