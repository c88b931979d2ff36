package order

import (
	"context"
	"time"
)

// CreateSubscription 注册到账户订阅中心以接收推送更新。幂等；未下单时无操作。
// 注册前先查询一次状态，注册后再安排一次延迟检查，覆盖注册与首条推送之间的窗口。
// 与 CancelSubscription 互斥，订单与订阅中心的索引保持一致。
func (o *Order) CreateSubscription(ctx context.Context) {
	o.subMu.Lock()
	defer o.subMu.Unlock()

	o.mu.Lock()
	if o.subscribed || o.id == "" {
		o.mu.Unlock()
		return
	}
	o.subscribed = true
	o.mu.Unlock()

	o.CheckStatus(ctx)
	o.hub.AddOrderSubscription(ctx, o)

	bg := context.WithoutCancel(ctx)
	timer := time.AfterFunc(o.recheckDelay, func() {
		if o.Subscribed() {
			o.CheckStatus(bg)
		}
	})

	o.mu.Lock()
	if o.recheck != nil {
		o.recheck.Stop()
	}
	o.recheck = timer
	o.mu.Unlock()
}

// CancelSubscription 从订阅中心移除；不停止共享的监控循环
func (o *Order) CancelSubscription() {
	o.subMu.Lock()
	defer o.subMu.Unlock()

	o.mu.Lock()
	if !o.subscribed {
		o.mu.Unlock()
		return
	}
	o.subscribed = false
	if o.recheck != nil {
		o.recheck.Stop()
		o.recheck = nil
	}
	id := o.id
	o.mu.Unlock()

	o.hub.RemoveOrderSubscription(id, false)
}

// PlaceAndSubscribe 下单成功后立即订阅
func (o *Order) PlaceAndSubscribe(ctx context.Context) bool {
	if !o.Place(ctx) {
		return false
	}
	o.CreateSubscription(ctx)
	return true
}
