package account

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/monitor"
	"github.com/betbot/wetrade/internal/ports"
)

// streamAccountUpdates 后台循环主体：登录 → 注册 handler → 订阅 ACCT_ACTIVITY → 接收 → 退订 → 登出。
// 接收出错且仍处于活跃状态时按线性退避重连。
func (a *Account) streamAccountUpdates(ctx context.Context, keepRunning func() bool) error {
	err := monitor.Supervise(ctx, keepRunning, monitor.ReconnectPolicy{
		MaxReconnects: a.opts.MaxReconnects,
		Delay:         a.opts.ReconnectDelay,
	}, a.runSession, a.log)
	if err != nil && ctx.Err() == nil {
		msg := fmt.Sprintf("Account stream stopped: %v", err)
		// 索引中剩余的订单在下一次 AddOrderSubscription 重启循环前不会再收到推送
		if ids := a.SubscribedIDs(); len(ids) > 0 {
			sort.Strings(ids)
			msg += fmt.Sprintf("; no push updates for orders %s until the stream restarts", strings.Join(ids, ", "))
		}
		a.notifyError(msg)
	}
	return err
}

func (a *Account) runSession(ctx context.Context, keepRunning func() bool) (bool, error) {
	stream, err := a.login(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		// 退出时 ctx 可能已取消，清理用独立的超时
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := stream.AccountActivityUnsubs(cleanupCtx); err != nil {
			a.log.Debugf("退订 ACCT_ACTIVITY 失败: %v", err)
		}
		if err := stream.Logout(cleanupCtx); err != nil {
			a.log.Debugf("登出推送会话失败: %v", err)
		}
	}()

	stream.AddHandler(ports.ServiceAccountActivity, a.HandleMessage)
	if err := stream.AccountActivitySub(ctx); err != nil {
		return true, fmt.Errorf("subscribe account activity: %w", err)
	}
	a.log.Info("已订阅账户推送")

	for keepRunning() {
		if err := stream.HandleMessage(ctx); err != nil {
			return true, fmt.Errorf("receive: %w", err)
		}
	}
	return true, nil
}

func (a *Account) login(ctx context.Context) (ports.StreamClient, error) {
	return monitor.Connect(ctx, a.deps.Streams, a.deps.Auth, monitor.LoginPolicy{
		Retries: a.opts.AuthRetries,
		Backoff: a.opts.AuthBackoff,
	}, a.log)
}

func (a *Account) notifyError(msg string) {
	a.log.Error(msg)
	a.deps.Notifier.Notify(domain.Event{
		ID:      uuid.NewString(),
		Time:    time.Now(),
		Kind:    domain.EventError,
		Level:   domain.LevelError,
		Message: fmt.Sprintf("%s: %s", time.Now().Format("15:04:05"), msg),
	})
}
