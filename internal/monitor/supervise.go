package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/metrics"
)

// ReconnectPolicy 连接断开后的重连策略：第 n 次重连前等待 Delay*n
type ReconnectPolicy struct {
	MaxReconnects int
	Delay         time.Duration
}

// SessionFunc 一次完整的连接会话；connected 表示本次会话曾经登录成功
type SessionFunc func(ctx context.Context, keepRunning func() bool) (connected bool, err error)

// ErrMaxReconnects 重连次数用尽
var ErrMaxReconnects = errors.New("max reconnects reached")

// Supervise 反复运行 session，直到其正常返回、ctx 结束、循环被停止，或重连次数用尽。
// 登录重试耗尽（ErrAuthRetriesExhausted）不再重连。
func Supervise(ctx context.Context, keepRunning func() bool, policy ReconnectPolicy, session SessionFunc, log *logrus.Entry) error {
	if log == nil {
		log = monitorLog
	}
	if policy.MaxReconnects <= 0 {
		policy.MaxReconnects = 10
	}
	if policy.Delay <= 0 {
		policy.Delay = time.Second
	}

	reconnects := 0
	for {
		connected, err := session(ctx, keepRunning)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if errors.Is(err, ErrAuthRetriesExhausted) {
			return err
		}
		if !keepRunning() {
			return nil
		}
		if connected {
			reconnects = 0
		}
		metrics.StreamErrors.Add(1)
		reconnects++
		if reconnects > policy.MaxReconnects {
			return fmt.Errorf("%w (%d): %w", ErrMaxReconnects, policy.MaxReconnects, err)
		}

		metrics.Reconnects.Add(1)
		delay := policy.Delay * time.Duration(reconnects)
		log.Warnf("推送连接异常，%v 后重连 (%d/%d): %v", delay, reconnects, policy.MaxReconnects, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if !keepRunning() {
			return nil
		}
	}
}
