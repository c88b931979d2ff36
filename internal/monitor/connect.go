package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/ports"
)

// ErrAuthRetriesExhausted 多次重新认证后推送登录仍然失败
var ErrAuthRetriesExhausted = errors.New("streaming login retries exhausted")

// LoginPolicy 推送登录的重试策略
type LoginPolicy struct {
	// Retries ErrUnexpectedResponse 后最多重试的次数（不含第一次）
	Retries int
	// Backoff 指数退避的初始间隔
	Backoff time.Duration
}

// Connect 创建新连接并登录。
// 登录返回 ports.ErrUnexpectedResponse 时先重新认证（沿用已有 token），再按指数退避重试整个启动过程；
// 其他错误不重试。
func Connect(ctx context.Context, streams ports.StreamFactory, auth ports.Authenticator, policy LoginPolicy, log *logrus.Entry) (ports.StreamClient, error) {
	if log == nil {
		log = monitorLog
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 500 * time.Millisecond
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}

	attempt := 0
	op := func() (ports.StreamClient, error) {
		attempt++
		stream := streams()
		err := stream.Login(ctx)
		if err == nil {
			return stream, nil
		}
		if !errors.Is(err, ports.ErrUnexpectedResponse) {
			return nil, backoff.Permanent(fmt.Errorf("stream login: %w", err))
		}
		log.Warnf("推送登录收到非预期响应，重新认证后重试 (第 %d 次): %v", attempt, err)
		if auth != nil {
			if rerr := auth.Reauthenticate(ctx, false); rerr != nil {
				log.Warnf("重新认证失败: %v", rerr)
			}
		}
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.Backoff
	b.MaxInterval = 30 * time.Second

	stream, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(policy.Retries)+1),
	)
	if err != nil {
		if errors.Is(err, ports.ErrUnexpectedResponse) {
			return nil, fmt.Errorf("%w: %w", ErrAuthRetriesExhausted, err)
		}
		return nil, err
	}
	return stream, nil
}
