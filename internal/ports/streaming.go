package ports

import (
	"context"
	"errors"
)

// 流服务名
const (
	ServiceAccountActivity  = "ACCT_ACTIVITY"
	ServiceLevelOneEquities = "LEVELONE_EQUITIES"
)

// ErrUnexpectedResponse 登录/订阅时收到了非预期的响应码（通常是 token 过期）
var ErrUnexpectedResponse = errors.New("streaming: unexpected response code")

// StreamMessage 一次推送里某个服务的数据帧。
// Content 的每个元素是一条记录，数字字段已被重命名为可读字段名（如 "MESSAGE_TYPE"）；
// 无法识别的字段以 "FIELD_<n>" 保留。
type StreamMessage struct {
	Service   string
	Command   string
	Timestamp int64
	Content   []map[string]any
}

// StreamHandler 推送回调，在接收循环所在 goroutine 上串行调用
type StreamHandler func(ctx context.Context, msg StreamMessage)

// StreamClient 单条推送连接。
//
// NOTE: 一个 StreamClient 只服务一个监控循环；循环退出后丢弃，下次启动重新创建。
type StreamClient interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	AddHandler(service string, handler StreamHandler)

	AccountActivitySub(ctx context.Context) error
	AccountActivityUnsubs(ctx context.Context) error
	LevelOneEquitySubs(ctx context.Context, symbols []string) error
	LevelOneEquityUnsubs(ctx context.Context, symbols []string) error

	// HandleMessage 阻塞直到收到下一批推送，并把其中的数据帧交给已注册的 handler
	HandleMessage(ctx context.Context) error
}

// StreamFactory 为每次监控循环创建新的连接
type StreamFactory func() StreamClient

// Authenticator 重新认证（newToken=false 表示沿用刷新流程/重新读取 token，而不是交互式登录）
type Authenticator interface {
	Reauthenticate(ctx context.Context, newToken bool) error
}
