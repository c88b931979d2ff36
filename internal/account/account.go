// Package account 是账户侧的订阅中心：维护已订阅订单的索引，
// 并驱动共享的 ACCT_ACTIVITY 推送循环，把订单更新路由到对应订单。
package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/monitor"
	"github.com/betbot/wetrade/internal/ports"
)

var accountLog = logrus.WithField("component", "account")

var (
	ErrNoAccounts           = errors.New("account: no linked accounts")
	ErrAuthRetriesExhausted = monitor.ErrAuthRetriesExhausted
)

// Deps 外部协作者
type Deps struct {
	API      ports.AccountAPI
	Streams  ports.StreamFactory
	Auth     ports.Authenticator
	Notifier ports.Notifier
}

// Options 账户配置
type Options struct {
	// AccountKey 账户 hash；为空时取第一个关联账户
	AccountKey string
	// MonitorOnStart 创建后立即启动后台推送循环
	MonitorOnStart bool

	AuthRetries    int
	AuthBackoff    time.Duration
	MaxReconnects  int
	ReconnectDelay time.Duration
}

func (o *Options) setDefaults() {
	if o.AuthRetries <= 0 {
		o.AuthRetries = 3
	}
	if o.AuthBackoff <= 0 {
		o.AuthBackoff = 500 * time.Millisecond
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 10
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
}

// Account 订阅中心
type Account struct {
	deps Deps
	opts Options
	key  string
	log  *logrus.Entry

	// ctx 后台循环使用的长生命周期 context，Close 时取消
	ctx    context.Context
	cancel context.CancelFunc

	monitor *monitor.Runner

	mu   sync.RWMutex
	subs map[string]ports.OrderSubscriber

	statsMu    sync.Mutex
	batches    int64
	dispatched int64
	lastBatch  time.Time
}

// New 创建账户。未指定 AccountKey 时查询关联账户并取第一个的 hash。
func New(ctx context.Context, deps Deps, opts Options) (*Account, error) {
	opts.setDefaults()
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}

	key := opts.AccountKey
	if key == "" {
		if deps.API == nil {
			return nil, fmt.Errorf("account: no account key and no account api")
		}
		numbers, err := deps.API.GetAccountNumbers(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve account key: %w", err)
		}
		if len(numbers) == 0 {
			return nil, ErrNoAccounts
		}
		key = numbers[0].HashValue
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &Account{
		deps:    deps,
		opts:    opts,
		key:     key,
		log:     accountLog.WithField("account", shortKey(key)),
		ctx:     bg,
		cancel:  cancel,
		monitor: monitor.NewRunner("account:" + shortKey(key)),
		subs:    make(map[string]ports.OrderSubscriber),
	}
	if opts.MonitorOnStart {
		a.MonitorInBackground()
	}
	return a, nil
}

// AccountHash 交易接口使用的账户 hash
func (a *Account) AccountHash() string { return a.key }

// AddOrderSubscription 加入索引并确保后台循环在运行
func (a *Account) AddOrderSubscription(ctx context.Context, sub ports.OrderSubscriber) {
	id := sub.OrderID()
	if id == "" {
		return
	}
	a.mu.Lock()
	a.subs[id] = sub
	n := len(a.subs)
	a.mu.Unlock()

	a.log.Debugf("订阅订单 %s（当前 %d 个）", id, n)
	a.MonitorInBackground()
}

// RemoveOrderSubscription 从索引删除；索引变空且 deactivateIfEmpty 时停止后台循环
func (a *Account) RemoveOrderSubscription(orderID string, deactivateIfEmpty bool) {
	a.mu.Lock()
	delete(a.subs, orderID)
	empty := len(a.subs) == 0
	a.mu.Unlock()

	if empty && deactivateIfEmpty {
		a.log.Info("没有订阅的订单，停止推送循环")
		a.monitor.Deactivate()
	}
}

// Subscribed 订单是否在索引中
func (a *Account) Subscribed(orderID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.subs[orderID]
	return ok
}

// SubscribedIDs 当前订阅的订单号
func (a *Account) SubscribedIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.subs))
	for id := range a.subs {
		ids = append(ids, id)
	}
	return ids
}

// MonitorInBackground 启动后台推送循环（已在运行时无操作）
func (a *Account) MonitorInBackground() bool {
	return a.monitor.Start(a.ctx, a.streamAccountUpdates)
}

// Monitoring 后台循环是否处于运行状态
func (a *Account) Monitoring() bool { return a.monitor.Active() }

// StopMonitoring 协作式停止后台循环
func (a *Account) StopMonitoring() { a.monitor.Deactivate() }

// Status 状态快照
type Status struct {
	AccountKey    string   `json:"account_key"`
	Monitor       string   `json:"monitor"`
	Subscriptions []string `json:"subscriptions"`
	Batches       int64    `json:"batches"`
	Dispatched    int64    `json:"dispatched"`
	LastBatch     string   `json:"last_batch,omitempty"`
}

func (a *Account) Status() Status {
	a.statsMu.Lock()
	st := Status{
		AccountKey: shortKey(a.key),
		Batches:    a.batches,
		Dispatched: a.dispatched,
	}
	if !a.lastBatch.IsZero() {
		st.LastBatch = a.lastBatch.Format(time.RFC3339)
	}
	a.statsMu.Unlock()

	st.Monitor = a.monitor.State().String()
	st.Subscriptions = a.SubscribedIDs()
	return st
}

// Close 停止后台循环并等待其退出；ctx 超时后强制取消
func (a *Account) Close(ctx context.Context) error {
	a.monitor.Deactivate()
	err := a.monitor.Wait(ctx)
	a.cancel()
	if err != nil {
		// 强制取消后再等一次，让 logout 完成
		waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.monitor.Wait(waitCtx)
	}
	return err
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Event) {}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
