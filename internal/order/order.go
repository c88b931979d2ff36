// Package order 实现单个订单的生命周期状态机：下单、同步状态、等待目标状态。
package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/metrics"
	"github.com/betbot/wetrade/internal/ports"
)

var orderLog = logrus.WithField("component", "order")

var (
	ErrNotPlaced     = errors.New("order: not placed")
	ErrOrderRejected = errors.New("order: rejected")
	ErrOrderFinished = errors.New("order: finished before reaching target status")
	ErrWaitDisabled  = errors.New("order: waiting disabled")
)

const (
	DefaultRecheckDelay = 5 * time.Second
	DefaultPollInterval = 200 * time.Millisecond
)

// Spec 下单参数
type Spec struct {
	Symbol      string
	Instruction domain.Instruction
	Quantity    int64
	Price       decimal.Decimal
	OrderType   domain.OrderType
	AssetType   domain.AssetType
}

// Option 可选配置
type Option func(*Order)

// WithNotifier 用户可见事件输出
func WithNotifier(n ports.Notifier) Option {
	return func(o *Order) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithRecheckDelay 订阅后补偿检查的延迟
func WithRecheckDelay(d time.Duration) Option {
	return func(o *Order) {
		if d > 0 {
			o.recheckDelay = d
		}
	}
}

// WithPollInterval WaitForStatus 的兜底轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(o *Order) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Event) {}

// Order 单个订单。调用方持有；订阅中心只持有引用。
type Order struct {
	api      ports.OrderAPI
	hub      ports.SubscriptionHub
	notifier ports.Notifier
	spec     Spec

	recheckDelay time.Duration
	pollInterval time.Duration

	// subMu 串行化 CreateSubscription / CancelSubscription
	subMu sync.Mutex

	mu         sync.RWMutex
	id         string
	status     domain.OrderStatus
	price      decimal.Decimal
	subscribed bool
	recheck    *time.Timer
	updatedAt  time.Time
	// changed 每次状态写入时关闭并替换，用于唤醒等待者
	changed chan struct{}

	waitDisabled atomic.Bool
}

// New 创建订单（UNPLACED）
func New(api ports.OrderAPI, hub ports.SubscriptionHub, spec Spec, opts ...Option) *Order {
	if spec.OrderType == "" {
		spec.OrderType = domain.OrderTypeLimit
	}
	if spec.AssetType == "" {
		spec.AssetType = domain.AssetTypeEquity
	}
	spec.Symbol = strings.ToUpper(strings.TrimSpace(spec.Symbol))

	o := &Order{
		api:          api,
		hub:          hub,
		notifier:     nopNotifier{},
		spec:         spec,
		recheckDelay: DefaultRecheckDelay,
		pollInterval: DefaultPollInterval,
		status:       domain.OrderStatusUnplaced,
		price:        spec.Price,
		changed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewLimit 限价单
func NewLimit(api ports.OrderAPI, hub ports.SubscriptionHub, symbol string, instruction domain.Instruction, quantity int64, price decimal.Decimal, opts ...Option) *Order {
	return New(api, hub, Spec{
		Symbol:      symbol,
		Instruction: instruction,
		Quantity:    quantity,
		Price:       price,
		OrderType:   domain.OrderTypeLimit,
	}, opts...)
}

// NewMarket 市价单（请求体不带价格）
func NewMarket(api ports.OrderAPI, hub ports.SubscriptionHub, symbol string, instruction domain.Instruction, quantity int64, opts ...Option) *Order {
	return New(api, hub, Spec{
		Symbol:      symbol,
		Instruction: instruction,
		Quantity:    quantity,
		OrderType:   domain.OrderTypeMarket,
	}, opts...)
}

// OrderID 券商订单号，未下单时为空
func (o *Order) OrderID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.id
}

func (o *Order) Status() domain.OrderStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Price 限价；EXECUTED 后为成交价
func (o *Order) Price() decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price
}

func (o *Order) Subscribed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.subscribed
}

func (o *Order) Spec() Spec { return o.spec }

// Snapshot 状态快照
func (o *Order) Snapshot() domain.OrderSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return domain.OrderSnapshot{
		OrderID:     o.id,
		Symbol:      o.spec.Symbol,
		Instruction: o.spec.Instruction,
		Quantity:    o.spec.Quantity,
		Price:       o.price,
		OrderType:   o.spec.OrderType,
		Status:      o.status,
		Subscribed:  o.subscribed,
		UpdatedAt:   o.updatedAt,
	}
}

// Payload 下单请求体
func (o *Order) Payload() domain.OrderPayload {
	p := domain.OrderPayload{
		Session:   "NORMAL",
		Duration:  "DAY",
		OrderType: o.spec.OrderType,
		OrderLegCollection: []domain.OrderLeg{{
			Instruction: o.spec.Instruction,
			Instrument: domain.Instrument{
				AssetType: o.spec.AssetType,
				Symbol:    o.spec.Symbol,
			},
			Quantity: o.spec.Quantity,
		}},
		OrderStrategyType: "SINGLE",
	}
	switch o.spec.OrderType {
	case domain.OrderTypeMarket:
	case domain.OrderTypeStop:
		price := o.spec.Price
		p.StopPrice = &price
	default:
		price := o.spec.Price
		p.Price = &price
	}
	return p
}

// Place 下单。只有返回 201 且 Location 头能解析出订单号才算成功；失败不重试（避免重复下单）。
func (o *Order) Place(ctx context.Context) bool {
	if o.OrderID() != "" {
		orderLog.Warnf("订单已下单，忽略重复下单: %s", o.OrderID())
		return false
	}

	res, err := o.api.PlaceOrder(ctx, o.hub.AccountHash(), o.Payload())
	if err != nil {
		orderLog.Debugf("下单失败 %s %s: %v", o.spec.Instruction, o.spec.Symbol, err)
		return false
	}
	if res == nil || res.StatusCode != http.StatusCreated {
		code := 0
		if res != nil {
			code = res.StatusCode
		}
		orderLog.Debugf("下单未被接受 %s %s: status=%d", o.spec.Instruction, o.spec.Symbol, code)
		return false
	}
	id := ParseOrderID(res.Location)
	if id == "" {
		orderLog.Debugf("下单响应缺少订单号 %s %s: location=%q", o.spec.Instruction, o.spec.Symbol, res.Location)
		return false
	}

	o.mu.Lock()
	o.id = id
	o.setStatusLocked(domain.OrderStatusPlaced)
	o.mu.Unlock()
	metrics.OrdersPlaced.Add(1)

	o.notify(domain.EventOrderPlaced, domain.LevelInfo, placedMessage(o.spec, id, shortKey(o.hub.AccountHash())))
	return true
}

func placedMessage(spec Spec, id, account string) string {
	price := ""
	if spec.OrderType != domain.OrderTypeMarket {
		price = " at $" + spec.Price.String()
	}
	return fmt.Sprintf("Placed %s order to %s %d shares of %s%s (Order ID: %s, Account: %s)",
		spec.OrderType, spec.Instruction, spec.Quantity, spec.Symbol, price, id, account)
}

// CheckStatus 查询一次订单状态。成功时覆盖本地状态（EXECUTED 同时更新成交价）；
// 失败时保留上一次已知状态并返回 ok=false。
func (o *Order) CheckStatus(ctx context.Context) (domain.OrderStatus, bool) {
	id := o.OrderID()
	if id == "" {
		return "", false
	}

	metrics.StatusChecks.Add(1)
	rec, err := o.api.GetOrder(ctx, o.hub.AccountHash(), id)
	if err != nil || rec == nil {
		if err == nil {
			err = errors.New("empty order record")
		}
		orderLog.Warnf("查询订单状态失败 %s: %v", id, err)
		o.notify(domain.EventError, domain.LevelWarn, fmt.Sprintf("Order # %s status check failed: %v", id, err))
		return "", false
	}

	status := domain.NormalizeOrderStatus(rec.Status)
	o.mu.Lock()
	if status == domain.OrderStatusExecuted && !rec.Price.IsZero() {
		o.price = rec.Price
	}
	o.setStatusLocked(status)
	o.mu.Unlock()

	orderLog.Debugf("订单状态 %s: %s", id, status)
	return status, true
}

// Cancel 在券商侧撤单；本地状态由之后的推送/查询更新
func (o *Order) Cancel(ctx context.Context) error {
	id := o.OrderID()
	if id == "" {
		return ErrNotPlaced
	}
	if err := o.api.CancelOrder(ctx, o.hub.AccountHash(), id); err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	orderLog.Infof("已提交撤单: %s", id)
	return nil
}

// setStatusLocked 调用方持有写锁
func (o *Order) setStatusLocked(status domain.OrderStatus) {
	o.status = status
	o.updatedAt = time.Now()
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Order) statusAndSignal() (domain.OrderStatus, <-chan struct{}) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status, o.changed
}

func (o *Order) notify(kind domain.EventKind, level domain.EventLevel, msg string) {
	o.notifier.Notify(domain.Event{
		ID:      uuid.NewString(),
		Time:    time.Now(),
		Kind:    kind,
		Level:   level,
		OrderID: o.OrderID(),
		Symbol:  o.spec.Symbol,
		Message: fmt.Sprintf("%s: %s", time.Now().Format("15:04:05"), msg),
	})
}

// ParseOrderID 从 Location 头中取出 /orders/ 之后的订单号
func ParseOrderID(location string) string {
	const marker = "/orders/"
	idx := strings.Index(location, marker)
	if idx < 0 {
		return ""
	}
	id := location[idx+len(marker):]
	if cut := strings.IndexAny(id, "/?#"); cut >= 0 {
		id = id[:cut]
	}
	return strings.TrimSpace(id)
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
