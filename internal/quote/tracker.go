// Package quote 维护一个或多个标的的最新行情，并提供价格穿越阈值的等待。
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/metrics"
	"github.com/betbot/wetrade/internal/monitor"
	"github.com/betbot/wetrade/internal/ports"
)

var quoteLog = logrus.WithField("component", "quote")

var (
	ErrMonitorStopped = errors.New("quote: monitoring stopped")
	ErrUnknownSymbol  = errors.New("quote: symbol not tracked")
	ErrTooManySymbols = errors.New("quote: too many symbols")
	ErrNoSymbols      = errors.New("quote: no symbols")
)

// MaxSymbols 单条推送连接允许订阅的标的数
const MaxSymbols = 25

const DefaultPollInterval = 200 * time.Millisecond

// Deps 外部协作者
type Deps struct {
	API      ports.QuoteAPI
	Streams  ports.StreamFactory
	Auth     ports.Authenticator
	Clock    ports.MarketClock
	Notifier ports.Notifier
}

// Options 行情跟踪配置
type Options struct {
	PollInterval   time.Duration
	AuthRetries    int
	AuthBackoff    time.Duration
	MaxReconnects  int
	ReconnectDelay time.Duration
}

// Continuation 价格穿越后在等待者所在 goroutine 上执行，参数为触发时的快照
type Continuation func(ctx context.Context, snap domain.QuoteSnapshot) error

// Tracker Quote 与 MultiQuote 共用的核心
type Tracker struct {
	deps    Deps
	opts    Options
	symbols []string
	tracked map[string]struct{}
	state   *PriceState
	monitor *monitor.Runner
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

func newTracker(ctx context.Context, deps Deps, symbols []string, opts Options) (*Tracker, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}

	tracked := make(map[string]struct{}, len(symbols))
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := tracked[s]; dup {
			continue
		}
		tracked[s] = struct{}{}
		normalized = append(normalized, s)
	}
	if len(normalized) == 0 {
		return nil, ErrNoSymbols
	}
	if len(normalized) > MaxSymbols {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManySymbols, len(normalized), MaxSymbols)
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	name := strings.Join(normalized, ",")
	return &Tracker{
		deps:    deps,
		opts:    opts,
		symbols: normalized,
		tracked: tracked,
		state:   NewPriceState(),
		monitor: monitor.NewRunner("quote:" + name),
		log:     quoteLog.WithField("symbols", name),
		ctx:     bg,
		cancel:  cancel,
	}, nil
}

// Symbols 跟踪的标的
func (t *Tracker) Symbols() []string { return append([]string(nil), t.symbols...) }

// State 共享的行情状态
func (t *Tracker) State() *PriceState { return t.state }

// Start 启动后台行情循环；收盘后不启动
func (t *Tracker) Start() bool {
	if t.deps.Clock != nil && t.deps.Clock.HasMarketClosed() {
		t.log.Info("市场已收盘，不启动行情监控")
		return false
	}
	return t.monitor.Start(t.ctx, t.streamQuotes)
}

// Monitoring 行情循环是否处于运行状态
func (t *Tracker) Monitoring() bool { return t.monitor.Active() }

// MonitorState 行情循环状态
func (t *Tracker) MonitorState() monitor.State { return t.monitor.State() }

// Stop 协作式停止行情循环
func (t *Tracker) Stop() { t.monitor.Deactivate() }

// Done 行情循环结束时关闭
func (t *Tracker) Done() <-chan struct{} { return t.monitor.Done() }

// Close 停止并等待循环退出
func (t *Tracker) Close(ctx context.Context) error {
	t.monitor.Deactivate()
	err := t.monitor.Wait(ctx)
	t.cancel()
	return err
}

// Snapshot 单个标的的最新快照
func (t *Tracker) Snapshot(symbol string) (domain.QuoteSnapshot, bool) {
	return t.state.Get(strings.ToUpper(strings.TrimSpace(symbol)))
}

// Snapshots 所有已收到行情的标的
func (t *Tracker) Snapshots() []domain.QuoteSnapshot { return t.state.All() }

// HandleMessage LEVELONE_EQUITIES 推送回调
func (t *Tracker) HandleMessage(ctx context.Context, msg ports.StreamMessage) {
	metrics.StreamBatches.Add(1)
	for _, rec := range msg.Content {
		u, ok := parseLevelOne(rec)
		if !ok {
			continue
		}
		if _, tracked := t.tracked[u.Symbol]; !tracked {
			continue
		}
		t.state.Apply(u)
		metrics.QuoteUpdates.Add(1)
	}
}

func (t *Tracker) streamQuotes(ctx context.Context, keepRunning func() bool) error {
	err := monitor.Supervise(ctx, keepRunning, monitor.ReconnectPolicy{
		MaxReconnects: t.opts.MaxReconnects,
		Delay:         t.opts.ReconnectDelay,
	}, t.runSession, t.log)
	if err != nil && ctx.Err() == nil {
		t.notify(domain.EventError, domain.LevelError, "", fmt.Sprintf("Quote stream stopped: %v", err))
	}
	return err
}

func (t *Tracker) runSession(ctx context.Context, keepRunning func() bool) (bool, error) {
	stream, err := monitor.Connect(ctx, t.deps.Streams, t.deps.Auth, monitor.LoginPolicy{
		Retries: t.opts.AuthRetries,
		Backoff: t.opts.AuthBackoff,
	}, t.log)
	if err != nil {
		return false, err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := stream.LevelOneEquityUnsubs(cleanupCtx, t.symbols); err != nil {
			t.log.Debugf("退订行情失败: %v", err)
		}
		if err := stream.Logout(cleanupCtx); err != nil {
			t.log.Debugf("登出推送会话失败: %v", err)
		}
	}()

	stream.AddHandler(ports.ServiceLevelOneEquities, t.HandleMessage)
	if err := stream.LevelOneEquitySubs(ctx, t.symbols); err != nil {
		return true, fmt.Errorf("subscribe level one: %w", err)
	}
	t.log.Info("已订阅行情推送")

	for keepRunning() {
		if t.deps.Clock != nil && t.deps.Clock.HasMarketClosed() {
			t.log.Info("市场已收盘，停止行情监控")
			return true, nil
		}
		if err := stream.HandleMessage(ctx); err != nil {
			return true, fmt.Errorf("receive: %w", err)
		}
	}
	return true, nil
}

// WaitForPriceFall 等待最新成交价严格低于 threshold，然后执行 then
func (t *Tracker) WaitForPriceFall(ctx context.Context, symbol string, threshold float64, then Continuation) error {
	return t.waitForCross(ctx, symbol, threshold, true, then)
}

// WaitForPriceRise 等待最新成交价严格高于 threshold，然后执行 then
func (t *Tracker) WaitForPriceRise(ctx context.Context, symbol string, threshold float64, then Continuation) error {
	return t.waitForCross(ctx, symbol, threshold, false, then)
}

// RunBelowPrice 后台等待价格跌破 threshold 后执行 fn，不阻塞调用方；错误只记录日志
func (t *Tracker) RunBelowPrice(symbol string, threshold float64, fn Continuation) {
	go t.runDetached(symbol, threshold, true, fn)
}

// RunAbovePrice 后台等待价格涨破 threshold 后执行 fn
func (t *Tracker) RunAbovePrice(symbol string, threshold float64, fn Continuation) {
	go t.runDetached(symbol, threshold, false, fn)
}

func (t *Tracker) runDetached(symbol string, threshold float64, below bool, fn Continuation) {
	if err := t.waitForCross(t.ctx, symbol, threshold, below, fn); err != nil && !errors.Is(err, context.Canceled) {
		t.log.Warnf("价格等待结束 %s: %v", symbol, err)
	}
}

func (t *Tracker) waitForCross(ctx context.Context, symbol string, threshold float64, below bool, then Continuation) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := t.tracked[symbol]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	t.Start()

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		snap, ok, changed := t.state.getWithSignal(symbol)
		if ok && snap.HasLast() && crosses(snap.LastPrice, threshold, below) {
			direction := "rose above"
			if below {
				direction = "fell below"
			}
			t.notify(domain.EventPriceCrossed, domain.LevelInfo, symbol,
				fmt.Sprintf("%s %s $%g (last $%g)", symbol, direction, threshold, snap.LastPrice))
			if then != nil {
				return then(ctx, snap)
			}
			return nil
		}
		if !t.monitor.Active() {
			return ErrMonitorStopped
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}

func crosses(last, threshold float64, below bool) bool {
	if below {
		return last < threshold
	}
	return last > threshold
}

func (t *Tracker) notify(kind domain.EventKind, level domain.EventLevel, symbol, msg string) {
	t.deps.Notifier.Notify(domain.Event{
		ID:      uuid.NewString(),
		Time:    time.Now(),
		Kind:    kind,
		Level:   level,
		Symbol:  symbol,
		Message: fmt.Sprintf("%s: %s", time.Now().Format("15:04:05"), msg),
	})
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Event) {}
