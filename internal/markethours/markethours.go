// Package markethours 查询当日常规交易时段，用于控制监控循环的启停。
package markethours

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/ports"
)

var hoursLog = logrus.WithField("component", "markethours")

// DateLayout ChangeDate 使用的日期格式
const DateLayout = "2006-01-02"

// Eastern 美东时区
var Eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// Option 可选配置
type Option func(*MarketHours)

// WithNow 替换时钟（测试用）
func WithNow(now func() time.Time) Option {
	return func(m *MarketHours) { m.now = now }
}

// WithNotifier 用户可见事件输出
func WithNotifier(n ports.Notifier) Option {
	return func(m *MarketHours) { m.notifier = n }
}

// MarketHours 某一天的常规交易时段
type MarketHours struct {
	api      ports.MarketHoursAPI
	now      func() time.Time
	notifier ports.Notifier

	mu      sync.RWMutex
	session domain.MarketSession
	// announced 收盘提示只输出一次
	announced bool
}

// New 查询 date 当天的交易时段；date 为零值时取美东当天
func New(ctx context.Context, api ports.MarketHoursAPI, date time.Time, opts ...Option) (*MarketHours, error) {
	m := &MarketHours{api: api, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if date.IsZero() {
		date = m.NowEastern()
	}
	if err := m.load(ctx, date); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MarketHours) load(ctx context.Context, date time.Time) error {
	session, err := m.api.GetMarketHours(ctx, date)
	if err != nil {
		return fmt.Errorf("market hours for %s: %w", date.Format(DateLayout), err)
	}
	if session == nil {
		session = &domain.MarketSession{Date: date}
	}
	m.mu.Lock()
	m.session = *session
	m.session.Date = date
	m.announced = false
	m.mu.Unlock()

	if session.IsOpen {
		hoursLog.Infof("%s 常规交易时段 %s - %s", date.Format(DateLayout),
			session.Open.In(Eastern).Format("15:04"), session.Close.In(Eastern).Format("15:04"))
	} else {
		hoursLog.Infof("%s 休市", date.Format(DateLayout))
	}
	return nil
}

// ChangeDate 切换到另一天（格式 2006-01-02）并重新查询
func (m *MarketHours) ChangeDate(ctx context.Context, date string) error {
	d, err := time.ParseInLocation(DateLayout, date, Eastern)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", date, err)
	}
	return m.load(ctx, d)
}

// Session 当前日期的交易时段
func (m *MarketHours) Session() domain.MarketSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// NowEastern 美东当前时间
func (m *MarketHours) NowEastern() time.Time {
	return m.now().In(Eastern)
}

// HasMarketClosed 当天休市，或已过收盘时间
func (m *MarketHours) HasMarketClosed() bool {
	s := m.Session()
	if !s.IsOpen {
		m.announceClosed(fmt.Sprintf("Markets are closed today (%s)", s.Date.Format(DateLayout)))
		return true
	}
	if m.NowEastern().Before(s.Close) {
		return false
	}
	m.announceClosed("Markets are closed for the day")
	return true
}

// HasMarketOpened 当天开市且已过开盘时间
func (m *MarketHours) HasMarketOpened() bool {
	s := m.Session()
	if !s.IsOpen {
		return false
	}
	return m.NowEastern().After(s.Open)
}

// TimeUntilClose 距收盘的时间；休市时 ok=false
func (m *MarketHours) TimeUntilClose() (time.Duration, bool) {
	s := m.Session()
	if !s.IsOpen {
		return 0, false
	}
	return s.Close.Sub(m.NowEastern()), true
}

// TimeUntilOpen 距开盘的时间；休市时 ok=false
func (m *MarketHours) TimeUntilOpen() (time.Duration, bool) {
	s := m.Session()
	if !s.IsOpen {
		return 0, false
	}
	return s.Open.Sub(m.NowEastern()), true
}

// WaitForMarketOpen 阻塞到开盘；休市或已开盘时立即返回
func (m *MarketHours) WaitForMarketOpen(ctx context.Context) error {
	d, ok := m.TimeUntilOpen()
	if !ok || d <= 0 {
		return nil
	}
	hoursLog.Infof("等待开盘，剩余 %s", d.Round(time.Second))
	m.notify(domain.LevelInfo, "Waiting for market to open")

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *MarketHours) announceClosed(msg string) {
	m.mu.Lock()
	if m.announced {
		m.mu.Unlock()
		return
	}
	m.announced = true
	m.mu.Unlock()

	hoursLog.Info(msg)
	m.notify(domain.LevelInfo, msg)
}

func (m *MarketHours) notify(level domain.EventLevel, msg string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(domain.Event{
		ID:      uuid.NewString(),
		Time:    time.Now(),
		Kind:    domain.EventMarketHours,
		Level:   level,
		Message: fmt.Sprintf("%s: %s", time.Now().Format("15:04:05"), msg),
	})
}
