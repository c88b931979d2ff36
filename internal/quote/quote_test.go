package quote

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/monitor"
	"github.com/betbot/wetrade/internal/ports"
	"github.com/betbot/wetrade/internal/ports/portstest"
)

func levelOne(symbol string, fields map[string]any) ports.StreamMessage {
	rec := map[string]any{"key": symbol}
	for k, v := range fields {
		rec[k] = v
	}
	return ports.StreamMessage{Service: ports.ServiceLevelOneEquities, Content: []map[string]any{rec}}
}

func newTestQuote(t *testing.T, streams *portstest.StreamHub, clock *portstest.Clock, n ports.Notifier) *Quote {
	t.Helper()
	q, err := NewQuote(context.Background(), Deps{
		API:      &portstest.QuoteAPI{},
		Streams:  streams.Factory(),
		Clock:    clock,
		Notifier: n,
	}, "aapl", Options{PollInterval: 20 * time.Millisecond, AuthBackoff: time.Millisecond, ReconnectDelay: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Close(ctx)
	})
	return q
}

func TestPriceState_KeepsPreviousFields(t *testing.T) {
	s := NewPriceState()
	bid, ask, last := 9.9, 10.1, 10.0

	first := s.Apply(domain.QuoteUpdate{Symbol: "AAPL", BidPrice: &bid, AskPrice: &ask, LastPrice: &last})
	newBid := 9.95
	second := s.Apply(domain.QuoteUpdate{Symbol: "AAPL", BidPrice: &newBid})

	assert.Equal(t, 9.95, second.BidPrice)
	assert.Equal(t, 10.1, second.AskPrice, "bid-only update must not clobber ask")
	assert.Equal(t, 10.0, second.LastPrice)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	for i := 0; i < 100; i++ {
		prev, _ := s.Get("AAPL")
		next := s.Apply(domain.QuoteUpdate{Symbol: "AAPL"})
		require.True(t, next.UpdatedAt.After(prev.UpdatedAt))
	}
}

func TestHandleMessage_ParsesLevelOneFields(t *testing.T) {
	q := newTestQuote(t, portstest.NewStreamHub(), &portstest.Clock{}, nil)

	q.HandleMessage(context.Background(), levelOne("AAPL", map[string]any{
		"LAST_PRICE":        187.5,
		"BID_PRICE":         "187.45",
		"ASK_SIZE":          int64(300),
		"TRADE_TIME_MILLIS": float64(1700000000000),
	}))
	// 未跟踪的标的被忽略
	q.HandleMessage(context.Background(), levelOne("MSFT", map[string]any{"LAST_PRICE": 400.0}))

	snap, ok := q.Snapshot("aapl")
	require.True(t, ok)
	assert.Equal(t, 187.5, snap.LastPrice)
	assert.Equal(t, 187.45, snap.BidPrice)
	assert.Equal(t, 300.0, snap.AskSize)
	assert.Equal(t, int64(1700000000000), snap.TradeTime.UnixMilli())
	assert.Equal(t, 187.5, q.LastPrice())

	_, ok = q.Snapshot("MSFT")
	assert.False(t, ok)
}

func TestWaitForPriceFall_TriggersOnceOnStrictCross(t *testing.T) {
	streams := portstest.NewStreamHub()
	n := &portstest.Notifier{}
	q := newTestQuote(t, streams, &portstest.Clock{}, n)

	var calls atomic.Int32
	var trigger atomic.Value
	done := make(chan error, 1)
	go func() {
		done <- q.WaitForPriceFall(context.Background(), 9.0, func(ctx context.Context, snap domain.QuoteSnapshot) error {
			calls.Add(1)
			trigger.Store(snap.LastPrice)
			return nil
		})
	}()
	require.True(t, portstest.Eventually(time.Second, func() bool { return streams.Live() == 1 }))

	for _, price := range []float64{10.0, 9.5} {
		q.HandleMessage(context.Background(), levelOne("AAPL", map[string]any{"LAST_PRICE": price}))
		time.Sleep(40 * time.Millisecond)
		assert.Zero(t, calls.Load(), "must not trigger at %v", price)
	}
	q.HandleMessage(context.Background(), levelOne("AAPL", map[string]any{"LAST_PRICE": 9.0}))
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, calls.Load(), "crossing is strict")

	q.HandleMessage(context.Background(), levelOne("AAPL", map[string]any{"LAST_PRICE": 8.0}))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("WaitForPriceFall did not return")
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 8.0, trigger.Load())
	assert.Equal(t, 1, n.Count(domain.EventPriceCrossed))
}

func TestWaitForPriceRise_ViaStream(t *testing.T) {
	streams := portstest.NewStreamHub()
	q := newTestQuote(t, streams, &portstest.Clock{}, nil)

	done := make(chan error, 1)
	go func() { done <- q.WaitForPriceRise(context.Background(), 100, nil) }()
	require.True(t, portstest.Eventually(time.Second, func() bool { return streams.Live() == 1 }))

	streams.Push(levelOne("AAPL", map[string]any{"LAST_PRICE": 99.0}))
	streams.Push(levelOne("AAPL", map[string]any{"LAST_PRICE": 100.5}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("WaitForPriceRise did not return")
	}
	st := streams.Streams()[0].Stats()
	assert.Equal(t, []string{"AAPL"}, st.Symbols)
}

func TestWait_StopsWhenMarketCloses(t *testing.T) {
	streams := portstest.NewStreamHub()
	clock := &portstest.Clock{}
	q := newTestQuote(t, streams, clock, nil)

	done := make(chan error, 1)
	go func() { done <- q.WaitForPriceFall(context.Background(), 1, nil) }()
	require.True(t, portstest.Eventually(time.Second, func() bool { return streams.Live() == 1 }))

	clock.SetClosed(true)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrMonitorStopped)
	case <-time.After(time.Second):
		t.Fatalf("wait did not observe market close")
	}
	require.True(t, portstest.Eventually(time.Second, func() bool { return q.MonitorState() == monitor.StateIdle }))
	st := streams.Streams()[0].Stats()
	assert.Equal(t, []string{"AAPL"}, st.UnsubSymbols)
	assert.Equal(t, 1, st.Logouts)
}

func TestStart_SkippedWhenMarketClosed(t *testing.T) {
	streams := portstest.NewStreamHub()
	clock := &portstest.Clock{}
	clock.SetClosed(true)
	q := newTestQuote(t, streams, clock, nil)

	assert.False(t, q.Start())
	assert.ErrorIs(t, q.WaitForPriceRise(context.Background(), 1, nil), ErrMonitorStopped)
	assert.Empty(t, streams.Streams())
}

func TestRunBelowPrice_DoesNotBlock(t *testing.T) {
	streams := portstest.NewStreamHub()
	q := newTestQuote(t, streams, &portstest.Clock{}, nil)

	fired := make(chan float64, 1)
	q.RunBelowPrice(50, func(ctx context.Context, snap domain.QuoteSnapshot) error {
		fired <- snap.LastPrice
		return nil
	})
	require.True(t, portstest.Eventually(time.Second, func() bool { return streams.Live() == 1 }))
	q.HandleMessage(context.Background(), levelOne("AAPL", map[string]any{"LAST_PRICE": 49.99}))

	select {
	case p := <-fired:
		assert.Equal(t, 49.99, p)
	case <-time.After(time.Second):
		t.Fatalf("RunBelowPrice callback not invoked")
	}
}

func TestQuote_RESTHelpers(t *testing.T) {
	api := &portstest.QuoteAPI{Quotes: map[string]domain.QuoteRecord{
		"AAPL": {Symbol: "AAPL", LastPrice: 190.1, OpenPrice: 188.0},
	}}
	q, err := NewQuote(context.Background(), Deps{API: api, Streams: portstest.NewStreamHub().Factory()}, "AAPL", Options{})
	require.NoError(t, err)

	last, err := q.GetLastPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 190.1, last)

	open, err := q.GetOpen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 188.0, open)

	api.Quotes = nil
	_, err = q.GetQuote(context.Background())
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}
