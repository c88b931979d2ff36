package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/monitor"
	"github.com/betbot/wetrade/internal/order"
	"github.com/betbot/wetrade/internal/ports"
	"github.com/betbot/wetrade/internal/ports/portstest"
)

func newStreamingAccount(t *testing.T, streams *portstest.StreamHub, auth ports.Authenticator, n ports.Notifier, opts Options) *Account {
	t.Helper()
	if opts.AccountKey == "" {
		opts.AccountKey = "HASH0123456789"
	}
	if opts.AuthBackoff == 0 {
		opts.AuthBackoff = time.Millisecond
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = time.Millisecond
	}
	a, err := New(context.Background(), Deps{Streams: streams.Factory(), Auth: auth, Notifier: n}, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

func TestNew_ResolvesFirstAccountHash(t *testing.T) {
	api := &portstest.AccountAPI{Numbers: []domain.AccountNumber{
		{AccountNumber: "111", HashValue: "HASH-A"},
		{AccountNumber: "222", HashValue: "HASH-B"},
	}}
	a, err := New(context.Background(), Deps{API: api, Streams: portstest.NewStreamHub().Factory()}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "HASH-A", a.AccountHash())

	_, err = New(context.Background(), Deps{API: &portstest.AccountAPI{}}, Options{})
	assert.ErrorIs(t, err, ErrNoAccounts)

	_, err = New(context.Background(), Deps{API: &portstest.AccountAPI{Err: portstest.ErrTransport}}, Options{})
	assert.ErrorIs(t, err, portstest.ErrTransport)
}

func TestAddOrderSubscription_StartsSingleLoop(t *testing.T) {
	streams := portstest.NewStreamHub()
	a := newStreamingAccount(t, streams, nil, nil, Options{})

	for i := 0; i < 5; i++ {
		a.AddOrderSubscription(context.Background(), &countingSub{id: "100" + string(rune('0'+i))})
	}
	require.True(t, portstest.Eventually(time.Second, func() bool { return streams.Live() == 1 }))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, streams.MaxLive())
	assert.Len(t, streams.Streams(), 1)
	st := streams.Streams()[0].Stats()
	assert.Equal(t, 1, st.AcctSubs)
	assert.Len(t, a.SubscribedIDs(), 5)
}

func TestRemoveOrderSubscription_DeactivateFlag(t *testing.T) {
	streams := portstest.NewStreamHub()
	a := newStreamingAccount(t, streams, nil, nil, Options{})

	a.AddOrderSubscription(context.Background(), &countingSub{id: "1"})
	a.AddOrderSubscription(context.Background(), &countingSub{id: "2"})
	require.True(t, portstest.Eventually(time.Second, func() bool { return streams.Live() == 1 }))

	// 不带标志：索引变空循环也继续
	a.RemoveOrderSubscription("1", false)
	a.RemoveOrderSubscription("2", false)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, a.Monitoring())
	assert.Equal(t, 1, streams.Live())

	a.AddOrderSubscription(context.Background(), &countingSub{id: "3"})
	// 非最后一个：带标志也不停止
	a.AddOrderSubscription(context.Background(), &countingSub{id: "4"})
	a.RemoveOrderSubscription("3", true)
	assert.True(t, a.Monitoring())

	a.RemoveOrderSubscription("4", true)
	require.True(t, portstest.Eventually(time.Second, func() bool { return a.monitor.State() == monitor.StateIdle }))
	assert.Equal(t, 0, streams.Live())

	st := streams.Streams()[0].Stats()
	assert.Equal(t, 1, st.AcctUnsubs)
	assert.Equal(t, 1, st.Logouts)
}

func TestStream_ReauthenticatesOnUnexpectedResponse(t *testing.T) {
	streams := portstest.NewStreamHub()
	streams.LoginErrs = []error{ports.ErrUnexpectedResponse, ports.ErrUnexpectedResponse}
	auth := &portstest.Auth{}
	a := newStreamingAccount(t, streams, auth, nil, Options{AuthRetries: 3})

	require.True(t, a.MonitorInBackground())
	require.True(t, portstest.Eventually(2*time.Second, func() bool { return streams.Live() == 1 }))
	assert.Equal(t, 2, auth.Calls())
	assert.Len(t, streams.Streams(), 3, "each attempt restarts the whole startup sequence")
}

func TestStream_AuthRetriesAreBounded(t *testing.T) {
	streams := portstest.NewStreamHub()
	for i := 0; i < 10; i++ {
		streams.LoginErrs = append(streams.LoginErrs, ports.ErrUnexpectedResponse)
	}
	auth := &portstest.Auth{}
	n := &portstest.Notifier{}
	a := newStreamingAccount(t, streams, auth, n, Options{AuthRetries: 2})

	require.True(t, a.MonitorInBackground())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.monitor.Wait(ctx))

	assert.Equal(t, 3, auth.Calls())
	assert.Len(t, streams.Streams(), 3)
	assert.Equal(t, 0, streams.MaxLive())
	assert.Equal(t, 1, n.Count(domain.EventError))
}

type idleSub string

func (s idleSub) OrderID() string { return string(s) }
func (s idleSub) CheckStatus(context.Context) (domain.OrderStatus, bool) {
	return domain.OrderStatusWorking, true
}

func TestStream_StopNamesOrdersLeftWithoutUpdates(t *testing.T) {
	streams := portstest.NewStreamHub()
	streams.LoginErrs = []error{ports.ErrUnexpectedResponse, ports.ErrUnexpectedResponse}
	n := &portstest.Notifier{}
	a := newStreamingAccount(t, streams, &portstest.Auth{}, n, Options{AuthRetries: 1, AuthBackoff: 50 * time.Millisecond})

	a.AddOrderSubscription(context.Background(), idleSub("8002"))
	a.AddOrderSubscription(context.Background(), idleSub("8001"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.monitor.Wait(ctx))

	require.Equal(t, 1, n.Count(domain.EventError))
	assert.Contains(t, n.Events()[0].Message, "no push updates for orders 8001, 8002")
	assert.True(t, a.Subscribed("8001"))
}

func TestStream_DispatchesPushToOrder(t *testing.T) {
	streams := portstest.NewStreamHub()
	a := newStreamingAccount(t, streams, nil, nil, Options{})

	api := portstest.NewOrderAPI()
	api.PlaceResult = &domain.PlaceResult{StatusCode: 201, Location: "/trader/v1/accounts/HASH/orders/7001"}
	api.SetStatus("WORKING")
	o := order.NewLimit(api, a, "AAPL", domain.InstructionBuy, 1, decimal.NewFromInt(100),
		order.WithRecheckDelay(time.Hour), order.WithPollInterval(10*time.Millisecond))
	require.True(t, o.PlaceAndSubscribe(context.Background()))
	require.True(t, a.Subscribed("7001"))
	require.True(t, portstest.Eventually(time.Second, func() bool { return streams.Live() == 1 }))

	done := make(chan error, 1)
	go func() { done <- o.WaitForStatus(context.Background(), domain.OrderStatusExecuted, nil) }()

	api.SetStatus("EXECUTED")
	streams.Push(ports.StreamMessage{Service: ports.ServiceAccountActivity, Content: []map[string]any{
		activity(map[string]any{"SchwabOrderID": "7001"}),
		activity(map[string]any{"SchwabOrderID": "7001"}),
	}})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("order did not observe pushed status")
	}
	assert.Equal(t, domain.OrderStatusExecuted, o.Status())
	assert.False(t, a.Subscribed("7001"))
	// 订阅时一次 + 推送一次（同批次两条记录去重）
	assert.Equal(t, 2, api.Calls("7001"))
}

func TestQueries(t *testing.T) {
	api := &portstest.AccountAPI{
		Numbers: []domain.AccountNumber{{AccountNumber: "1", HashValue: "H"}},
		Accounts: []domain.AccountInfo{{
			SecuritiesAccount: domain.SecuritiesAccount{
				AccountNumber: "1",
				Positions:     []domain.Position{{LongQuantity: 5, Instrument: domain.Instrument{Symbol: "AAPL"}}},
			},
			AggregatedBalance: domain.AggregatedBalance{LiquidationValue: decimal.RequireFromString("10500.25")},
		}},
		Orders: []domain.OrderRecord{{OrderID: 1, Status: "FILLED"}},
	}
	a, err := New(context.Background(), Deps{API: api, Streams: portstest.NewStreamHub().Factory()}, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	numbers, err := a.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, numbers, 1)

	balance, err := a.CheckBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10500.25", balance.String())

	portfolio, err := a.ViewPortfolio(ctx)
	require.NoError(t, err)
	assert.Len(t, portfolio.SecuritiesAccount.Positions, 1)

	accounts, err := a.ViewAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	history, err := a.GetOrderHistory(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.InDelta(t, 24*time.Hour, api.LastTo.Sub(api.LastFrom), float64(time.Second))

	_, err = a.GetOrderHistory(ctx, time.Now(), time.Now().Add(-time.Hour))
	assert.Error(t, err)

	api.Err = errors.New("503")
	_, err = a.CheckBalance(ctx)
	assert.Error(t, err)
}
