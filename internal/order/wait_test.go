package order

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/ports/portstest"
)

type waitResult struct {
	err     error
	elapsed time.Duration
}

func waitAsync(o *Order, target domain.OrderStatus, then Continuation) (<-chan waitResult, time.Time) {
	ch := make(chan waitResult, 1)
	start := time.Now()
	go func() {
		err := o.WaitForStatus(context.Background(), target, then)
		ch <- waitResult{err: err, elapsed: time.Since(start)}
	}()
	return ch, start
}

func TestWaitForStatus_ReturnsPromptlyOnTarget(t *testing.T) {
	api := portstest.NewOrderAPI()
	api.SetStatus("WORKING")
	hub := portstest.NewHub("H")
	o := placedOrder(t, api, hub)

	var ran atomic.Int32
	ch, _ := waitAsync(o, domain.OrderStatusExecuted, func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	require.True(t, portstest.Eventually(time.Second, func() bool { return hub.Subscribed("1001") }))
	time.Sleep(20 * time.Millisecond)

	// 模拟推送触发的状态查询
	api.SetStatus("EXECUTED")
	set := time.Now()
	o.CheckStatus(context.Background())

	select {
	case res := <-ch:
		require.NoError(t, res.err)
		assert.Less(t, time.Since(set), o.pollInterval+20*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatalf("WaitForStatus did not return")
	}
	assert.Equal(t, int32(1), ran.Load())
	assert.False(t, hub.Subscribed("1001"), "wait must unsubscribe on exit")
	assert.False(t, o.Subscribed())
}

func TestWaitForStatus_ContinuationErrorPropagates(t *testing.T) {
	api := portstest.NewOrderAPI()
	api.SetStatus("OPEN")
	o := placedOrder(t, api, portstest.NewHub("H"))

	boom := errors.New("continuation failed")
	err := o.WaitForStatus(context.Background(), domain.OrderStatusOpen, func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWaitForStatus_RejectedSkipsContinuation(t *testing.T) {
	for _, target := range []domain.OrderStatus{domain.OrderStatusExecuted, domain.OrderStatusRejected, domain.OrderStatusOpen} {
		t.Run(string(target), func(t *testing.T) {
			api := portstest.NewOrderAPI()
			api.SetStatus("QUEUED")
			hub := portstest.NewHub("H")
			n := &portstest.Notifier{}
			o := placedOrder(t, api, hub, WithNotifier(n))

			var ran atomic.Int32
			ch, _ := waitAsync(o, target, func(ctx context.Context) error {
				ran.Add(1)
				return nil
			})
			require.True(t, portstest.Eventually(time.Second, func() bool { return hub.Subscribed("1001") }))

			api.SetStatus("REJECTED")
			o.CheckStatus(context.Background())

			select {
			case res := <-ch:
				assert.ErrorIs(t, res.err, ErrOrderRejected)
			case <-time.After(time.Second):
				t.Fatalf("WaitForStatus did not return")
			}
			assert.Zero(t, ran.Load())
			assert.Equal(t, 1, n.Count(domain.EventOrderRejected))
			assert.False(t, hub.Subscribed("1001"))
		})
	}
}

func TestWaitForStatus_OtherTerminalStops(t *testing.T) {
	api := portstest.NewOrderAPI()
	api.SetStatus("CANCELED")
	hub := portstest.NewHub("H")
	n := &portstest.Notifier{}
	o := placedOrder(t, api, hub, WithNotifier(n))

	err := o.WaitForStatus(context.Background(), domain.OrderStatusExecuted, func(ctx context.Context) error {
		t.Fatalf("continuation must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrOrderFinished)
	assert.Equal(t, 1, n.Count(domain.EventOrderFinished))
	assert.False(t, hub.Subscribed("1001"))
}

func TestWaitForStatus_DisableWaiting(t *testing.T) {
	api := portstest.NewOrderAPI()
	api.SetStatus("WORKING")
	hub := portstest.NewHub("H")
	o := placedOrder(t, api, hub)

	ch, _ := waitAsync(o, domain.OrderStatusExecuted, nil)
	require.True(t, portstest.Eventually(time.Second, func() bool { return hub.Subscribed("1001") }))
	o.DisableWaiting()

	select {
	case res := <-ch:
		assert.ErrorIs(t, res.err, ErrWaitDisabled)
	case <-time.After(time.Second):
		t.Fatalf("WaitForStatus did not observe disable flag")
	}

	o.EnableWaiting()
	api.SetStatus("EXECUTED")
	o.CheckStatus(context.Background())
	require.NoError(t, o.WaitForStatus(context.Background(), domain.OrderStatusExecuted, nil))
}

func TestWaitForStatus_NotPlaced(t *testing.T) {
	o := newTestOrder(portstest.NewOrderAPI(), portstest.NewHub("H"))
	assert.ErrorIs(t, o.WaitForStatus(context.Background(), domain.OrderStatusExecuted, nil), ErrNotPlaced)
}

func TestWaitForStatus_ContextCancel(t *testing.T) {
	api := portstest.NewOrderAPI()
	api.SetStatus("WORKING")
	o := placedOrder(t, api, portstest.NewHub("H"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.WaitForStatus(ctx, domain.OrderStatusExecuted, nil), context.DeadlineExceeded)
}
