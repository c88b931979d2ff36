package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/wetrade/internal/ports"
	"github.com/betbot/wetrade/internal/ports/portstest"
)

func TestConnect_RetriesUnexpectedResponse(t *testing.T) {
	streams := portstest.NewStreamHub()
	streams.LoginErrs = []error{ports.ErrUnexpectedResponse}
	auth := &portstest.Auth{}

	stream, err := Connect(context.Background(), streams.Factory(), auth, LoginPolicy{Retries: 2, Backoff: time.Millisecond}, nil)
	require.NoError(t, err)
	require.NotNil(t, stream)
	assert.Equal(t, 1, auth.Calls())
	assert.Equal(t, 1, streams.Live())
}

func TestConnect_OtherErrorsAreNotRetried(t *testing.T) {
	streams := portstest.NewStreamHub()
	dial := errors.New("dial tcp: connection refused")
	streams.LoginErrs = []error{dial}
	auth := &portstest.Auth{}

	_, err := Connect(context.Background(), streams.Factory(), auth, LoginPolicy{Retries: 5, Backoff: time.Millisecond}, nil)
	assert.ErrorIs(t, err, dial)
	assert.Zero(t, auth.Calls())
	assert.Len(t, streams.Streams(), 1)
}

func TestConnect_Exhausted(t *testing.T) {
	streams := portstest.NewStreamHub()
	streams.LoginErrs = []error{ports.ErrUnexpectedResponse, ports.ErrUnexpectedResponse}
	_, err := Connect(context.Background(), streams.Factory(), nil, LoginPolicy{Retries: 1, Backoff: time.Millisecond}, nil)
	assert.ErrorIs(t, err, ErrAuthRetriesExhausted)
	assert.ErrorIs(t, err, ports.ErrUnexpectedResponse)
}

func TestSupervise_ReconnectsUntilLimit(t *testing.T) {
	sessions := 0
	err := Supervise(context.Background(), func() bool { return true }, ReconnectPolicy{MaxReconnects: 3, Delay: time.Millisecond},
		func(ctx context.Context, keepRunning func() bool) (bool, error) {
			sessions++
			return false, errors.New("read: connection reset")
		}, nil)
	assert.ErrorIs(t, err, ErrMaxReconnects)
	assert.Equal(t, 4, sessions)
}

func TestSupervise_StopsWhenDeactivated(t *testing.T) {
	sessions := 0
	err := Supervise(context.Background(), func() bool { return false }, ReconnectPolicy{MaxReconnects: 3, Delay: time.Millisecond},
		func(ctx context.Context, keepRunning func() bool) (bool, error) {
			sessions++
			return true, errors.New("read: connection reset")
		}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, sessions)
}

func TestSupervise_DeactivateDuringDelayOpensNoSession(t *testing.T) {
	var sessions atomic.Int32
	r := NewRunner("test")
	require.True(t, r.Start(context.Background(), func(ctx context.Context, keepRunning func() bool) error {
		return Supervise(ctx, keepRunning, ReconnectPolicy{MaxReconnects: 3, Delay: 100 * time.Millisecond},
			func(ctx context.Context, keepRunning func() bool) (bool, error) {
				sessions.Add(1)
				return true, errors.New("read: connection reset")
			}, nil)
	}))

	time.Sleep(30 * time.Millisecond)
	r.Deactivate()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
	assert.Equal(t, int32(1), sessions.Load(), "等待重连期间停止不应再建立连接")
	assert.Equal(t, StateIdle, r.State())
}

func TestSupervise_AuthExhaustedIsFinal(t *testing.T) {
	sessions := 0
	err := Supervise(context.Background(), func() bool { return true }, ReconnectPolicy{MaxReconnects: 3, Delay: time.Millisecond},
		func(ctx context.Context, keepRunning func() bool) (bool, error) {
			sessions++
			return false, ErrAuthRetriesExhausted
		}, nil)
	assert.ErrorIs(t, err, ErrAuthRetriesExhausted)
	assert.Equal(t, 1, sessions)
}
