package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	tb := NewTokenBucket(3, 30*time.Millisecond)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if tb.Allow() {
		t.Fatalf("bucket should be empty")
	}
	time.Sleep(15 * time.Millisecond)
	if !tb.Allow() {
		t.Fatalf("bucket should have refilled at least one token")
	}
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if tb.GetResetTime().Before(time.Now().Add(30 * time.Minute)) {
		t.Fatalf("reset time should be roughly one window away")
	}
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(2, 20*time.Millisecond)
	if !sw.Allow() || !sw.Allow() {
		t.Fatalf("first two requests should pass")
	}
	if sw.Allow() {
		t.Fatalf("third request should be limited")
	}
	if sw.GetRemaining() != 0 {
		t.Fatalf("remaining should be 0")
	}
	start := time.Now()
	if err := sw.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("wait returned before the window moved")
	}
}

func TestManager_Endpoints(t *testing.T) {
	m := NewManager(2)
	if m.GetLimiter(EndpointOrderWrite) == m.GetLimiter(EndpointTrader) {
		t.Fatalf("order writes must have their own limiter")
	}
	if m.GetLimiter("unknown") != m.GetLimiter("other") {
		t.Fatalf("unknown endpoints share the fallback limiter")
	}
	ctx := context.Background()
	if err := m.Wait(ctx, EndpointTrader); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := m.GetRemaining(EndpointTrader); got != 1 {
		t.Fatalf("remaining = %d", got)
	}

	m.Set(EndpointMarketData, NewSlidingWindow(1, time.Hour))
	if !m.GetLimiter(EndpointMarketData).Allow() || m.GetLimiter(EndpointMarketData).Allow() {
		t.Fatalf("override limiter not used")
	}
}
