package markethours

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/ports/portstest"
)

type fakeHoursAPI struct {
	sessions map[string]*domain.MarketSession
	err      error
	asked    []string
}

func (f *fakeHoursAPI) GetMarketHours(ctx context.Context, date time.Time) (*domain.MarketSession, error) {
	key := date.Format(DateLayout)
	f.asked = append(f.asked, key)
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.sessions[key]; ok {
		return s, nil
	}
	return &domain.MarketSession{}, nil
}

func at(date, clock string) time.Time {
	t, err := time.ParseInLocation(DateLayout+" 15:04", date+" "+clock, Eastern)
	if err != nil {
		panic(err)
	}
	return t
}

func regular(date string) *domain.MarketSession {
	return &domain.MarketSession{IsOpen: true, Open: at(date, "09:30"), Close: at(date, "16:00")}
}

func TestMarketHours_OpenDay(t *testing.T) {
	api := &fakeHoursAPI{sessions: map[string]*domain.MarketSession{"2026-10-15": regular("2026-10-15")}}
	now := at("2026-10-15", "08:00")
	m, err := New(context.Background(), api, at("2026-10-15", "00:00"), WithNow(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if m.HasMarketOpened() {
		t.Fatalf("market should not be open at 08:00")
	}
	if m.HasMarketClosed() {
		t.Fatalf("market should not be closed at 08:00")
	}
	if d, ok := m.TimeUntilOpen(); !ok || d != 90*time.Minute {
		t.Fatalf("TimeUntilOpen = %v, %v", d, ok)
	}

	now = at("2026-10-15", "12:00")
	if !m.HasMarketOpened() || m.HasMarketClosed() {
		t.Fatalf("market should be open at noon")
	}
	if d, ok := m.TimeUntilClose(); !ok || d != 4*time.Hour {
		t.Fatalf("TimeUntilClose = %v, %v", d, ok)
	}

	now = at("2026-10-15", "16:00")
	if !m.HasMarketClosed() {
		t.Fatalf("market should be closed at 16:00")
	}
}

func TestMarketHours_ClosedDayAnnouncesOnce(t *testing.T) {
	api := &fakeHoursAPI{}
	n := &portstest.Notifier{}
	m, err := New(context.Background(), api, at("2026-10-17", "00:00"), WithNotifier(n))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !m.HasMarketClosed() {
			t.Fatalf("weekend should be closed")
		}
	}
	if m.HasMarketOpened() {
		t.Fatalf("weekend should never open")
	}
	if got := n.Count(domain.EventMarketHours); got != 1 {
		t.Fatalf("expected one closed announcement, got %d", got)
	}
	if _, ok := m.TimeUntilClose(); ok {
		t.Fatalf("TimeUntilClose should report closed")
	}
	if err := m.WaitForMarketOpen(context.Background()); err != nil {
		t.Fatalf("WaitForMarketOpen on closed day: %v", err)
	}
}

func TestMarketHours_ChangeDate(t *testing.T) {
	api := &fakeHoursAPI{sessions: map[string]*domain.MarketSession{"2026-10-19": regular("2026-10-19")}}
	now := at("2026-10-19", "10:00")
	m, err := New(context.Background(), api, at("2026-10-18", "00:00"), WithNow(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !m.HasMarketClosed() {
		t.Fatalf("sunday should be closed")
	}
	if err := m.ChangeDate(context.Background(), "2026-10-19"); err != nil {
		t.Fatalf("ChangeDate: %v", err)
	}
	if m.HasMarketClosed() {
		t.Fatalf("monday 10:00 should be open")
	}
	if err := m.ChangeDate(context.Background(), "19/10/2026"); err == nil {
		t.Fatalf("expected parse error")
	}
	if len(api.asked) != 2 {
		t.Fatalf("expected 2 queries, got %v", api.asked)
	}
}

func TestMarketHours_WaitForMarketOpen(t *testing.T) {
	date := "2026-10-15"
	api := &fakeHoursAPI{sessions: map[string]*domain.MarketSession{date: {
		IsOpen: true,
		Open:   time.Now().Add(30 * time.Millisecond),
		Close:  time.Now().Add(time.Hour),
	}}}
	m, err := New(context.Background(), api, at(date, "00:00"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Now()
	if err := m.WaitForMarketOpen(context.Background()); err != nil {
		t.Fatalf("WaitForMarketOpen: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("returned too early")
	}

	api.sessions[date].Open = time.Now().Add(time.Hour)
	if err := m.ChangeDate(context.Background(), date); err != nil {
		t.Fatalf("ChangeDate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.WaitForMarketOpen(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestNew_PropagatesError(t *testing.T) {
	if _, err := New(context.Background(), &fakeHoursAPI{err: errors.New("503")}, time.Time{}); err == nil {
		t.Fatalf("expected error")
	}
}
