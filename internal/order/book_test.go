package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/ports/portstest"
)

func TestBook(t *testing.T) {
	api := portstest.NewOrderAPI()
	hub := portstest.NewHub("HASH")
	placed := placedOrder(t, api, hub)
	unplaced := newTestOrder(api, hub)

	b := NewBook()
	b.Add(unplaced)
	b.Add(placed)
	b.Add(placed)

	snaps := b.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "1001", snaps[0].OrderID, "最近更新的在前")

	got, ok := b.Get("1001")
	require.True(t, ok)
	assert.Same(t, placed, got)
	_, ok = b.Get("")
	assert.False(t, ok)

	assert.Len(t, b.Open(), 2)
	api.SetStatus("FILLED")
	_, ok = placed.CheckStatus(t.Context())
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusExecuted, placed.Status())
	assert.Equal(t, []*Order{unplaced}, b.Open())
}
