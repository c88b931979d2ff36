package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/wetrade/internal/domain"
)

func TestRenderTable(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	out := renderTable([]domain.QuoteSnapshot{
		{Symbol: "AAPL", BidPrice: 189.4, AskPrice: 189.6, LastPrice: 189.5, BidSize: 300, UpdatedAt: now.Add(-2 * time.Second)},
	}, []string{"AAPL", "MSFT"}, now)

	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "189.50")
	assert.Contains(t, out, "300")
	assert.Contains(t, out, "2s前")
	assert.Contains(t, out, "MSFT")
	assert.Contains(t, out, "等待数据")
}

func TestPriceAndSize(t *testing.T) {
	assert.Equal(t, "-", price(0))
	assert.Equal(t, "12.30", price(12.3))
	assert.Equal(t, "-", size(-1))
	assert.Equal(t, "100", size(100))
}
