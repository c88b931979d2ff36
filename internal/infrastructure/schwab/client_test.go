package schwab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/wetrade/internal/domain"
)

type staticTokens string

func (s staticTokens) Token() string { return string(s) }

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, RetryCount: 2}, staticTokens("tok-123"))
}

func TestPlaceOrder_ReturnsLocationAndNeverRetries(t *testing.T) {
	var posts atomic.Int32
	var got domain.OrderPayload
	mux := http.NewServeMux()
	mux.HandleFunc("/trader/v1/accounts/HASH/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		posts.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&got)
		if posts.Load() == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Location", "https://api.schwabapi.com/trader/v1/accounts/HASH/orders/998877")
		w.WriteHeader(http.StatusCreated)
	})
	c := newTestClient(t, mux)

	price := decimal.RequireFromString("12.5")
	payload := domain.OrderPayload{
		Session: "NORMAL", Duration: "DAY", OrderType: domain.OrderTypeLimit, Price: &price,
		OrderLegCollection: []domain.OrderLeg{{Instruction: domain.InstructionBuy, Instrument: domain.Instrument{AssetType: domain.AssetTypeEquity, Symbol: "AAPL"}, Quantity: 2}},
		OrderStrategyType:  "SINGLE",
	}

	res, err := c.PlaceOrder(context.Background(), "HASH", payload)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, int32(1), posts.Load(), "placement must not be retried")

	res, err = c.PlaceOrder(context.Background(), "HASH", payload)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Contains(t, res.Location, "/orders/998877")
	assert.Equal(t, "AAPL", got.OrderLegCollection[0].Instrument.Symbol)
	assert.Equal(t, "12.5", got.Price.String())
}

func TestGetOrder_RetriesReadsAndWrapsErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/trader/v1/accounts/HASH/orders/1", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"orderId": 1, "status": "WORKING", "price": 10.25, "quantity": 5}`))
	})
	mux.HandleFunc("/trader/v1/accounts/HASH/orders/2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Order not found"}`))
	})
	c := newTestClient(t, mux)

	rec, err := c.GetOrder(context.Background(), "HASH", "1")
	require.NoError(t, err)
	assert.Equal(t, "WORKING", rec.Status)
	assert.Equal(t, "10.25", rec.Price.String())
	assert.Equal(t, int32(2), calls.Load())

	_, err = c.GetOrder(context.Background(), "HASH", "2")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Contains(t, err.Error(), "Order not found")
}

func TestCancelOrder(t *testing.T) {
	var method string
	mux := http.NewServeMux()
	mux.HandleFunc("/trader/v1/accounts/HASH/orders/55", func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, mux)
	require.NoError(t, c.CancelOrder(context.Background(), "HASH", "55"))
	assert.Equal(t, http.MethodDelete, method)
}

func TestAccountEndpoints(t *testing.T) {
	var query atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/trader/v1/accounts/accountNumbers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"accountNumber": "123", "hashValue": "HASH"}]`))
	})
	mux.HandleFunc("/trader/v1/accounts/HASH", func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"securitiesAccount": {"accountNumber": "123", "positions": [{"longQuantity": 3, "instrument": {"symbol": "AAPL"}}]}, "aggregatedBalance": {"liquidationValue": 1000.5}}`))
	})
	mux.HandleFunc("/trader/v1/accounts/HASH/orders", func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.RawQuery)
		_, _ = w.Write([]byte(`[{"orderId": 7, "status": "FILLED"}]`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	numbers, err := c.GetAccountNumbers(ctx)
	require.NoError(t, err)
	require.Len(t, numbers, 1)
	assert.Equal(t, "HASH", numbers[0].HashValue)

	info, err := c.GetAccount(ctx, "HASH", true)
	require.NoError(t, err)
	assert.Equal(t, "fields=positions", query.Load())
	assert.Equal(t, "1000.5", info.AggregatedBalance.LiquidationValue.String())
	assert.Len(t, info.SecuritiesAccount.Positions, 1)

	from := time.Date(2026, 10, 15, 13, 30, 0, 0, time.UTC)
	orders, err := c.GetOrdersForAccount(ctx, "HASH", from, from.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Contains(t, query.Load(), "fromEnteredTime=2026-10-15T13%3A30%3A00.000Z")
}

func TestGetQuotes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/marketdata/v1/quotes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL,BAD", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{
			"AAPL": {"symbol": "AAPL", "quote": {"lastPrice": 190.5, "openPrice": 188.25, "bidPrice": 190.4}},
			"errors": {"invalidSymbols": ["BAD"]}
		}`))
	})
	c := newTestClient(t, mux)

	quotes, err := c.GetQuotes(context.Background(), []string{"AAPL", "BAD"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 190.5, quotes["AAPL"].LastPrice)
	assert.Equal(t, 188.25, quotes["AAPL"].OpenPrice)
	assert.Equal(t, "AAPL", quotes["AAPL"].Symbol)
}

func TestGetMarketHours(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/marketdata/v1/markets", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "2026-10-17" {
			_, _ = w.Write([]byte(`{"equity": {"equity": {"isOpen": false}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"equity": {"EQ": {"isOpen": true, "sessionHours": {"regularMarket": [{"start": "2026-10-15T09:30:00-04:00", "end": "2026-10-15T16:00:00-04:00"}]}}}}`))
	})
	c := newTestClient(t, mux)

	open, err := c.GetMarketHours(context.Background(), time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, open.IsOpen)
	assert.Equal(t, 13, open.Open.UTC().Hour())
	assert.Equal(t, 20, open.Close.UTC().Hour())

	closed, err := c.GetMarketHours(context.Background(), time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
}

func TestGetStreamerInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/trader/v1/userPreference", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"streamerInfo": [{"streamerSocketUrl": "wss://streamer/ws", "schwabClientCustomerId": "cust", "schwabClientCorrelId": "corr", "schwabClientChannel": "N9", "schwabClientFunctionId": "APIAPP"}]}`))
	})
	c := newTestClient(t, mux)

	info, err := c.GetStreamerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wss://streamer/ws", info.StreamerSocketURL)
	assert.Equal(t, "APIAPP", info.SchwabClientFunctionID)
}

func TestAuth_Reauthenticate(t *testing.T) {
	tokens := []string{"first", "second"}
	i := 0
	a, err := NewAuth(context.Background(), TokenSourceFunc(func(context.Context) (string, error) {
		tok := tokens[i]
		if i < len(tokens)-1 {
			i++
		}
		return tok, nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "first", a.Token())

	require.NoError(t, a.Reauthenticate(context.Background(), false))
	assert.Equal(t, "second", a.Token())
	assert.ErrorIs(t, a.Reauthenticate(context.Background(), true), ErrInteractiveLogin)

	_, err = NewAuth(context.Background(), StaticToken("  "))
	assert.Error(t, err)
}
