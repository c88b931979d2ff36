package portstest

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/ports"
)

// AccountAPI ports.AccountAPI 的可编排实现
type AccountAPI struct {
	mu sync.Mutex

	Numbers  []domain.AccountNumber
	Accounts []domain.AccountInfo
	Orders   []domain.OrderRecord
	Err      error

	LastFrom, LastTo time.Time
	Calls            int
}

func (a *AccountAPI) GetAccountNumbers(ctx context.Context) ([]domain.AccountNumber, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Numbers, nil
}

func (a *AccountAPI) GetAccounts(ctx context.Context, withPositions bool) ([]domain.AccountInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Accounts, nil
}

func (a *AccountAPI) GetAccount(ctx context.Context, accountHash string, withPositions bool) (*domain.AccountInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	if a.Err != nil {
		return nil, a.Err
	}
	if len(a.Accounts) == 0 {
		return nil, ErrTransport
	}
	info := a.Accounts[0]
	if !withPositions {
		info.SecuritiesAccount.Positions = nil
	}
	return &info, nil
}

func (a *AccountAPI) GetOrdersForAccount(ctx context.Context, accountHash string, from, to time.Time) ([]domain.OrderRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	a.LastFrom, a.LastTo = from, to
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Orders, nil
}

var _ ports.AccountAPI = (*AccountAPI)(nil)

// QuoteAPI ports.QuoteAPI 的可编排实现
type QuoteAPI struct {
	mu     sync.Mutex
	Quotes map[string]domain.QuoteRecord
	Err    error
	Asked  [][]string
}

func (q *QuoteAPI) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.QuoteRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Asked = append(q.Asked, append([]string(nil), symbols...))
	if q.Err != nil {
		return nil, q.Err
	}
	out := make(map[string]domain.QuoteRecord, len(symbols))
	for _, s := range symbols {
		if rec, ok := q.Quotes[s]; ok {
			out[s] = rec
		}
	}
	return out, nil
}

var _ ports.QuoteAPI = (*QuoteAPI)(nil)
