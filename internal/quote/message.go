package quote

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/betbot/wetrade/internal/domain"
)

// LEVELONE_EQUITIES 字段名（推送的数字字段已被重命名）
const (
	fieldSymbol          = "key"
	fieldBidPrice        = "BID_PRICE"
	fieldAskPrice        = "ASK_PRICE"
	fieldLastPrice       = "LAST_PRICE"
	fieldBidSize         = "BID_SIZE"
	fieldAskSize         = "ASK_SIZE"
	fieldLastSize        = "LAST_SIZE"
	fieldQuoteTimeMillis = "QUOTE_TIME_MILLIS"
	fieldTradeTimeMillis = "TRADE_TIME_MILLIS"
)

// parseLevelOne 把一条 LEVELONE 记录转为增量；没有标的的记录被丢弃
func parseLevelOne(rec map[string]any) (domain.QuoteUpdate, bool) {
	var u domain.QuoteUpdate
	sym, _ := rec[fieldSymbol].(string)
	sym = strings.ToUpper(strings.TrimSpace(sym))
	if sym == "" {
		return u, false
	}
	u.Symbol = sym
	u.LastPrice = floatField(rec, fieldLastPrice)
	u.BidPrice = floatField(rec, fieldBidPrice)
	u.AskPrice = floatField(rec, fieldAskPrice)
	u.BidSize = floatField(rec, fieldBidSize)
	u.AskSize = floatField(rec, fieldAskSize)
	u.LastSize = floatField(rec, fieldLastSize)
	u.QuoteTime = millisField(rec, fieldQuoteTimeMillis)
	u.TradeTime = millisField(rec, fieldTradeTimeMillis)
	return u, true
}

func floatField(rec map[string]any, key string) *float64 {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

func millisField(rec map[string]any, key string) *time.Time {
	f := floatField(rec, key)
	if f == nil || *f <= 0 {
		return nil
	}
	t := time.UnixMilli(int64(*f))
	return &t
}
