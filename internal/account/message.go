package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/metrics"
	"github.com/betbot/wetrade/internal/ports"
)

// activityPayload MESSAGE_DATA 解码后关心的部分
type activityPayload struct {
	SchwabOrderID json.RawMessage `json:"SchwabOrderID"`
	BaseEvent     struct {
		OrderUROutCompletedEvent struct {
			ValidationDetail []struct {
				NgOMSRuleDescription string `json:"NgOMSRuleDescription"`
			} `json:"ValidationDetail"`
		} `json:"OrderUROutCompletedEvent"`
	} `json:"BaseEvent"`
}

// activityRecord 单条记录解码结果
type activityRecord struct {
	Type        string
	OrderID     string
	Description string
}

// HandleMessage ACCT_ACTIVITY 推送回调。
// 同一批次里出现的每个订单号只触发一次 CheckStatus（按首次出现顺序）。
func (a *Account) HandleMessage(ctx context.Context, msg ports.StreamMessage) {
	if len(msg.Content) == 0 {
		return
	}
	metrics.StreamBatches.Add(1)

	seen := make(map[string]struct{}, len(msg.Content))
	ids := make([]string, 0, len(msg.Content))
	for _, raw := range msg.Content {
		rec, ok := decodeActivity(raw)
		if !ok {
			continue
		}
		if rec.Description != "" {
			a.deps.Notifier.Notify(domain.Event{
				ID:      uuid.NewString(),
				Time:    time.Now(),
				Kind:    domain.EventOrderUpdate,
				Level:   domain.LevelInfo,
				OrderID: rec.OrderID,
				Message: fmt.Sprintf("%s: Order Update- %s (Order # %s)", time.Now().Format("15:04:05"), rec.Description, rec.OrderID),
			})
		}
		if rec.OrderID == "" {
			continue
		}
		if _, dup := seen[rec.OrderID]; dup {
			continue
		}
		seen[rec.OrderID] = struct{}{}
		ids = append(ids, rec.OrderID)
	}

	dispatched := 0
	for _, id := range ids {
		a.mu.RLock()
		sub := a.subs[id]
		a.mu.RUnlock()
		if sub == nil {
			continue
		}
		sub.CheckStatus(ctx)
		dispatched++
	}

	a.statsMu.Lock()
	a.batches++
	a.dispatched += int64(dispatched)
	a.lastBatch = time.Now()
	a.statsMu.Unlock()
}

// decodeActivity 解析一条记录；MESSAGE_DATA 解码失败时该记录不贡献订单号
func decodeActivity(raw map[string]any) (activityRecord, bool) {
	var rec activityRecord
	if raw == nil {
		return rec, false
	}

	typeKey, dataKey := "MESSAGE_TYPE", "MESSAGE_DATA"
	if _, ok := raw[typeKey]; !ok {
		typeKey, dataKey = "FIELD_2", "FIELD_3"
	}
	rec.Type = asString(raw[typeKey])

	data := payloadString(raw[dataKey])
	if strings.TrimSpace(data) == "" {
		return rec, true
	}

	var payload activityPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		accountLog.Debugf("忽略无法解析的账户推送 (%s): %v", rec.Type, err)
		return rec, false
	}

	rec.OrderID = rawID(payload.SchwabOrderID)
	if details := payload.BaseEvent.OrderUROutCompletedEvent.ValidationDetail; len(details) > 0 {
		rec.Description = details[0].NgOMSRuleDescription
	}
	return rec, true
}

// rawID 订单号可能是字符串或数字
func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		return strings.TrimSpace(str)
	}
	return s
}

// payloadString MESSAGE_DATA 通常是再次编码的 JSON 字符串，偶尔已经被展开成对象
func payloadString(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return asString(v)
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
