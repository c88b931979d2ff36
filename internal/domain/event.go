package domain

import "time"

// EventKind 用户可见事件类型
type EventKind string

const (
	EventOrderPlaced    EventKind = "order_placed"
	EventOrderUpdate    EventKind = "order_update"
	EventOrderRejected  EventKind = "order_rejected"
	EventOrderFinished  EventKind = "order_finished"
	EventStatusReached  EventKind = "status_reached"
	EventPriceCrossed   EventKind = "price_crossed"
	EventMonitorStarted EventKind = "monitor_started"
	EventMonitorStopped EventKind = "monitor_stopped"
	EventMarketHours    EventKind = "market_hours"
	EventError          EventKind = "error"
)

// EventLevel 事件级别
type EventLevel string

const (
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// Event 用户可见的状态/错误叙述（写日志、写 journal）
type Event struct {
	ID      string     `json:"id"`
	Time    time.Time  `json:"time"`
	Kind    EventKind  `json:"kind"`
	Level   EventLevel `json:"level"`
	OrderID string     `json:"order_id,omitempty"`
	Symbol  string     `json:"symbol,omitempty"`
	Message string     `json:"message"`
}
