package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态（券商返回的状态字符串 + 本地生命周期状态）
type OrderStatus string

const (
	// 本地生命周期状态（券商不会返回）
	OrderStatusUnplaced OrderStatus = "UNPLACED" // 尚未下单
	OrderStatusPlaced   OrderStatus = "PLACED"   // 下单成功，尚未确认券商状态

	// 券商状态
	OrderStatusAwaitingParentOrder    OrderStatus = "AWAITING_PARENT_ORDER"
	OrderStatusAwaitingCondition      OrderStatus = "AWAITING_CONDITION"
	OrderStatusAwaitingStopCondition  OrderStatus = "AWAITING_STOP_CONDITION"
	OrderStatusAwaitingManualReview   OrderStatus = "AWAITING_MANUAL_REVIEW"
	OrderStatusAccepted               OrderStatus = "ACCEPTED"
	OrderStatusAwaitingUROut          OrderStatus = "AWAITING_UR_OUT"
	OrderStatusPendingActivation      OrderStatus = "PENDING_ACTIVATION"
	OrderStatusQueued                 OrderStatus = "QUEUED"
	OrderStatusWorking                OrderStatus = "WORKING"
	OrderStatusOpen                   OrderStatus = "OPEN"
	OrderStatusIndividualFills        OrderStatus = "INDIVIDUAL_FILLS"
	OrderStatusPendingCancel          OrderStatus = "PENDING_CANCEL"
	OrderStatusCancelRequested        OrderStatus = "CANCEL_REQUESTED"
	OrderStatusPendingReplace         OrderStatus = "PENDING_REPLACE"
	OrderStatusReplaced               OrderStatus = "REPLACED"
	OrderStatusNew                    OrderStatus = "NEW"
	OrderStatusAwaitingReleaseTime    OrderStatus = "AWAITING_RELEASE_TIME"
	OrderStatusPendingAcknowledgement OrderStatus = "PENDING_ACKNOWLEDGEMENT"
	OrderStatusPendingRecall          OrderStatus = "PENDING_RECALL"
	OrderStatusUnknown                OrderStatus = "UNKNOWN"

	// 终态
	OrderStatusExecuted OrderStatus = "EXECUTED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusExpired  OrderStatus = "EXPIRED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// NormalizeOrderStatus 统一券商状态写法（FILLED 视为 EXECUTED，CANCELLED 视为 CANCELED）
func NormalizeOrderStatus(raw string) OrderStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "":
		return OrderStatusUnknown
	case "FILLED":
		return OrderStatusExecuted
	case "CANCELLED":
		return OrderStatusCanceled
	}
	return OrderStatus(s)
}

// IsTerminal 终态：EXECUTED / CANCELED / EXPIRED / REJECTED，之后不会再发生状态迁移
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusExecuted, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// StopsWaiting 等待状态时需要停止等待的状态（不含 REJECTED，REJECTED 走单独的处理路径）
func (s OrderStatus) StopsWaiting() bool {
	return s == OrderStatusCanceled || s == OrderStatusExecuted || s == OrderStatusExpired
}

// Instruction 下单指令
type Instruction string

const (
	InstructionBuy         Instruction = "BUY"
	InstructionSell        Instruction = "SELL"
	InstructionBuyToCover  Instruction = "BUY_TO_COVER"
	InstructionSellShort   Instruction = "SELL_SHORT"
	InstructionBuyToOpen   Instruction = "BUY_TO_OPEN"
	InstructionBuyToClose  Instruction = "BUY_TO_CLOSE"
	InstructionSellToOpen  Instruction = "SELL_TO_OPEN"
	InstructionSellToClose Instruction = "SELL_TO_CLOSE"
	InstructionExchange    Instruction = "EXCHANGE"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// AssetType 证券类型
type AssetType string

const (
	AssetTypeEquity AssetType = "EQUITY"
	AssetTypeOption AssetType = "OPTION"
	AssetTypeETF    AssetType = "ETF"
)

// OrderPayload 下单请求体
type OrderPayload struct {
	Session            string           `json:"session"`
	Duration           string           `json:"duration"`
	OrderType          OrderType        `json:"orderType"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	StopPrice          *decimal.Decimal `json:"stopPrice,omitempty"`
	OrderLegCollection []OrderLeg       `json:"orderLegCollection"`
	OrderStrategyType  string           `json:"orderStrategyType"`
}

// OrderLeg 订单腿
type OrderLeg struct {
	Instruction Instruction `json:"instruction"`
	Instrument  Instrument  `json:"instrument"`
	Quantity    int64       `json:"quantity"`
}

// Instrument 标的
type Instrument struct {
	AssetType AssetType `json:"assetType"`
	Symbol    string    `json:"symbol"`
}

// PlaceResult 下单接口的原始结果（状态码 + Location 头）
type PlaceResult struct {
	StatusCode int
	Location   string
}

// OrderRecord 查询订单返回的记录（只保留引擎关心的字段）
type OrderRecord struct {
	OrderID           int64           `json:"orderId"`
	Status            string          `json:"status"`
	Price             decimal.Decimal `json:"price"`
	Quantity          float64         `json:"quantity"`
	FilledQuantity    float64         `json:"filledQuantity"`
	RemainingQuantity float64         `json:"remainingQuantity"`
	EnteredTime       string          `json:"enteredTime,omitempty"`
	CloseTime         string          `json:"closeTime,omitempty"`
	StatusDescription string          `json:"statusDescription,omitempty"`
}

// OrderSnapshot 订单状态快照（给状态接口/日志使用）
type OrderSnapshot struct {
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Instruction Instruction     `json:"instruction"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	OrderType   OrderType       `json:"order_type"`
	Status      OrderStatus     `json:"status"`
	Subscribed  bool            `json:"subscribed"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
