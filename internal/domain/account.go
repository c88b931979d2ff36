package domain

import "github.com/shopspring/decimal"

// AccountNumber 账户号与对应的 hash（交易接口只认 hash）
type AccountNumber struct {
	AccountNumber string `json:"accountNumber"`
	HashValue     string `json:"hashValue"`
}

// SecuritiesAccount 账户详情（只保留需要的字段）
type SecuritiesAccount struct {
	Type          string     `json:"type"`
	AccountNumber string     `json:"accountNumber"`
	Positions     []Position `json:"positions,omitempty"`
}

// Position 持仓
type Position struct {
	ShortQuantity float64         `json:"shortQuantity"`
	LongQuantity  float64         `json:"longQuantity"`
	AveragePrice  decimal.Decimal `json:"averagePrice"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	Instrument    Instrument      `json:"instrument"`
}

// AccountInfo GET /accounts 返回的单个元素
type AccountInfo struct {
	SecuritiesAccount SecuritiesAccount `json:"securitiesAccount"`
	AggregatedBalance AggregatedBalance `json:"aggregatedBalance"`
}

// AggregatedBalance 汇总余额
type AggregatedBalance struct {
	CurrentLiquidationValue decimal.Decimal `json:"currentLiquidationValue"`
	LiquidationValue        decimal.Decimal `json:"liquidationValue"`
}

// StreamerInfo GET /userPreference 返回的推送连接参数
type StreamerInfo struct {
	StreamerSocketURL      string `json:"streamerSocketUrl"`
	SchwabClientCustomerID string `json:"schwabClientCustomerId"`
	SchwabClientCorrelID   string `json:"schwabClientCorrelId"`
	SchwabClientChannel    string `json:"schwabClientChannel"`
	SchwabClientFunctionID string `json:"schwabClientFunctionId"`
}
