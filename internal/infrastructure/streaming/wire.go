package streaming

import (
	"strconv"

	"github.com/betbot/wetrade/internal/ports"
)

type envelope struct {
	Requests []request `json:"requests"`
}

type request struct {
	Service    string         `json:"service"`
	Command    string         `json:"command"`
	RequestID  string         `json:"requestid"`
	CustomerID string         `json:"SchwabClientCustomerId"`
	CorrelID   string         `json:"SchwabClientCorrelId"`
	Parameters map[string]any `json:"parameters"`
}

// frame 服务端下发的一帧，三种内容可能同时出现
type frame struct {
	Response []response       `json:"response"`
	Data     []dataItem       `json:"data"`
	Notify   []map[string]any `json:"notify"`
}

type response struct {
	Service   string `json:"service"`
	Command   string `json:"command"`
	RequestID string `json:"requestid"`
	Timestamp int64  `json:"timestamp"`
	Content   struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"content"`
}

type dataItem struct {
	Service   string           `json:"service"`
	Command   string           `json:"command"`
	Timestamp int64            `json:"timestamp"`
	Content   []map[string]any `json:"content"`
}

var fieldNames = map[string]map[string]string{
	ports.ServiceAccountActivity: {
		"0": "SUBSCRIPTION_KEY",
		"1": "ACCOUNT",
		"2": "MESSAGE_TYPE",
		"3": "MESSAGE_DATA",
	},
	ports.ServiceLevelOneEquities: {
		"0":  "SYMBOL",
		"1":  "BID_PRICE",
		"2":  "ASK_PRICE",
		"3":  "LAST_PRICE",
		"4":  "BID_SIZE",
		"5":  "ASK_SIZE",
		"9":  "LAST_SIZE",
		"34": "QUOTE_TIME_MILLIS",
		"35": "TRADE_TIME_MILLIS",
	},
}

// relabel 把数字字段名换成可读名；未知数字字段改为 FIELD_<n>，非数字字段（key、seq 等）原样保留
func relabel(service string, records []map[string]any) []map[string]any {
	names := fieldNames[service]
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		m := make(map[string]any, len(rec))
		for k, v := range rec {
			if _, err := strconv.Atoi(k); err != nil {
				m[k] = v
				continue
			}
			if name, ok := names[k]; ok {
				m[name] = v
			} else {
				m["FIELD_"+k] = v
			}
		}
		out = append(out, m)
	}
	return out
}
