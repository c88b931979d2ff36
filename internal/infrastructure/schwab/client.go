// Package schwab 是券商 REST 接口的适配层（trader / marketdata）。
package schwab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/ports"
	"github.com/betbot/wetrade/pkg/ratelimit"
)

var restLog = logrus.WithField("component", "schwab")

// DefaultBaseURL 生产环境地址
const DefaultBaseURL = "https://api.schwabapi.com"

const enteredTimeLayout = "2006-01-02T15:04:05.000Z"

// TokenProvider 提供当前的 access token
type TokenProvider interface {
	Token() string
}

// Config REST 客户端配置
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RetryCount 只作用于读请求；下单请求永不重试
	RetryCount int
	// RequestsPerMinute 0 表示不限速
	RequestsPerMinute int
	UserAgent         string
}

// Client 券商 REST 客户端
type Client struct {
	read   *resty.Client
	write  *resty.Client
	tokens TokenProvider
	limits *ratelimit.Manager
	ua     string
}

// NewClient 创建客户端
func NewClient(cfg Config, tokens TokenProvider) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wetrade/1.0"
	}

	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	read := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		}).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 如果遇到 429 限流，使用 Retry-After 头
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 2 * time.Second, nil
			}
			return 0, nil
		})

	// 下单不能自动重试，避免重复下单
	write := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)

	c := &Client{read: read, write: write, tokens: tokens, ua: cfg.UserAgent}
	if cfg.RequestsPerMinute > 0 {
		c.limits = ratelimit.NewManager(cfg.RequestsPerMinute)
	}
	return c
}

// 仅设置本次请求的 Header（不要修改 client 级 Header）
func (c *Client) newRequest(ctx context.Context, rc *resty.Client, endpoint string) (*resty.Request, error) {
	if c.limits != nil {
		if err := c.limits.Wait(ctx, endpoint); err != nil {
			return nil, errors.Wrap(err, "rate limit")
		}
	}
	r := rc.R().SetContext(ctx)
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", c.ua)
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			r.SetAuthToken(tok)
		}
	}
	return r, nil
}

// HTTPError 非 2xx 响应
type HTTPError struct {
	StatusCode int
	Status     string
	Body       any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http non-2xx: %s: %v", e.Status, e.Body)
}

// StatusCode 从错误链中取出 HTTP 状态码，没有时返回 0
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return 0
}

func parseHTTPError(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = string(b)
	}
	return &HTTPError{StatusCode: resp.StatusCode(), Status: resp.Status(), Body: body}
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	group := ratelimit.EndpointTrader
	if strings.HasPrefix(endpoint, "/marketdata/") {
		group = ratelimit.EndpointMarketData
	}
	r, err := c.newRequest(ctx, c.read, group)
	if err != nil {
		return err
	}
	if len(params) > 0 {
		r.SetQueryParams(params)
	}
	if out != nil {
		// 部分网关返回 text/plain，强制按 JSON 解析
		r.SetResult(out).ForceContentType("application/json")
	}
	resp, err := r.Get(endpoint)
	if err := parseHTTPError(resp, err); err != nil {
		restLog.Debugf("GET %s 失败: %v", endpoint, err)
		return errors.Wrapf(err, "GET %s", endpoint)
	}
	return nil
}

func accountPath(accountHash string) string {
	return "/trader/v1/accounts/" + accountHash
}

// GetAccountNumbers 账户号与 hash
func (c *Client) GetAccountNumbers(ctx context.Context) ([]domain.AccountNumber, error) {
	var out []domain.AccountNumber
	if err := c.get(ctx, "/trader/v1/accounts/accountNumbers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccounts 所有关联账户
func (c *Client) GetAccounts(ctx context.Context, withPositions bool) ([]domain.AccountInfo, error) {
	var out []domain.AccountInfo
	if err := c.get(ctx, "/trader/v1/accounts", positionsParam(withPositions), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount 单个账户
func (c *Client) GetAccount(ctx context.Context, accountHash string, withPositions bool) (*domain.AccountInfo, error) {
	var out domain.AccountInfo
	if err := c.get(ctx, accountPath(accountHash), positionsParam(withPositions), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func positionsParam(withPositions bool) map[string]string {
	if !withPositions {
		return nil
	}
	return map[string]string{"fields": "positions"}
}

// GetOrdersForAccount 时间范围内的订单
func (c *Client) GetOrdersForAccount(ctx context.Context, accountHash string, from, to time.Time) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	params := map[string]string{
		"fromEnteredTime": from.UTC().Format(enteredTimeLayout),
		"toEnteredTime":   to.UTC().Format(enteredTimeLayout),
	}
	if err := c.get(ctx, accountPath(accountHash)+"/orders", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder 下单。只要收到 HTTP 响应就返回原始状态码与 Location，由调用方判断是否成功；
// error 只表示传输失败。
func (c *Client) PlaceOrder(ctx context.Context, accountHash string, payload domain.OrderPayload) (*domain.PlaceResult, error) {
	r, err := c.newRequest(ctx, c.write, ratelimit.EndpointOrderWrite)
	if err != nil {
		return nil, err
	}
	resp, err := r.SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(accountPath(accountHash) + "/orders")
	if err != nil {
		return nil, errors.Wrap(err, "POST order")
	}
	res := &domain.PlaceResult{
		StatusCode: resp.StatusCode(),
		Location:   resp.Header().Get("Location"),
	}
	if !resp.IsSuccess() {
		restLog.Warnf("下单被拒绝: %v", parseHTTPError(resp, nil))
	}
	return res, nil
}

// GetOrder 单个订单
func (c *Client) GetOrder(ctx context.Context, accountHash, orderID string) (*domain.OrderRecord, error) {
	var out domain.OrderRecord
	if err := c.get(ctx, accountPath(accountHash)+"/orders/"+orderID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder 撤单
func (c *Client) CancelOrder(ctx context.Context, accountHash, orderID string) error {
	r, err := c.newRequest(ctx, c.write, ratelimit.EndpointOrderWrite)
	if err != nil {
		return err
	}
	resp, err := r.Delete(accountPath(accountHash) + "/orders/" + orderID)
	if err := parseHTTPError(resp, err); err != nil {
		return errors.Wrapf(err, "DELETE order %s", orderID)
	}
	return nil
}

type quoteEnvelope struct {
	Symbol string             `json:"symbol"`
	Quote  domain.QuoteRecord `json:"quote"`
}

// GetQuotes 多标的报价
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.QuoteRecord, error) {
	if len(symbols) == 0 {
		return map[string]domain.QuoteRecord{}, nil
	}
	raw := make(map[string]json.RawMessage)
	params := map[string]string{
		"symbols": strings.Join(symbols, ","),
		"fields":  "quote",
	}
	if err := c.get(ctx, "/marketdata/v1/quotes", params, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]domain.QuoteRecord, len(raw))
	for sym, body := range raw {
		var env quoteEnvelope
		// 无效标的会以 {"errors": ...} 的形式出现在同一个对象里
		if err := json.Unmarshal(body, &env); err != nil || sym == "errors" {
			continue
		}
		env.Quote.Symbol = sym
		out[sym] = env.Quote
	}
	return out, nil
}

type marketHoursResponse struct {
	Equity map[string]struct {
		IsOpen       bool `json:"isOpen"`
		SessionHours struct {
			RegularMarket []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"regularMarket"`
		} `json:"sessionHours"`
	} `json:"equity"`
}

// GetMarketHours 股票市场在 date 当天的常规交易时段；没有 EQ 条目表示休市
func (c *Client) GetMarketHours(ctx context.Context, date time.Time) (*domain.MarketSession, error) {
	var out marketHoursResponse
	params := map[string]string{
		"markets": "equity",
		"date":    date.Format("2006-01-02"),
	}
	if err := c.get(ctx, "/marketdata/v1/markets", params, &out); err != nil {
		return nil, err
	}

	session := &domain.MarketSession{Date: date}
	eq, ok := out.Equity["EQ"]
	if !ok || len(eq.SessionHours.RegularMarket) == 0 {
		return session, nil
	}
	regular := eq.SessionHours.RegularMarket[0]
	open, err := time.Parse(time.RFC3339, regular.Start)
	if err != nil {
		return nil, errors.Wrapf(err, "parse market open %q", regular.Start)
	}
	closeAt, err := time.Parse(time.RFC3339, regular.End)
	if err != nil {
		return nil, errors.Wrapf(err, "parse market close %q", regular.End)
	}
	session.Open = open
	session.Close = closeAt
	session.IsOpen = true
	return session, nil
}

type userPreferenceResponse struct {
	StreamerInfo []domain.StreamerInfo `json:"streamerInfo"`
}

// GetStreamerInfo 推送连接参数（取第一个）
func (c *Client) GetStreamerInfo(ctx context.Context) (*domain.StreamerInfo, error) {
	var out userPreferenceResponse
	if err := c.get(ctx, "/trader/v1/userPreference", nil, &out); err != nil {
		return nil, err
	}
	if len(out.StreamerInfo) == 0 {
		return nil, errors.New("userPreference: no streamerInfo")
	}
	info := out.StreamerInfo[0]
	return &info, nil
}

var (
	_ ports.OrderAPI       = (*Client)(nil)
	_ ports.AccountAPI     = (*Client)(nil)
	_ ports.QuoteAPI       = (*Client)(nil)
	_ ports.MarketHoursAPI = (*Client)(nil)
)
