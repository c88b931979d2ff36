package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/ports"
)

var streamLog = logrus.WithField("component", "streaming")

const (
	DefaultReadTimeout      = 30 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second

	serviceAdmin = "ADMIN"

	accountActivityKey    = "Account Activity"
	accountActivityFields = "0,1,2,3"
	levelOneEquityFields  = "0,1,2,3,4,5,9,34,35"
)

// TokenFunc 每次登录时取当前 access token（重新认证后会变化）
type TokenFunc func() string

// Options 推送连接参数
type Options struct {
	// ReadTimeout 单次读超时；服务端每几秒会发 heartbeat，超时即认为连接已断
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	// ProxyURL 为空时尝试 HTTPS_PROXY / HTTP_PROXY 环境变量
	ProxyURL string
}

// Session Schwab streamer 的一条 WebSocket 连接，实现 ports.StreamClient。
// 连接在 Login 时建立，Logout 后关闭；一个 Session 只用一次。
type Session struct {
	info  domain.StreamerInfo
	token TokenFunc
	opts  Options

	connMu sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string][]ports.StreamHandler

	// 等待响应时读到的数据帧，下次 HandleMessage 时先处理
	pending []frame
}

// New 创建推送会话（尚未连接）
func New(info domain.StreamerInfo, token TokenFunc, opts Options) *Session {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Session{
		info:     info,
		token:    token,
		opts:     opts,
		handlers: make(map[string][]ports.StreamHandler),
	}
}

// Factory 每次监控循环创建一个新的 Session
func Factory(info domain.StreamerInfo, token TokenFunc, opts Options) ports.StreamFactory {
	return func() ports.StreamClient { return New(info, token, opts) }
}

// AddHandler 注册服务回调
func (s *Session) AddHandler(service string, handler ports.StreamHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[service] = append(s.handlers[service], handler)
}

// Login 建立连接并发送 ADMIN LOGIN；响应码非 0 返回 ports.ErrUnexpectedResponse
func (s *Session) Login(ctx context.Context) error {
	if err := s.dial(ctx); err != nil {
		return err
	}
	params := map[string]any{
		"Authorization":          s.token(),
		"SchwabClientChannel":    s.info.SchwabClientChannel,
		"SchwabClientFunctionId": s.info.SchwabClientFunctionID,
	}
	if err := s.request(ctx, serviceAdmin, "LOGIN", params); err != nil {
		return err
	}
	streamLog.Infof("推送登录成功: %s", s.info.StreamerSocketURL)
	return nil
}

// Logout 发送 ADMIN LOGOUT 并关闭连接
func (s *Session) Logout(ctx context.Context) error {
	defer s.close()
	if s.connection() == nil {
		return nil
	}
	return s.request(ctx, serviceAdmin, "LOGOUT", map[string]any{})
}

func (s *Session) AccountActivitySub(ctx context.Context) error {
	return s.request(ctx, ports.ServiceAccountActivity, "SUBS", map[string]any{
		"keys":   accountActivityKey,
		"fields": accountActivityFields,
	})
}

func (s *Session) AccountActivityUnsubs(ctx context.Context) error {
	return s.request(ctx, ports.ServiceAccountActivity, "UNSUBS", map[string]any{
		"keys": accountActivityKey,
	})
}

func (s *Session) LevelOneEquitySubs(ctx context.Context, symbols []string) error {
	return s.request(ctx, ports.ServiceLevelOneEquities, "SUBS", map[string]any{
		"keys":   strings.Join(symbols, ","),
		"fields": levelOneEquityFields,
	})
}

func (s *Session) LevelOneEquityUnsubs(ctx context.Context, symbols []string) error {
	return s.request(ctx, ports.ServiceLevelOneEquities, "UNSUBS", map[string]any{
		"keys": strings.Join(symbols, ","),
	})
}

// HandleMessage 读取下一帧并把数据分发给已注册的 handler；heartbeat 帧直接返回 nil
func (s *Session) HandleMessage(ctx context.Context) error {
	if len(s.pending) > 0 {
		f := s.pending[0]
		s.pending = s.pending[1:]
		s.dispatch(ctx, f)
		return nil
	}
	f, err := s.read(ctx)
	if err != nil {
		return err
	}
	for _, r := range f.Response {
		streamLog.Debugf("未等待的响应: %s %s code=%d", r.Service, r.Command, r.Content.Code)
	}
	s.dispatch(ctx, f)
	return nil
}

func (s *Session) dispatch(ctx context.Context, f frame) {
	for _, d := range f.Data {
		s.handlersMu.RLock()
		hs := s.handlers[d.Service]
		s.handlersMu.RUnlock()
		if len(hs) == 0 {
			continue
		}
		msg := ports.StreamMessage{
			Service:   d.Service,
			Command:   d.Command,
			Timestamp: d.Timestamp,
			Content:   relabel(d.Service, d.Content),
		}
		for _, h := range hs {
			h(ctx, msg)
		}
	}
}

// request 发送一条请求并等待对应的响应
func (s *Session) request(ctx context.Context, service, command string, params map[string]any) error {
	conn := s.connection()
	if conn == nil {
		return fmt.Errorf("streaming: %s %s: not connected", service, command)
	}
	id := uuid.NewString()
	req := envelope{Requests: []request{{
		Service:    service,
		Command:    command,
		RequestID:  id,
		CustomerID: s.info.SchwabClientCustomerID,
		CorrelID:   s.info.SchwabClientCorrelID,
		Parameters: params,
	}}}

	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(s.opts.ReadTimeout))
	err := conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("streaming: send %s %s: %w", service, command, err)
	}

	for {
		f, err := s.read(ctx)
		if err != nil {
			return fmt.Errorf("streaming: await %s %s: %w", service, command, err)
		}
		var resp *response
		for i := range f.Response {
			r := &f.Response[i]
			if r.RequestID == id || (r.RequestID == "" && r.Service == service && r.Command == command) {
				resp = r
				break
			}
		}
		if len(f.Data) > 0 {
			s.pending = append(s.pending, frame{Data: f.Data})
		}
		if resp == nil {
			continue
		}
		if resp.Content.Code != 0 {
			return fmt.Errorf("%w: %s %s code=%d msg=%s",
				ports.ErrUnexpectedResponse, service, command, resp.Content.Code, resp.Content.Msg)
		}
		return nil
	}
}

// read 读一帧；ctx 取消时关闭连接以打断阻塞读
func (s *Session) read(ctx context.Context) (frame, error) {
	conn := s.connection()
	if conn == nil {
		return frame{}, fmt.Errorf("streaming: not connected")
	}
	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return frame{}, ctx.Err()
		}
		return frame{}, err
	}
	var f frame
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		// 单帧解析失败不影响连接
		streamLog.Debugf("无法解析推送帧: %v", err)
		return frame{}, nil
	}
	return f, nil
}

func (s *Session) dial(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return nil
	}
	if s.closed {
		return fmt.Errorf("streaming: session already closed")
	}
	if s.info.StreamerSocketURL == "" {
		return fmt.Errorf("streaming: missing streamer socket url")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: s.opts.HandshakeTimeout,
	}
	proxy := s.opts.ProxyURL
	if proxy == "" {
		proxy = proxyFromEnv()
	}
	if proxy != "" {
		if u, err := url.Parse(proxy); err != nil {
			streamLog.Warnf("解析代理 URL 失败: %v，将尝试直接连接", err)
		} else {
			dialer.Proxy = http.ProxyURL(u)
			streamLog.Infof("使用代理连接推送服务: %s", proxy)
		}
	}

	conn, _, err := dialer.DialContext(ctx, s.info.StreamerSocketURL, nil)
	if err != nil {
		return fmt.Errorf("streaming: dial %s: %w", s.info.StreamerSocketURL, err)
	}
	s.conn = conn
	return nil
}

func (s *Session) connection() *websocket.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Session) close() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func proxyFromEnv() string {
	for _, k := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

var _ ports.StreamClient = (*Session)(nil)
