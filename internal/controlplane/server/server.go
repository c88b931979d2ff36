package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/account"
	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/metrics"
)

var serverLog = logrus.WithField("component", "controlplane")

// AccountView 账户 hub 的只读视图
type AccountView interface {
	Status() account.Status
}

// OrderView 进程内订单
type OrderView interface {
	Snapshots() []domain.OrderSnapshot
}

// QuoteView 行情快照
type QuoteView interface {
	Snapshots() []domain.QuoteSnapshot
	Monitoring() bool
}

// EventView 最近的用户消息（内存）
type EventView interface {
	Recent() []domain.Event
}

// EventStore 持久化的用户消息（journal）
type EventStore interface {
	Recent(ctx context.Context, limit int) ([]domain.Event, error)
	ForOrder(ctx context.Context, orderID string) ([]domain.Event, error)
}

// Config 各视图均可为 nil，对应接口返回 404
type Config struct {
	Listen  string
	Account AccountView
	Orders  OrderView
	Quotes  QuoteView
	Events  EventView
	Journal EventStore
	// Debug 挂载 /debug/vars 与 /debug/pprof
	Debug bool
}

// Server 只读状态服务
type Server struct {
	cfg     Config
	started time.Time
	http    *http.Server
}

func New(cfg Config) *Server {
	return &Server{cfg: cfg, started: time.Now()}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/orders", s.handleOrders)
	api.GET("/orders/:orderID/events", s.handleOrderEvents)
	api.GET("/quotes", s.handleQuotes)
	api.GET("/events", s.handleEvents)

	if s.cfg.Debug {
		r.Any("/debug/*path", gin.WrapH(metrics.Handler()))
	}
	return r
}

// Start 非阻塞监听；ctx 结束时关闭
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Listen == "" {
		return errors.New("controlplane: listen address is required")
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.http = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLog.Errorf("状态服务退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Close(context.Background())
	}()
	serverLog.Infof("状态服务已启动: http://%s", ln.Addr())
	return nil
}

func (s *Server) Close(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
