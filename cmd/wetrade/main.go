// wetrade 命令行：按价格条件下单并跟踪订单状态，同时提供只读状态服务。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/account"
	"github.com/betbot/wetrade/internal/app"
	"github.com/betbot/wetrade/internal/controlplane/server"
	"github.com/betbot/wetrade/internal/domain"
	"github.com/betbot/wetrade/internal/metrics"
	"github.com/betbot/wetrade/internal/order"
	"github.com/betbot/wetrade/internal/quote"
	"github.com/betbot/wetrade/pkg/config"
	"github.com/betbot/wetrade/pkg/logger"
	"github.com/betbot/wetrade/pkg/shutdown"
)

var (
	configPath = flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	symbol     = flag.String("symbol", "", "交易标的，例如 AAPL")
	side       = flag.String("side", "BUY", "下单指令：BUY/SELL/SELL_SHORT/BUY_TO_COVER")
	qty        = flag.Int64("qty", 0, "数量")
	price      = flag.String("price", "", "限价；为空则市价单")
	below      = flag.Float64("below", 0, "最新成交价跌破该值后下单")
	above      = flag.Float64("above", 0, "最新成交价涨破该值后下单")
	watch      = flag.Bool("watch", false, "只监控行情与账户推送，不下单")
)

func main() {
	flag.Parse()

	// .env 可选；不存在时直接使用环境变量
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fatal(fmt.Errorf("加载配置失败: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("配置无效: %w", err))
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		LogByDay:   cfg.Log.ByDay,
	}); err != nil {
		fatal(fmt.Errorf("初始化日志失败: %w", err))
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger.StartRotationChecker(ctx)

	a, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("初始化失败: %v", err)
	}
	acct, err := a.NewAccount(ctx)
	if err != nil {
		a.Close(context.Background())
		logrus.Fatalf("初始化账户失败: %v", err)
	}

	statusCfg := server.Config{
		Listen:  cfg.StatusListen,
		Account: acct,
		Orders:  a.Orders,
		Events:  a.Notifier,
	}
	if a.Journal != nil {
		statusCfg.Journal = a.Journal
	}

	var mq *quote.MultiQuote
	if *watch || *symbol == "" {
		if mq, err = a.NewMultiQuote(ctx, symbolsFromFlag()); err != nil {
			a.Close(context.Background())
			logrus.Fatalf("初始化行情失败: %v", err)
		}
		statusCfg.Quotes = mq
	}
	startServers(ctx, a.Shutdown, statusCfg, cfg.DebugListen)

	done := make(chan error, 1)
	switch {
	case mq != nil:
		mq.Start()
		go func() {
			<-mq.Done()
			done <- nil
		}()
	default:
		go func() { done <- trade(ctx, a, acct) }()
	}

	select {
	case sig := <-signalCh(ctx):
		logrus.Infof("收到信号 %s，正在退出", sig)
	case err := <-done:
		if err != nil {
			logrus.Errorf("运行结束: %v", err)
		} else {
			logrus.Info("运行结束")
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	a.Close(shutdownCtx)
}

// trade 按参数等待价格条件后下单，并等待成交
func trade(ctx context.Context, a *app.App, acct *account.Account) error {
	if *qty <= 0 {
		return fmt.Errorf("qty 必须大于 0")
	}
	instruction := domain.Instruction(strings.ToUpper(strings.TrimSpace(*side)))

	var o *order.Order
	if strings.TrimSpace(*price) == "" {
		o = order.NewMarket(a.Client, acct, *symbol, instruction, *qty, a.OrderOptions()...)
	} else {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return fmt.Errorf("price 无效: %w", err)
		}
		o = order.NewLimit(a.Client, acct, *symbol, instruction, *qty, p, a.OrderOptions()...)
	}
	a.Orders.Add(o)

	place := func(ctx context.Context, snap domain.QuoteSnapshot) error {
		if !snap.UpdatedAt.IsZero() {
			logrus.Infof("触发下单: %s 最新价 %.2f", snap.Symbol, snap.LastPrice)
		}
		if !o.PlaceAndSubscribe(ctx) {
			return fmt.Errorf("下单失败: %s", o.Spec().Symbol)
		}
		return o.WaitForStatus(ctx, domain.OrderStatusExecuted, nil)
	}

	if *below <= 0 && *above <= 0 {
		return place(ctx, domain.QuoteSnapshot{})
	}
	q, err := a.NewQuote(ctx, *symbol)
	if err != nil {
		return err
	}
	if *below > 0 {
		return q.WaitForPriceFall(ctx, *below, place)
	}
	return q.WaitForPriceRise(ctx, *above, place)
}

func startServers(ctx context.Context, sm *shutdown.Manager, statusCfg server.Config, debugListen string) {
	if statusCfg.Listen != "" {
		srv := server.New(statusCfg)
		if err := srv.Start(ctx); err != nil {
			logrus.Warnf("状态服务启动失败: %v", err)
		} else {
			sm.OnShutdown("status server", srv.Close)
		}
	}
	if debugListen != "" {
		if _, err := metrics.StartAsync(ctx, debugListen); err != nil {
			logrus.Warnf("调试服务启动失败: %v", err)
		}
	}
}

func symbolsFromFlag() []string {
	if s := strings.TrimSpace(*symbol); s != "" {
		return strings.Split(strings.ToUpper(s), ",")
	}
	return nil
}

func signalCh(ctx context.Context) <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	go func() {
		if sig := shutdown.WaitForSignal(ctx); sig != nil {
			ch <- sig
		}
	}()
	return ch
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
