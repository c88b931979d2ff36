// Package app 把配置、凭证、REST、推送、通知等组件装配到一起，供各命令行程序使用。
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/wetrade/internal/account"
	"github.com/betbot/wetrade/internal/infrastructure/schwab"
	"github.com/betbot/wetrade/internal/infrastructure/streaming"
	"github.com/betbot/wetrade/internal/journal"
	"github.com/betbot/wetrade/internal/markethours"
	"github.com/betbot/wetrade/internal/notify"
	"github.com/betbot/wetrade/internal/order"
	"github.com/betbot/wetrade/internal/ports"
	"github.com/betbot/wetrade/internal/quote"
	"github.com/betbot/wetrade/pkg/config"
	"github.com/betbot/wetrade/pkg/secretstore"
	"github.com/betbot/wetrade/pkg/shutdown"
)

var appLog = logrus.WithField("component", "app")

// App 装配好的运行时
type App struct {
	Config   *config.Config
	Secrets  *secretstore.Store // 未配置时为 nil
	Auth     *schwab.Auth
	Client   *schwab.Client
	Streams  ports.StreamFactory
	Notifier *notify.Notifier
	Journal  *journal.Journal // 未配置时为 nil
	Hours    *markethours.MarketHours
	Orders   *order.Book
	Shutdown *shutdown.Manager
}

// New 按配置装配；任何一步失败都会关闭已打开的资源
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg, Orders: order.NewBook(), Shutdown: shutdown.NewManager()}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.Shutdown.Shutdown(closeCtx)
		}
	}()

	if cfg.SecretStore != "" {
		key, err := secretstore.ParseKey(cfg.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("secret key: %w", err)
		}
		a.Secrets, err = secretstore.Open(secretstore.OpenOptions{Path: cfg.SecretStore, EncryptionKey: key})
		if err != nil {
			return nil, err
		}
		a.Shutdown.OnShutdown("secretstore", func(context.Context) error { return a.Secrets.Close() })
		if err := cfg.FillSecrets(a.Secrets); err != nil {
			return nil, err
		}
	}

	notifyOpts := []notify.Option{}
	if cfg.JournalPath != "" {
		a.Journal, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		a.Shutdown.OnShutdown("journal", func(context.Context) error { return a.Journal.Close() })
		notifyOpts = append(notifyOpts, notify.WithSink(a.Journal))
	}
	a.Notifier = notify.New(notifyOpts...)
	a.Shutdown.OnShutdown("notifier", a.Notifier.Close)

	a.Auth, err = schwab.NewAuth(ctx, tokenSource(cfg, a.Secrets))
	if err != nil {
		return nil, fmt.Errorf("load access token: %w", err)
	}
	a.Client = schwab.NewClient(schwab.Config{
		BaseURL:           cfg.Schwab.BaseURL,
		Timeout:           cfg.Schwab.Timeout,
		RetryCount:        cfg.Schwab.RetryCount,
		RequestsPerMinute: cfg.Schwab.RequestsPerMinute,
	}, a.Auth)

	info, err := a.Client.GetStreamerInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("streamer info: %w", err)
	}
	a.Streams = streaming.Factory(*info, a.Auth.Token, streaming.Options{
		ReadTimeout: cfg.Streaming.ReadTimeout,
		ProxyURL:    cfg.Streaming.Proxy.URL(),
	})

	a.Hours, err = markethours.New(ctx, a.Client, time.Time{}, markethours.WithNotifier(a.Notifier))
	if err != nil {
		return nil, fmt.Errorf("market hours: %w", err)
	}

	appLog.Infof("初始化完成: base=%s streamer=%s", cfg.Schwab.BaseURL, info.StreamerSocketURL)
	return a, nil
}

// tokenSource secret store 中的 token 优先（外部刷新程序会更新它），取不到再用配置
func tokenSource(cfg *config.Config, store *secretstore.Store) schwab.TokenSource {
	static := cfg.Schwab.AccessToken
	if store == nil {
		return schwab.StaticToken(static)
	}
	return schwab.TokenSourceFunc(func(ctx context.Context) (string, error) {
		tok, err := store.AccessToken(ctx)
		if err == nil {
			return tok, nil
		}
		if errors.Is(err, secretstore.ErrNotFound) && static != "" {
			return static, nil
		}
		return "", err
	})
}

// NewAccount 创建账户 hub，并在关闭时停止其推送循环
func (a *App) NewAccount(ctx context.Context) (*account.Account, error) {
	s := a.Config.Streaming
	acct, err := account.New(ctx, account.Deps{
		API:      a.Client,
		Streams:  a.Streams,
		Auth:     a.Auth,
		Notifier: a.Notifier,
	}, account.Options{
		AccountKey:     a.Config.Schwab.AccountKey,
		MonitorOnStart: a.Config.MonitorOnStart,
		AuthRetries:    s.AuthRetries,
		AuthBackoff:    s.AuthBackoff,
		MaxReconnects:  s.MaxReconnects,
		ReconnectDelay: s.ReconnectDelay,
	})
	if err != nil {
		return nil, err
	}
	a.Shutdown.OnShutdown("account", acct.Close)
	return acct, nil
}

// NewMultiQuote 创建多标的行情；symbols 为空时使用配置
func (a *App) NewMultiQuote(ctx context.Context, symbols []string) (*quote.MultiQuote, error) {
	if len(symbols) == 0 {
		symbols = a.Config.Quotes.Symbols
	}
	mq, err := quote.NewMultiQuote(ctx, a.quoteDeps(), symbols, a.quoteOptions())
	if err != nil {
		return nil, err
	}
	a.Shutdown.OnShutdown("quotes", mq.Close)
	return mq, nil
}

// NewQuote 单标的行情
func (a *App) NewQuote(ctx context.Context, symbol string) (*quote.Quote, error) {
	q, err := quote.NewQuote(ctx, a.quoteDeps(), symbol, a.quoteOptions())
	if err != nil {
		return nil, err
	}
	a.Shutdown.OnShutdown("quote "+symbol, q.Close)
	return q, nil
}

func (a *App) quoteDeps() quote.Deps {
	return quote.Deps{
		API:      a.Client,
		Streams:  a.Streams,
		Auth:     a.Auth,
		Clock:    a.Hours,
		Notifier: a.Notifier,
	}
}

func (a *App) quoteOptions() quote.Options {
	s := a.Config.Streaming
	return quote.Options{
		PollInterval:   a.Config.Quotes.PollInterval,
		AuthRetries:    s.AuthRetries,
		AuthBackoff:    s.AuthBackoff,
		MaxReconnects:  s.MaxReconnects,
		ReconnectDelay: s.ReconnectDelay,
	}
}

// OrderOptions 订单的通用选项
func (a *App) OrderOptions() []order.Option {
	return []order.Option{
		order.WithNotifier(a.Notifier),
		order.WithRecheckDelay(a.Config.Orders.RecheckDelay),
		order.WithPollInterval(a.Config.Orders.PollInterval),
	}
}

// Close 按注册逆序关闭所有组件
func (a *App) Close(ctx context.Context) {
	a.Shutdown.Shutdown(ctx)
}
