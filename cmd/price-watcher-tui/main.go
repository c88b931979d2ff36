package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/betbot/wetrade/internal/app"
	"github.com/betbot/wetrade/internal/quote"
	"github.com/betbot/wetrade/pkg/config"
	"github.com/betbot/wetrade/pkg/logger"
)

var (
	configPath = flag.String("config", "", "配置文件路径")
	symbols    = flag.String("symbols", "", "逗号分隔的标的（默认取配置 QUOTE_SYMBOLS）")
	logFile    = flag.String("log", "logs/price-watcher-tui.log", "日志文件（终端归界面使用）")
)

// model 界面状态
type model struct {
	ctx    context.Context
	cancel context.CancelFunc

	app    *app.App
	quotes *quote.MultiQuote

	connected bool
	closed    bool // 行情循环已结束（收盘或重连耗尽）
	err       error
	now       time.Time
}

type tickMsg time.Time

type connectedMsg struct {
	app    *app.App
	quotes *quote.MultiQuote
}

type errMsg struct{ err error }

// monitorDoneMsg 行情循环退出
type monitorDoneMsg struct{}

func initialModel() model {
	ctx, cancel := context.WithCancel(context.Background())
	return model{ctx: ctx, cancel: cancel, now: time.Now()}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), connectCmd(m.ctx))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.shutdown()
			return m, tea.Quit
		}

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case connectedMsg:
		m.app = msg.app
		m.quotes = msg.quotes
		m.connected = true
		return m, waitDoneCmd(m.quotes)

	case monitorDoneMsg:
		m.closed = true

	case errMsg:
		m.err = msg.err
	}
	return m, nil
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("错误: %v\n\n按 q 退出", m.err)
	}
	if !m.connected {
		return "正在连接...\n\n按 q 退出"
	}

	var s strings.Builder
	s.WriteString(headerStyle.Render(m.headerLine()))
	s.WriteString("\n\n")
	s.WriteString(renderTable(m.quotes.Snapshots(), m.quotes.Symbols(), m.now))
	s.WriteString("\n\n按 q 退出")
	return s.String()
}

func (m model) headerLine() string {
	status := "推送中"
	switch {
	case m.closed:
		status = "行情已停止"
	case !m.quotes.Monitoring():
		status = "未连接"
	}
	session := "休市"
	if left, ok := m.app.Hours.TimeUntilClose(); ok {
		session = fmt.Sprintf("距收盘 %s", left.Truncate(time.Second))
	} else if m.app.Hours.HasMarketClosed() {
		session = "已收盘"
	}
	return fmt.Sprintf("%s | %s | %s", m.app.Hours.NowEastern().Format("2006-01-02 15:04:05 ET"), session, status)
}

func (m model) shutdown() {
	m.cancel()
	if m.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.app.Close(ctx)
	}
}

// Commands

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func connectCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		cfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			return errMsg{fmt.Errorf("加载配置失败: %w", err)}
		}
		if err := cfg.Validate(); err != nil {
			return errMsg{err}
		}
		a, err := app.New(ctx, cfg)
		if err != nil {
			return errMsg{err}
		}
		var list []string
		if *symbols != "" {
			list = strings.Split(strings.ToUpper(*symbols), ",")
		}
		mq, err := a.NewMultiQuote(ctx, list)
		if err != nil {
			a.Close(context.Background())
			return errMsg{err}
		}
		mq.Start()
		return connectedMsg{app: a, quotes: mq}
	}
}

func waitDoneCmd(mq *quote.MultiQuote) tea.Cmd {
	return func() tea.Msg {
		<-mq.Done()
		return monitorDoneMsg{}
	}
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	// 日志只写文件，避免干扰界面
	if err := logger.Init(logger.Config{
		Level:      "info",
		OutputFile: *logFile,
		MaxSize:    50,
		MaxBackups: 3,
		NoConsole:  true,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		os.Exit(1)
	}
	defer logger.Close()

	if len(os.Getenv("DEBUG")) > 0 {
		f, err := tea.LogToFile("debug.log", "debug")
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
	}

	p := tea.NewProgram(initialModel(), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("运行程序失败: %v", err)
	}
}
