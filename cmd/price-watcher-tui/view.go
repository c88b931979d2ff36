package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/wetrade/internal/domain"
)

// 超过该时长未更新的行标记为过期
const staleAfter = time.Minute

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))

	bidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // 绿色

	askStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	priceStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	staleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// renderTable 按 symbols 的顺序渲染，尚无数据的标的显示占位
func renderTable(snaps []domain.QuoteSnapshot, symbols []string, now time.Time) string {
	bySymbol := make(map[string]domain.QuoteSnapshot, len(snaps))
	for _, s := range snaps {
		bySymbol[s.Symbol] = s
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%-8s %10s %10s %10s %8s %8s  %s", "SYMBOL", "BID", "ASK", "LAST", "BIDSZ", "ASKSZ", "UPDATED")))
	for _, sym := range symbols {
		b.WriteString("\n")
		snap, ok := bySymbol[sym]
		if !ok {
			b.WriteString(staleStyle.Render(fmt.Sprintf("%-8s %10s %10s %10s %8s %8s  %s", sym, "-", "-", "-", "-", "-", "等待数据")))
			continue
		}
		b.WriteString(renderRow(snap, now))
	}
	return borderStyle.Render(b.String())
}

func renderRow(snap domain.QuoteSnapshot, now time.Time) string {
	age := now.Sub(snap.UpdatedAt)
	updated := fmt.Sprintf("%v前", age.Round(time.Second))
	if age < 0 {
		updated = "刚刚"
	}
	row := fmt.Sprintf("%-8s %s %s %s %8s %8s  %s",
		snap.Symbol,
		bidStyle.Render(fmt.Sprintf("%10s", price(snap.BidPrice))),
		askStyle.Render(fmt.Sprintf("%10s", price(snap.AskPrice))),
		priceStyle.Render(fmt.Sprintf("%10s", price(snap.LastPrice))),
		size(snap.BidSize),
		size(snap.AskSize),
		updated,
	)
	if age > staleAfter {
		return staleStyle.Render(row)
	}
	return row
}

func price(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func size(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f", v)
}
