package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dyike/cortexmarket/internal/agents"
	"github.com/dyike/cortexmarket/internal/service"
	"github.com/dyike/cortexmarket/models"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(0, 1).
			Width(80)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	// A 股习惯：红涨绿跌
	riseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	fallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	toolCallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8B5CF6"))

	reasoningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func changeCell(pct float64) string {
	s := fmt.Sprintf("%+.2f%%", pct)
	switch {
	case pct > 0:
		return riseStyle.Render(s)
	case pct < 0:
		return fallStyle.Render(s)
	default:
		return s
	}
}

func num(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.4g", v)
}

// sourceNote tells the reader when data is not fresh.
func sourceNote(src service.Source, err error) string {
	switch src {
	case service.SourceStore:
		return warnStyle.Render("⚠ 数据源不可用，显示最近存储的数据")
	case service.SourceNone:
		if err != nil {
			return warnStyle.Render("⚠ 暂无数据: " + err.Error())
		}
		return warnStyle.Render("⚠ 暂无数据")
	case service.SourceCache:
		return mutedStyle.Render("(缓存)")
	default:
		return ""
	}
}

func renderQuotes(w io.Writer, title string, rows []models.Quote, src service.Source, srcErr error) {
	fmt.Fprintln(w, titleStyle.Render(title))
	if len(rows) > 0 {
		t := newTable("代码", "名称", "分类", "最新", "涨跌幅", "开盘", "最高", "最低", "时间")
		for _, q := range rows {
			t.Row(q.Code, q.Name, q.Category, num(q.Close), changeCell(q.ChangePercent),
				num(q.Open), num(q.High), num(q.Low), formatTime(q.Time))
		}
		fmt.Fprintln(w, t.String())
	}
	if note := sourceNote(src, srcErr); note != "" {
		fmt.Fprintln(w, note)
	}
}

func renderBars(w io.Writer, title string, rows []models.Quote, src service.Source, srcErr error) {
	fmt.Fprintln(w, titleStyle.Render(title))
	if len(rows) > 0 {
		t := newTable("日期", "开盘", "最高", "最低", "收盘", "成交量", "涨跌幅")
		for _, q := range rows {
			t.Row(q.Time.Format("2006-01-02"), num(q.Open), num(q.High), num(q.Low), num(q.Close),
				num(q.Volume), changeCell(q.ChangePercent))
		}
		fmt.Fprintln(w, t.String())
	}
	if note := sourceNote(src, srcErr); note != "" {
		fmt.Fprintln(w, note)
	}
}

func renderWatchlist(w io.Writer, class models.AssetClass, rows []watchRow) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("自选 · %s", class)))
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("自选列表为空"))
		return
	}
	t := newTable("#", "代码", "名称", "分类", "最新", "涨跌幅", "走势", "备注")
	for _, r := range rows {
		t.Row(fmt.Sprint(r.Entry.SortOrder), r.Entry.Code, r.Entry.Name, r.Entry.Category,
			num(r.Quote.Close), changeCell(r.Quote.ChangePercent), sparkline(r.History), r.Entry.Notes)
	}
	fmt.Fprintln(w, t.String())
}

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

func sparkline(vals []float64) string {
	if len(vals) == 0 {
		return "-"
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	var b strings.Builder
	for _, v := range vals {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkTicks)-1))
		}
		b.WriteRune(sparkTicks[idx])
	}
	return b.String()
}

func renderFundTypes(w io.Writer, stats []service.FundTypeStat) {
	fmt.Fprintln(w, titleStyle.Render("基金分类概览"))
	t := newTable("类型", "总数", "上涨", "下跌", "平盘", "平均涨跌")
	for _, s := range stats {
		t.Row(s.FundType, fmt.Sprint(s.Total), fmt.Sprint(s.Rise), fmt.Sprint(s.Fall), fmt.Sprint(s.Flat), changeCell(s.AvgChange))
	}
	fmt.Fprintln(w, t.String())
}

func renderNews(w io.Writer, articles []models.NewsArticle, loc *time.Location) {
	if len(articles) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("没有找到符合条件的新闻。"))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("财经新闻 (%d)", len(articles))))
	for i, a := range articles {
		source := a.SourceName
		if source == "" {
			source = a.Source
		}
		fmt.Fprintf(w, "%2d. %s %s\n", i+1, headerStyle.Render("["+source+"]"), a.Title)
		fmt.Fprintf(w, "    %s  %s\n", mutedStyle.Render(a.PublishTime.In(loc).Format("2006-01-02 15:04")),
			strings.Repeat("★", a.Importance))
		if a.URL != "" {
			fmt.Fprintln(w, "    "+mutedStyle.Render(a.URL))
		}
	}
}

// renderEvent prints one loop step of the agent while a turn runs.
func renderEvent(w io.Writer, e agents.Event) {
	switch e.Phase {
	case agents.PhaseReasoning:
		fmt.Fprintln(w, reasoningStyle.Render(fmt.Sprintf("🧠 思考中 (第 %d 轮)", e.Iteration)))
	case agents.PhaseToolCall:
		fmt.Fprintln(w, toolCallStyle.Render(fmt.Sprintf("🔧 调用 %s %s", e.Tool, e.Content)))
	case agents.PhaseToolResult:
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("   ↳ %s 返回 %d 字", e.Tool, len([]rune(e.Content)))))
	}
}

func renderAnswer(w io.Writer, answer string) {
	fmt.Fprintln(w, panelStyle.Render(answer))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("01-02 15:04")
}
