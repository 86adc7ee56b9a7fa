package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billsink/internal/app"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/service"
)

const barWidth = 30

// ReportsModel shows receivables aging and collected revenue per month
type ReportsModel struct {
	app         *app.App
	year        int
	receivables *service.Receivables
	revenue     map[time.Month]int64
	loading     bool
	err         error
}

type reportsDataMsg struct {
	receivables *service.Receivables
	revenue     map[time.Month]int64
	err         error
}

// NewReportsModel creates a new reports screen model
func NewReportsModel(a *app.App) tea.Model {
	return &ReportsModel{app: a, year: time.Now().Year(), loading: true}
}

func (m *ReportsModel) Init() tea.Cmd {
	return m.loadData()
}

func (m *ReportsModel) loadData() tea.Cmd {
	a, year := m.app, m.year
	return func() tea.Msg {
		ctx := context.Background()
		rec, err := a.Reports.Receivables(ctx, a.Owner())
		if err != nil {
			return reportsDataMsg{err: err}
		}
		revenue, err := a.Reports.RevenueByMonth(ctx, a.Owner(), year)
		if err != nil {
			return reportsDataMsg{err: err}
		}
		return reportsDataMsg{receivables: rec, revenue: revenue}
	}
}

func (m *ReportsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RefreshDataMsg:
		m.loading = true
		return m, m.loadData()

	case reportsDataMsg:
		m.loading = false
		m.err = msg.err
		m.receivables = msg.receivables
		m.revenue = msg.revenue
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, DefaultKeyMap.Left):
			m.year--
			m.loading = true
			return m, m.loadData()
		case key.Matches(msg, DefaultKeyMap.Right):
			if m.year < time.Now().Year() {
				m.year++
				m.loading = true
				return m, m.loadData()
			}
		}
	}
	return m, nil
}

func (m *ReportsModel) View() string {
	if m.loading {
		return "Loading reports..."
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	var b strings.Builder
	r := m.receivables
	b.WriteString(titleStyle.Render("Receivables Aging") + "\n\n")
	var largest int64
	for _, bucket := range service.AgingBuckets {
		largest = max(largest, r.Aging[bucket])
	}
	for _, bucket := range service.AgingBuckets {
		label := string(bucket)
		if bucket != service.AgingCurrent {
			label += " days"
		}
		fmt.Fprintf(&b, "  %-10s %12s  %s\n", label, money.Format(r.Aging[bucket]), bar(r.Aging[bucket], largest, errorColor))
	}
	fmt.Fprintf(&b, "\n  %s %s\n", labelStyle.Render("Outstanding:"), money.Format(r.Outstanding))
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Drafts (unsent):"), money.Format(r.Drafts))
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Unbilled time:"), money.Format(r.UnbilledValue))

	b.WriteString("\n" + titleStyle.Render(fmt.Sprintf("Collected in %d", m.year)) + "\n\n")
	var total, peak int64
	for month := time.January; month <= time.December; month++ {
		total += m.revenue[month]
		peak = max(peak, m.revenue[month])
	}
	for month := time.January; month <= time.December; month++ {
		fmt.Fprintf(&b, "  %-4s %12s  %s\n", month.String()[:3], money.Format(m.revenue[month]), bar(m.revenue[month], peak, successColor))
	}
	fmt.Fprintf(&b, "\n  %s %s\n", labelStyle.Render("Year total:"), valueStyle.Render(money.Format(total)))

	b.WriteString("\n" + helpStyle.Render("  ←/h: previous year  →/l: next year"))
	return b.String()
}

func bar(value, largest int64, color lipgloss.Color) string {
	if value <= 0 || largest <= 0 {
		return ""
	}
	n := int(value * barWidth / largest)
	if n == 0 {
		n = 1
	}
	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", n))
}
