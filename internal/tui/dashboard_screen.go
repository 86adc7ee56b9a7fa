package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/andy/billsink/internal/app"
	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/repository"
	"github.com/andy/billsink/internal/service"
)

// DashboardModel is the home screen: money owed, the running timer and
// recent work.
type DashboardModel struct {
	app *app.App

	receivables   *service.Receivables
	running       *domain.TimeEntry
	accrued       int64
	overdue       []*domain.Invoice
	recentEntries []*domain.TimeEntry
	clientNames   map[int64]string
	tickGen       int

	loading bool
	err     error
}

type dashboardDataMsg struct {
	receivables   *service.Receivables
	running       *domain.TimeEntry
	accrued       int64
	overdue       []*domain.Invoice
	recentEntries []*domain.TimeEntry
	clientNames   map[int64]string
	err           error
}

// NewDashboardModel creates a new dashboard model
func NewDashboardModel(a *app.App) tea.Model {
	return &DashboardModel{app: a, loading: true}
}

func (m *DashboardModel) Init() tea.Cmd {
	return m.loadData()
}

func (m *DashboardModel) loadData() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx := context.Background()
		owner := a.Owner()
		var msg dashboardDataMsg

		rec, err := a.Reports.Receivables(ctx, owner)
		if err != nil {
			msg.err = fmt.Errorf("receivables: %w", err)
			return msg
		}
		msg.receivables = rec

		clients, err := a.Store.Clients().List(ctx, owner, true)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.clientNames = clientNames(clients)

		msg.running, err = a.Timer.Running(ctx, owner)
		if err != nil {
			msg.err = err
			return msg
		}
		if msg.running != nil {
			msg.accrued, _ = a.Timer.AccruedValue(ctx, owner)
		}

		status := domain.InvoiceStatusOverdue
		msg.overdue, err = a.Invoices.List(ctx, owner, service.InvoiceFilter{Status: &status})
		if err != nil {
			msg.err = err
			return msg
		}

		now := time.Now()
		weekAgo := now.AddDate(0, 0, -7)
		msg.recentEntries, err = a.Entries.List(ctx, repository.EntryFilter{UserID: owner, Start: &weekAgo, End: &now})
		if err != nil {
			msg.err = err
		}
		return msg
	}
}

func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		m.loading = false
		m.err = msg.err
		m.receivables = msg.receivables
		m.running = msg.running
		m.accrued = msg.accrued
		m.overdue = msg.overdue
		m.recentEntries = msg.recentEntries
		m.clientNames = msg.clientNames
		m.tickGen++
		if m.running != nil {
			return m, tickTimer(m.tickGen)
		}
		return m, nil

	case TimerTickMsg:
		if msg.Gen != m.tickGen || m.running == nil {
			return m, nil
		}
		m.accrued, _ = m.app.Timer.AccruedValue(context.Background(), m.app.Owner())
		return m, tickTimer(m.tickGen)

	case RefreshDataMsg:
		m.loading = true
		return m, m.loadData()
	}
	return m, nil
}

func (m *DashboardModel) View() string {
	if m.loading {
		return "Loading dashboard..."
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	var b strings.Builder
	r := m.receivables
	fmt.Fprintf(&b, "  Outstanding:  %-14s  Open invoices:  %d\n", money.Format(r.Outstanding), r.OpenInvoices)
	fmt.Fprintf(&b, "  Overdue:      %-14s  Overdue count:  %d\n", money.Format(r.Overdue), r.OverdueInvoices)
	fmt.Fprintf(&b, "  Unbilled:     %-14s  (%s tracked)\n", money.Format(r.UnbilledValue), formatMinutes(r.UnbilledMinutes))
	if r.UnpricedMinutes > 0 {
		b.WriteString(subtitleStyle.Render(fmt.Sprintf("  %s of billable time has no rate", formatMinutes(r.UnpricedMinutes))) + "\n")
	}

	b.WriteString("\n")
	if m.running != nil {
		fmt.Fprintf(&b, "  Active Timer\n  %s %s - %s  [%s]  %s\n",
			timerRunningStyle.Render("●"),
			nameOr(m.clientNames, m.running.ClientID),
			m.running.Description,
			timerValueStyle.Render(formatClock(m.running.Duration())),
			money.Format(m.accrued),
		)
	} else {
		b.WriteString(subtitleStyle.Render("  No active timer") + "\n")
	}

	b.WriteString("\n  Overdue Invoices\n")
	if len(m.overdue) == 0 {
		b.WriteString(subtitleStyle.Render("  Nothing overdue") + "\n")
	}
	now := time.Now()
	for i, inv := range m.overdue {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "  %-14s %-20s %12s  %d days late\n",
			inv.InvoiceNumber,
			truncateStr(nameOr(m.clientNames, inv.ClientID), 20),
			money.Format(inv.BalanceDue()),
			inv.DaysOverdue(now),
		)
	}

	b.WriteString("\n  Recent Entries (Last 7 Days)\n")
	if len(m.recentEntries) == 0 {
		b.WriteString(subtitleStyle.Render("  No recent entries") + "\n")
	}
	for i, e := range m.recentEntries {
		if i >= 8 {
			break
		}
		minutes := e.DurationMinutes
		if e.IsRunning() {
			minutes = int64(e.Duration() / time.Minute)
		}
		fmt.Fprintf(&b, "  %-7s %-20s %7s  %s\n",
			e.StartTime.Local().Format("Jan 2"),
			truncateStr(nameOr(m.clientNames, e.ClientID), 20),
			formatMinutes(minutes),
			truncateStr(e.Description, 30),
		)
	}
	return b.String()
}
