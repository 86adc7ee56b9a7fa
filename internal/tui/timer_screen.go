package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billsink/internal/app"
	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
)

// TimerTickMsg is sent every second while a timer runs. Ticks from an
// older generation are dropped so each screen runs one loop at a time.
type TimerTickMsg struct {
	Gen int
}

func tickTimer(gen int) tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return TimerTickMsg{Gen: gen}
	})
}

type clientsLoadedMsg struct {
	clients []*domain.Client
	err     error
}

type timerStateMsg struct {
	running *domain.TimeEntry
	accrued int64
	status  string
	err     error
}

func loadClientsCmd(a *app.App) tea.Cmd {
	return func() tea.Msg {
		clients, err := a.Store.Clients().List(context.Background(), a.Owner(), false)
		return clientsLoadedMsg{clients: clients, err: err}
	}
}

func timerStateCmd(a *app.App, status string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		running, err := a.Timer.Running(ctx, a.Owner())
		if err != nil {
			return timerStateMsg{err: err}
		}
		msg := timerStateMsg{running: running, status: status}
		if running != nil {
			msg.accrued, msg.err = a.Timer.AccruedValue(ctx, a.Owner())
		}
		return msg
	}
}

// TimerModel shows the running timer and starts a new one per client
type TimerModel struct {
	app       *app.App
	running   *domain.TimeEntry
	accrued   int64
	clients   []*domain.Client
	tickGen   int
	err       error
	statusMsg string
}

// IsCapturingInput keeps x and d for the timer while one is running
func (m *TimerModel) IsCapturingInput() bool {
	return m.running != nil
}

// NewTimerModel creates a new TimerModel
func NewTimerModel(a *app.App) tea.Model {
	return &TimerModel{app: a}
}

func (m *TimerModel) Init() tea.Cmd {
	return tea.Batch(loadClientsCmd(m.app), timerStateCmd(m.app, ""))
}

func (m *TimerModel) client(id int64) *domain.Client {
	for _, c := range m.clients {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *TimerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RefreshDataMsg:
		return m, tea.Batch(loadClientsCmd(m.app), timerStateCmd(m.app, ""))

	case clientsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.clients = msg.clients
		return m, nil

	case timerStateMsg:
		m.err = msg.err
		m.running = msg.running
		m.accrued = msg.accrued
		if msg.status != "" {
			m.statusMsg = msg.status
		}
		m.tickGen++
		if m.running != nil {
			return m, tickTimer(m.tickGen)
		}
		return m, nil

	case TimerTickMsg:
		if msg.Gen != m.tickGen || m.running == nil {
			return m, nil
		}
		ctx := context.Background()
		running, err := m.app.Timer.Running(ctx, m.app.Owner())
		if err != nil {
			m.err = err
			return m, nil
		}
		m.running = running
		if running == nil {
			// stopped from the CLI
			return m, nil
		}
		m.accrued, _ = m.app.Timer.AccruedValue(ctx, m.app.Owner())
		return m, tickTimer(m.tickGen)

	case tea.KeyMsg:
		m.err = nil
		m.statusMsg = ""

		switch msg.String() {
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			idx := int(msg.String()[0] - '1')
			if m.running == nil && idx < len(m.clients) {
				return m, m.start(m.clients[idx])
			}
		case "s":
			if m.running == nil && len(m.clients) > 0 {
				return m, m.start(m.clients[0])
			}
		case "x":
			if m.running != nil {
				return m, m.stop()
			}
		case "d":
			if m.running != nil {
				return m, m.discard()
			}
		case "esc":
			if m.running != nil {
				return m, func() tea.Msg { return SwitchScreenMsg{Screen: ScreenDashboard} }
			}
		}
	}
	return m, nil
}

func (m *TimerModel) start(client *domain.Client) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		if _, err := a.Timer.Start(context.Background(), a.Owner(), client.ID, nil, ""); err != nil {
			return timerStateMsg{err: err}
		}
		return timerStateCmd(a, "Timer started for "+client.Name)()
	}
}

func (m *TimerModel) stop() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		entry, err := a.Timer.Stop(context.Background(), a.Owner())
		if err != nil {
			return timerStateMsg{err: err}
		}
		return timerStateMsg{status: fmt.Sprintf("Entry saved: %s", formatMinutes(entry.DurationMinutes))}
	}
}

func (m *TimerModel) discard() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		if err := a.Timer.Discard(context.Background(), a.Owner()); err != nil {
			return timerStateMsg{err: err}
		}
		return timerStateMsg{status: "Timer discarded"}
	}
}

func (m *TimerModel) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("Active Timer") + "\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %s", m.err)) + "\n\n")
	}
	if m.statusMsg != "" {
		b.WriteString(successStyle.Render("  "+m.statusMsg) + "\n\n")
	}

	if m.running == nil {
		b.WriteString("No active timer. Select a client to start:\n\n")
		switch {
		case m.clients == nil:
			b.WriteString("Loading clients...\n")
		case len(m.clients) == 0:
			b.WriteString("No clients available. Add a client first.\n")
		default:
			for i, c := range m.clients {
				if i >= 9 {
					break
				}
				fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, c.Name, formatRate(c.HourlyRate))
			}
		}
		b.WriteString("\n" + helpStyle.Render("1-9: start for client  s: start with first client"))
		return b.String()
	}

	name := fmt.Sprintf("Client #%d", m.running.ClientID)
	if c := m.client(m.running.ClientID); c != nil {
		name = c.Name
	}
	fmt.Fprintf(&b, "State: %s\n", timerRunningStyle.Render("RUNNING"))
	fmt.Fprintf(&b, "Client: %s\n", name)
	if m.running.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", m.running.Description)
	}
	fmt.Fprintf(&b, "Started: %s\n", m.running.StartTime.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Elapsed: %s\n", formatClock(m.running.Duration()))
	if m.accrued > 0 {
		fmt.Fprintf(&b, "Value accrued: %s\n", timerValueStyle.Render(money.Format(m.accrued)))
	}
	b.WriteString("\n" + helpStyle.Render("x: stop  d: discard  esc: dashboard"))
	return b.String()
}
