package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billsink/internal/app"
)

// Screen represents the current active screen
type Screen int

const (
	ScreenDashboard Screen = iota
	ScreenTimer
	ScreenEntries
	ScreenClients
	ScreenInvoices
	ScreenReports
	ScreenSettings
)

// String returns the screen name
func (s Screen) String() string {
	switch s {
	case ScreenDashboard:
		return "Dashboard"
	case ScreenTimer:
		return "Timer"
	case ScreenEntries:
		return "Time Entries"
	case ScreenClients:
		return "Clients"
	case ScreenInvoices:
		return "Invoices"
	case ScreenReports:
		return "Reports"
	case ScreenSettings:
		return "Settings"
	default:
		return "Unknown"
	}
}

// Model is the root Bubble Tea model
type Model struct {
	app           *app.App
	currentScreen Screen
	width         int
	height        int

	// screens are created on first visit
	screens map[Screen]tea.Model

	checkedFirstRun bool

	err     error
	quitMsg string // shown when quit is blocked
}

// New creates a new root model
func New(a *app.App) Model {
	return Model{
		app:           a,
		currentScreen: ScreenDashboard,
		screens: map[Screen]tea.Model{
			ScreenDashboard: NewDashboardModel(a),
		},
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.checkFirstRun(), m.screens[ScreenDashboard].Init())
}

// checkFirstRun checks whether the owner has any clients yet
func (m Model) checkFirstRun() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		clients, err := a.Store.Clients().List(context.Background(), a.Owner(), false)
		if err != nil {
			return firstRunCheckMsg{hasClients: true}
		}
		return firstRunCheckMsg{hasClients: len(clients) > 0}
	}
}

func (m Model) newScreen(screen Screen) tea.Model {
	switch screen {
	case ScreenDashboard:
		return NewDashboardModel(m.app)
	case ScreenTimer:
		return NewTimerModel(m.app)
	case ScreenEntries:
		return NewEntriesModel(m.app)
	case ScreenClients:
		return NewClientsModel(m.app)
	case ScreenInvoices:
		return NewInvoicesModel(m.app)
	case ScreenReports:
		return NewReportsModel(m.app)
	case ScreenSettings:
		return NewSettingsModel(m.app)
	}
	return nil
}

// switchTo lazily creates a screen on first visit and asks it to reload
// on later visits.
func (m *Model) switchTo(screen Screen) tea.Cmd {
	m.currentScreen = screen
	if _, ok := m.screens[screen]; !ok {
		s := m.newScreen(screen)
		if s == nil {
			return nil
		}
		m.screens[screen] = s
		return s.Init()
	}
	return func() tea.Msg { return RefreshDataMsg{} }
}

// InputCapturer is implemented by screens that capture keyboard input (e.g. text forms).
// When active, global navigation keys are suppressed.
type InputCapturer interface {
	IsCapturingInput() bool
}

func (m Model) activeScreenCapturingInput() bool {
	if ic, ok := m.screens[m.currentScreen].(InputCapturer); ok {
		return ic.IsCapturingInput()
	}
	return false
}

// Update implements tea.Model - routes keys to screens
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		m.quitMsg = ""
		m.err = nil

		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if !m.activeScreenCapturingInput() {
			switch {
			case key.Matches(msg, DefaultKeyMap.Quit):
				running, _ := m.app.Timer.Running(context.Background(), m.app.Owner())
				if running != nil {
					m.quitMsg = "Timer is running. Stop or discard it before quitting."
					return m, nil
				}
				return m, tea.Quit
			case key.Matches(msg, DefaultKeyMap.Dashboard):
				return m, m.switchTo(ScreenDashboard)
			case key.Matches(msg, DefaultKeyMap.Timer):
				return m, m.switchTo(ScreenTimer)
			case key.Matches(msg, DefaultKeyMap.Entries):
				return m, m.switchTo(ScreenEntries)
			case key.Matches(msg, DefaultKeyMap.Clients):
				return m, m.switchTo(ScreenClients)
			case key.Matches(msg, DefaultKeyMap.Invoices):
				return m, m.switchTo(ScreenInvoices)
			case key.Matches(msg, DefaultKeyMap.Reports):
				return m, m.switchTo(ScreenReports)
			case key.Matches(msg, DefaultKeyMap.Settings):
				return m, m.switchTo(ScreenSettings)
			}
		}

	case firstRunCheckMsg:
		if !m.checkedFirstRun && !msg.hasClients {
			m.checkedFirstRun = true
			initCmd := m.switchTo(ScreenClients)
			openFormCmd := func() tea.Msg { return OpenNewClientFormMsg{} }
			return m, tea.Sequence(initCmd, openFormCmd)
		}
		m.checkedFirstRun = true
		return m, nil

	case SwitchScreenMsg:
		return m, m.switchTo(msg.Screen)

	case ErrorMsg:
		m.err = msg.Err
		return m, nil
	}

	screen, ok := m.screens[m.currentScreen]
	if !ok {
		return m, nil
	}
	var cmd tea.Cmd
	m.screens[m.currentScreen], cmd = screen.Update(msg)
	return m, cmd
}

// View implements tea.Model - renders header + current screen + footer
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := headerStyle.Render(fmt.Sprintf("billsink - %s", m.currentScreen))
	footer := footerStyle.Render("[D]ashboard  [t]imer  [e]ntries  [c]lients  [i]nvoices  [R]eports  [,] Settings  [q]uit")

	content := "Loading..."
	if screen, ok := m.screens[m.currentScreen]; ok {
		content = screen.View()
	}

	errorDisplay := ""
	if m.quitMsg != "" {
		errorDisplay = lipgloss.NewStyle().Foreground(warningColor).Render("\n" + m.quitMsg)
	} else if m.err != nil {
		errorDisplay = errorStyle.Render(fmt.Sprintf("\nError: %s", m.err))
	}

	innerWidth := m.width - 6 // border (2) + padding (4)
	if innerWidth < 20 {
		innerWidth = 20
	}
	dividerWidth := innerWidth - 12
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := lipgloss.NewStyle().Foreground(borderColor).Render(strings.Repeat("─", dividerWidth))

	body := fmt.Sprintf("%s\n%s\n\n%s%s\n\n%s\n%s", header, divider, content, errorDisplay, divider, footer)

	frame := appBorderStyle.
		Width(innerWidth).
		Height(m.height - 4)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, frame.Render(body))
}

// Run starts the TUI
func Run(a *app.App) error {
	p := tea.NewProgram(New(a), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
