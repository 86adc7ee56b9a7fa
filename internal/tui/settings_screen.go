package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billsink/internal/app"
)

type settingsMode int

const (
	settingsModeView settingsMode = iota
	settingsModeEdit
)

// settings form field indices
const (
	settingsFieldPrefix = iota
	settingsFieldDueDays
	settingsFieldTaxRate
	settingsFieldSendHour
	settingsFieldCount
)

type settingsSavedMsg struct {
	err error
}

// SettingsModel edits the billing defaults in the config file. Changes apply
// on the next start.
type SettingsModel struct {
	app        *app.App
	mode       settingsMode
	fields     []textinput.Model
	fieldFocus int
	err        error
	statusMsg  string
}

// NewSettingsModel creates a new settings screen
func NewSettingsModel(a *app.App) tea.Model {
	return &SettingsModel{app: a, mode: settingsModeView}
}

// IsCapturingInput returns true when the edit form is active
func (m *SettingsModel) IsCapturingInput() bool {
	return m.mode == settingsModeEdit
}

func (m *SettingsModel) Init() tea.Cmd {
	return nil
}

func (m *SettingsModel) initForm() {
	cfg := m.app.Config
	m.fields = make([]textinput.Model, settingsFieldCount)
	m.fields[settingsFieldPrefix] = newField("INV", 20, 20)
	m.fields[settingsFieldPrefix].SetValue(cfg.Invoice.NumberPrefix)
	m.fields[settingsFieldDueDays] = newField("30", 5, 10)
	m.fields[settingsFieldDueDays].SetValue(strconv.Itoa(cfg.Invoice.DefaultDueDays))
	m.fields[settingsFieldTaxRate] = newField("0", 10, 10)
	m.fields[settingsFieldTaxRate].SetValue(strconv.FormatFloat(cfg.Invoice.DefaultTaxRate, 'f', -1, 64))
	m.fields[settingsFieldSendHour] = newField("9", 2, 5)
	m.fields[settingsFieldSendHour].SetValue(strconv.Itoa(cfg.Reminders.SendHour))

	m.fieldFocus = settingsFieldPrefix
	m.fields[settingsFieldPrefix].Focus()
}

func (m *SettingsModel) saveSettings() tea.Cmd {
	a := m.app
	prefix := strings.TrimSpace(m.fields[settingsFieldPrefix].Value())
	dueDaysStr := strings.TrimSpace(m.fields[settingsFieldDueDays].Value())
	taxRateStr := strings.TrimSpace(m.fields[settingsFieldTaxRate].Value())
	sendHourStr := strings.TrimSpace(m.fields[settingsFieldSendHour].Value())

	return func() tea.Msg {
		if prefix == "" {
			return settingsSavedMsg{err: fmt.Errorf("invoice prefix is required")}
		}
		dueDays, err := strconv.Atoi(dueDaysStr)
		if err != nil || dueDays < 0 {
			return settingsSavedMsg{err: fmt.Errorf("due days must be zero or more")}
		}
		taxRate, err := strconv.ParseFloat(taxRateStr, 64)
		if err != nil || taxRate < 0 || taxRate > 100 {
			return settingsSavedMsg{err: fmt.Errorf("tax rate must be a percentage between 0 and 100")}
		}
		sendHour, err := strconv.Atoi(sendHourStr)
		if err != nil || sendHour < 0 || sendHour > 23 {
			return settingsSavedMsg{err: fmt.Errorf("send hour must be between 0 and 23")}
		}

		a.Config.Invoice.NumberPrefix = prefix
		a.Config.Invoice.DefaultDueDays = dueDays
		a.Config.Invoice.DefaultTaxRate = taxRate
		a.Config.Reminders.SendHour = sendHour

		if err := a.SaveConfig(); err != nil {
			return settingsSavedMsg{err: fmt.Errorf("failed to save config: %w", err)}
		}
		return settingsSavedMsg{}
	}
}

func (m *SettingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.mode == settingsModeEdit {
		return m.updateForm(msg)
	}
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		m.err = nil
		m.statusMsg = ""
		m.mode = settingsModeEdit
		m.initForm()
		return m, textinput.Blink
	}
	return m, nil
}

func (m *SettingsModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case settingsSavedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.mode = settingsModeView
		m.statusMsg = "Settings saved. Restart billsink to apply them."
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m.mode = settingsModeView
			m.err = nil
			return m, nil
		case "tab", "down":
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus = (m.fieldFocus + 1) % settingsFieldCount
			return m, m.fields[m.fieldFocus].Focus()
		case "shift+tab", "up":
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus = (m.fieldFocus - 1 + settingsFieldCount) % settingsFieldCount
			return m, m.fields[m.fieldFocus].Focus()
		case "enter":
			if m.fieldFocus == settingsFieldCount-1 {
				return m, m.saveSettings()
			}
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus++
			return m, m.fields[m.fieldFocus].Focus()
		case "ctrl+s":
			return m, m.saveSettings()
		}
	}

	var cmd tea.Cmd
	m.fields[m.fieldFocus], cmd = m.fields[m.fieldFocus].Update(msg)
	return m, cmd
}

func (m *SettingsModel) View() string {
	if m.mode == settingsModeEdit {
		return m.viewForm()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Settings") + "\n\n")
	if m.statusMsg != "" {
		b.WriteString(successStyle.Render("  "+m.statusMsg) + "\n\n")
	}

	cfg := m.app.Config
	row := func(label, value string) {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(label), valueStyle.Render(value))
	}

	b.WriteString(subtitleStyle.Render("  Invoices") + "\n\n")
	row("Number Prefix:", cfg.Invoice.NumberPrefix)
	row("Default Due Days:", strconv.Itoa(cfg.Invoice.DefaultDueDays))
	row("Default Tax Rate:", strconv.FormatFloat(cfg.Invoice.DefaultTaxRate, 'f', -1, 64)+"%")
	row("Overpayments:", cfg.Payments.Overpayment)

	b.WriteString("\n" + subtitleStyle.Render("  Reminders") + "\n\n")
	row("Enabled:", strconv.FormatBool(cfg.Reminders.Enabled))
	row("Send Hour (UTC):", fmt.Sprintf("%02d:00", cfg.Reminders.SendHour))
	row("Email Provider:", cfg.Notifier.Provider)

	b.WriteString("\n" + helpStyle.Render("  enter: edit settings"))
	return b.String()
}

func (m *SettingsModel) viewForm() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Edit Settings") + "\n\n")

	labels := []string{"Number Prefix:", "Default Due Days:", "Tax Rate (%):", "Reminder Send Hour (UTC):"}
	for i, label := range labels {
		indicator := "  "
		style := subtitleStyle
		if i == m.fieldFocus {
			indicator = "> "
			style = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
		}
		fmt.Fprintf(&b, "%s%s\n  %s\n\n", indicator, style.Render(label), m.fields[i].View())
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n")
	}
	b.WriteString(helpStyle.Render("  tab/shift+tab: navigate fields  ctrl+s: save  enter: next/save  esc: cancel"))
	return b.String()
}
