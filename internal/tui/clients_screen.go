package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/billsink/internal/app"
	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/money"
	"github.com/andy/billsink/internal/repository"
)

type clientMode int

const (
	clientModeList clientMode = iota
	clientModeNew
	clientModeEdit
)

// form field indices
const (
	fieldName = iota
	fieldRate
	fieldEmail
	fieldNotes
	fieldCount
)

// ClientsModel displays a navigable list of clients with create/edit forms
type ClientsModel struct {
	app          *app.App
	clients      []*domain.Client
	unbilled     map[int64]int64 // minutes
	cursor       int
	showArchived bool
	loading      bool
	err          error
	statusMsg    string

	mode          clientMode
	fields        []textinput.Model
	fieldFocus    int
	editingID     int64 // 0 for new client
	autoNewClient bool  // open the form once data loads
}

type clientsDataMsg struct {
	clients  []*domain.Client
	unbilled map[int64]int64
	err      error
}

type clientSavedMsg struct {
	name string
	err  error
}

// NewClientsModel creates a new clients screen model
func NewClientsModel(a *app.App) tea.Model {
	return &ClientsModel{app: a, loading: true}
}

// IsCapturingInput returns true when the form is active
func (m *ClientsModel) IsCapturingInput() bool {
	return m.mode != clientModeList
}

func (m *ClientsModel) Init() tea.Cmd {
	return m.loadClients()
}

func (m *ClientsModel) loadClients() tea.Cmd {
	a, archived := m.app, m.showArchived
	return func() tea.Msg {
		ctx := context.Background()
		clients, err := a.Store.Clients().List(ctx, a.Owner(), archived)
		if err != nil {
			return clientsDataMsg{err: err}
		}
		entries, err := a.Entries.List(ctx, repository.EntryFilter{UserID: a.Owner(), UnbilledOnly: true})
		if err != nil {
			return clientsDataMsg{err: err}
		}
		unbilled := make(map[int64]int64)
		for _, e := range entries {
			if e.IsBillable && !e.IsRunning() {
				unbilled[e.ClientID] += e.DurationMinutes
			}
		}
		return clientsDataMsg{clients: clients, unbilled: unbilled}
	}
}

func newField(placeholder string, limit, width int) textinput.Model {
	f := textinput.New()
	f.Placeholder = placeholder
	f.CharLimit = limit
	f.Width = width
	return f
}

func (m *ClientsModel) initForm(editing *domain.Client) {
	m.fields = make([]textinput.Model, fieldCount)
	m.fields[fieldName] = newField("Client name", 100, 40)
	m.fields[fieldRate] = newField("150.00", 12, 15)
	m.fields[fieldEmail] = newField("billing@example.com", 100, 40)
	m.fields[fieldNotes] = newField("Optional notes", 200, 50)

	m.editingID = 0
	if editing != nil {
		m.fields[fieldName].SetValue(editing.Name)
		if editing.HourlyRate != nil {
			m.fields[fieldRate].SetValue(strings.TrimPrefix(money.Format(*editing.HourlyRate), "$"))
		}
		m.fields[fieldEmail].SetValue(editing.Email)
		m.fields[fieldNotes].SetValue(editing.Notes)
		m.editingID = editing.ID
	}

	m.fieldFocus = fieldName
	m.fields[fieldName].Focus()
}

func (m *ClientsModel) saveClient() tea.Cmd {
	a := m.app
	editingID := m.editingID
	name := strings.TrimSpace(m.fields[fieldName].Value())
	rateStr := strings.TrimSpace(m.fields[fieldRate].Value())
	email := strings.TrimSpace(m.fields[fieldEmail].Value())
	notes := strings.TrimSpace(m.fields[fieldNotes].Value())

	return func() tea.Msg {
		ctx := context.Background()

		var rate *int64
		if rateStr != "" {
			cents, err := money.Parse(rateStr)
			if err != nil {
				return clientSavedMsg{err: err}
			}
			rate = &cents
		}

		if editingID > 0 {
			client, err := a.Store.Clients().GetByID(ctx, editingID)
			if err != nil {
				return clientSavedMsg{err: err}
			}
			client.Name = name
			client.HourlyRate = rate
			client.Email = email
			client.Notes = notes
			client.UpdatedAt = time.Now().UTC()
			if err := a.Store.Clients().Update(ctx, client); err != nil {
				return clientSavedMsg{err: err}
			}
			return clientSavedMsg{name: name}
		}

		client := domain.NewClient(a.Owner(), name, rate)
		client.Email = email
		client.Notes = notes
		if err := a.Store.Clients().Create(ctx, client); err != nil {
			return clientSavedMsg{err: err}
		}
		return clientSavedMsg{name: client.Name}
	}
}

func (m *ClientsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(OpenNewClientFormMsg); ok {
		if m.loading {
			m.autoNewClient = true
			return m, nil
		}
		m.mode = clientModeNew
		m.initForm(nil)
		return m, textinput.Blink
	}

	if m.mode != clientModeList {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case RefreshDataMsg:
		m.loading = true
		return m, m.loadClients()

	case clientsDataMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.clients = msg.clients
			m.unbilled = msg.unbilled
			if m.cursor >= len(m.clients) {
				m.cursor = max(0, len(m.clients)-1)
			}
		}
		if m.autoNewClient {
			m.autoNewClient = false
			m.mode = clientModeNew
			m.initForm(nil)
			return m, textinput.Blink
		}
		return m, nil

	case tea.KeyMsg:
		if m.loading {
			return m, nil
		}
		m.statusMsg = ""
		m.err = nil

		switch {
		case key.Matches(msg, DefaultKeyMap.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, DefaultKeyMap.Down):
			if m.cursor < len(m.clients)-1 {
				m.cursor++
			}
		case key.Matches(msg, DefaultKeyMap.New):
			m.mode = clientModeNew
			m.initForm(nil)
			return m, textinput.Blink
		case key.Matches(msg, DefaultKeyMap.Select):
			if m.cursor < len(m.clients) {
				m.mode = clientModeEdit
				m.initForm(m.clients[m.cursor])
				return m, textinput.Blink
			}
		case msg.String() == "a":
			if m.cursor < len(m.clients) {
				return m, m.toggleArchive(m.clients[m.cursor])
			}
		case msg.String() == "h":
			m.showArchived = !m.showArchived
			m.cursor = 0
			m.loading = true
			return m, m.loadClients()
		}
	}
	return m, nil
}

func (m *ClientsModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case clientSavedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.mode = clientModeList
		m.statusMsg = fmt.Sprintf("Saved: %s", msg.name)
		m.loading = true
		return m, m.loadClients()

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m.mode = clientModeList
			m.err = nil
			return m, nil
		case "tab", "down":
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus = (m.fieldFocus + 1) % fieldCount
			return m, m.fields[m.fieldFocus].Focus()
		case "shift+tab", "up":
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus = (m.fieldFocus - 1 + fieldCount) % fieldCount
			return m, m.fields[m.fieldFocus].Focus()
		case "enter":
			if m.fieldFocus == fieldCount-1 {
				return m, m.saveClient()
			}
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus++
			return m, m.fields[m.fieldFocus].Focus()
		case "ctrl+s":
			return m, m.saveClient()
		}
	}

	var cmd tea.Cmd
	m.fields[m.fieldFocus], cmd = m.fields[m.fieldFocus].Update(msg)
	return m, cmd
}

func (m *ClientsModel) toggleArchive(client *domain.Client) tea.Cmd {
	a := m.app
	reload := m.loadClients()
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		if client.IsArchived {
			err = a.Store.Clients().Unarchive(ctx, client.ID)
		} else {
			err = a.Store.Clients().Archive(ctx, client.ID)
		}
		if err != nil {
			return clientsDataMsg{err: err}
		}
		return reload()
	}
}

func (m *ClientsModel) View() string {
	if m.mode != clientModeList {
		return m.viewForm()
	}
	return m.viewList()
}

func (m *ClientsModel) viewForm() string {
	var b strings.Builder

	switch {
	case m.mode == clientModeEdit:
		b.WriteString(titleStyle.Render("Edit Client") + "\n\n")
	case len(m.clients) == 0:
		b.WriteString(titleStyle.Render("Welcome to billsink!") + "\n")
		b.WriteString(subtitleStyle.Render("  Add your first client to start tracking and billing.") + "\n\n")
	default:
		b.WriteString(titleStyle.Render("New Client") + "\n\n")
	}

	labels := []string{"Name:", "Hourly rate:", "Billing email:", "Notes:"}
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

func (m *ClientsModel) viewList() string {
	if m.loading {
		return "Loading clients..."
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	var b strings.Builder
	header := "Clients"
	if m.showArchived {
		header += subtitleStyle.Render("  (showing archived)")
	}
	b.WriteString(titleStyle.Render(header) + "\n\n")

	if m.statusMsg != "" {
		b.WriteString(successStyle.Render("  "+m.statusMsg) + "\n\n")
	}

	if len(m.clients) == 0 {
		b.WriteString(subtitleStyle.Render("  No clients yet. Press 'n' to add one.") + "\n")
		return b.String()
	}

	for i, c := range m.clients {
		b.WriteString(m.renderClient(i, c) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("  j/k: navigate  n: new  enter: edit  a: archive/unarchive  h: toggle archived"))
	return b.String()
}

func (m *ClientsModel) renderClient(index int, client *domain.Client) string {
	selected := index == m.cursor

	name := client.Name
	if client.IsArchived {
		name += " (archived)"
	}
	indicator := "  "
	if selected {
		indicator = "> "
	}

	line1 := indicator + name
	line2 := fmt.Sprintf("    Rate: %s  |  Unbilled: %s", formatRate(client.HourlyRate), formatMinutes(m.unbilled[client.ID]))
	contact := client.Email
	if contact == "" && client.Notes != "" {
		contact = truncateStr(client.Notes, 40)
	}

	nameStyle := lipgloss.NewStyle()
	detailStyle := subtitleStyle
	if client.IsArchived {
		nameStyle = nameStyle.Foreground(mutedColor)
		detailStyle = lipgloss.NewStyle().Foreground(mutedColor)
	}
	if selected {
		nameStyle = nameStyle.Bold(true).Foreground(primaryColor)
	}

	out := nameStyle.Render(line1) + "\n" + detailStyle.Render(line2)
	if contact != "" {
		out += "\n" + detailStyle.Render("    "+contact)
	}
	return out
}
