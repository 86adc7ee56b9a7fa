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
	"github.com/andy/billsink/internal/service"
)

type entryMode int

const (
	entryModeList          entryMode = iota
	entryModePickClient              // cursor-based client selection
	entryModeNew                     // text input form for entry details
	entryModeConfirmDelete           // y/n confirmation before delete
	entryModeEditDesc                // inline description editing
)

// entry form field indices (after client is selected)
const (
	entryFieldDate = iota
	entryFieldStartTime
	entryFieldDuration
	entryFieldDescription
	entryFieldRate
	entryFieldCount
)

const tuiEditReason = "edited in tui"

// EntriesModel displays a scrollable list of time entries
type EntriesModel struct {
	app          *app.App
	entries      []*domain.TimeEntry
	clientNames  map[int64]string
	unbilledOnly bool
	cursor       int
	offset       int
	maxVisible   int
	loading      bool
	err          error
	statusMsg    string

	mode         entryMode
	fields       []textinput.Model
	fieldFocus   int
	formClients  []*domain.Client
	formClient   *domain.Client
	clientCursor int

	descInput textinput.Model
}

type entriesDataMsg struct {
	entries     []*domain.TimeEntry
	clientNames map[int64]string
	err         error
}

// entryChangedMsg reports the outcome of an add, edit or delete
type entryChangedMsg struct {
	status string
	err    error
}

type entryClientsMsg struct {
	clients []*domain.Client
	err     error
}

// IsCapturingInput returns true when a form, picker or confirmation is active
func (m *EntriesModel) IsCapturingInput() bool {
	return m.mode != entryModeList
}

// NewEntriesModel creates a new entries screen model
func NewEntriesModel(a *app.App) tea.Model {
	return &EntriesModel{
		app:         a,
		clientNames: make(map[int64]string),
		maxVisible:  15,
		loading:     true,
	}
}

func (m *EntriesModel) Init() tea.Cmd {
	return m.loadEntries()
}

func (m *EntriesModel) loadEntries() tea.Cmd {
	a, unbilledOnly := m.app, m.unbilledOnly
	return func() tea.Msg {
		ctx := context.Background()
		filter := repository.EntryFilter{UserID: a.Owner(), UnbilledOnly: unbilledOnly}
		if !unbilledOnly {
			end := time.Now()
			start := end.AddDate(0, 0, -30)
			filter.Start, filter.End = &start, &end
		}
		entries, err := a.Entries.List(ctx, filter)
		if err != nil {
			return entriesDataMsg{err: err}
		}
		clients, err := a.Store.Clients().List(ctx, a.Owner(), true)
		if err != nil {
			return entriesDataMsg{err: err}
		}
		return entriesDataMsg{entries: entries, clientNames: clientNames(clients)}
	}
}

func (m *EntriesModel) loadFormClients() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		clients, err := a.Store.Clients().List(context.Background(), a.Owner(), false)
		return entryClientsMsg{clients: clients, err: err}
	}
}

func (m *EntriesModel) initForm() {
	m.fields = make([]textinput.Model, entryFieldCount)
	m.fields[entryFieldDate] = newField("YYYY-MM-DD", 10, 12)
	m.fields[entryFieldDate].SetValue(time.Now().Format("2006-01-02"))
	m.fields[entryFieldStartTime] = newField("09:00", 5, 8)
	m.fields[entryFieldDuration] = newField("1h30m", 10, 10)
	m.fields[entryFieldDescription] = newField("What did you work on?", 200, 50)
	m.fields[entryFieldRate] = newField("blank uses client/project rate", 12, 32)

	m.fieldFocus = entryFieldDate
	m.fields[entryFieldDate].Focus()
}

func (m *EntriesModel) selectClient(client *domain.Client) tea.Cmd {
	m.formClient = client
	m.initForm()
	m.mode = entryModeNew
	return textinput.Blink
}

func (m *EntriesModel) saveEntry() tea.Cmd {
	a := m.app
	clientID := m.formClient.ID
	dateStr := strings.TrimSpace(m.fields[entryFieldDate].Value())
	startStr := strings.TrimSpace(m.fields[entryFieldStartTime].Value())
	durStr := strings.TrimSpace(m.fields[entryFieldDuration].Value())
	desc := strings.TrimSpace(m.fields[entryFieldDescription].Value())
	rateStr := strings.TrimSpace(m.fields[entryFieldRate].Value())

	return func() tea.Msg {
		if startStr == "" {
			startStr = "09:00"
		}
		start, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+startStr, time.Local)
		if err != nil {
			return entryChangedMsg{err: fmt.Errorf("invalid date or start time: %s %s", dateStr, startStr)}
		}
		dur, err := time.ParseDuration(durStr)
		if err != nil {
			return entryChangedMsg{err: fmt.Errorf("invalid duration %q, use e.g. 1h30m", durStr)}
		}
		req := service.ManualEntryRequest{
			ClientID:    clientID,
			Description: desc,
			Start:       start,
			Duration:    dur,
		}
		if rateStr != "" {
			rate, err := money.Parse(rateStr)
			if err != nil {
				return entryChangedMsg{err: err}
			}
			req.HourlyRate = &rate
		}
		entry, err := a.Entries.Add(context.Background(), a.Owner(), req)
		if err != nil {
			return entryChangedMsg{err: err}
		}
		return entryChangedMsg{status: fmt.Sprintf("Entry saved: %s", formatMinutes(entry.DurationMinutes))}
	}
}

func (m *EntriesModel) deleteEntry(id int64) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		if err := a.Entries.Delete(context.Background(), a.Owner(), id, "deleted in tui"); err != nil {
			return entryChangedMsg{err: err}
		}
		return entryChangedMsg{status: "Entry deleted"}
	}
}

func (m *EntriesModel) updateDescription(id int64, desc string) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		edit := service.EntryEdit{Description: &desc}
		if _, err := a.Entries.Edit(context.Background(), a.Owner(), id, edit, tuiEditReason); err != nil {
			return entryChangedMsg{err: err}
		}
		return entryChangedMsg{status: "Description updated"}
	}
}

func (m *EntriesModel) toggleBillable(entry *domain.TimeEntry) tea.Cmd {
	a := m.app
	billable := !entry.IsBillable
	return func() tea.Msg {
		edit := service.EntryEdit{Billable: &billable}
		if _, err := a.Entries.Edit(context.Background(), a.Owner(), entry.ID, edit, tuiEditReason); err != nil {
			return entryChangedMsg{err: err}
		}
		if billable {
			return entryChangedMsg{status: "Marked billable"}
		}
		return entryChangedMsg{status: "Marked non-billable"}
	}
}

func (m *EntriesModel) selected() *domain.TimeEntry {
	if m.cursor < len(m.entries) {
		return m.entries[m.cursor]
	}
	return nil
}

func (m *EntriesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if changed, ok := msg.(entryChangedMsg); ok {
		if changed.err != nil {
			m.err = changed.err
			if m.mode != entryModeNew {
				m.mode = entryModeList
			}
			return m, nil
		}
		m.mode = entryModeList
		m.statusMsg = changed.status
		m.loading = true
		return m, m.loadEntries()
	}

	switch m.mode {
	case entryModePickClient:
		return m.updatePickClient(msg)
	case entryModeNew:
		return m.updateForm(msg)
	case entryModeConfirmDelete:
		return m.updateConfirmDelete(msg)
	case entryModeEditDesc:
		return m.updateEditDesc(msg)
	}

	switch msg := msg.(type) {
	case RefreshDataMsg:
		m.loading = true
		return m, m.loadEntries()

	case entriesDataMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.entries = msg.entries
			m.clientNames = msg.clientNames
			if m.cursor >= len(m.entries) {
				m.cursor = max(0, len(m.entries)-1)
			}
			if m.offset > m.cursor {
				m.offset = m.cursor
			}
		}
		return m, nil

	case entryClientsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if len(msg.clients) == 0 {
			m.err = fmt.Errorf("add a client before logging time")
			return m, nil
		}
		m.formClients = msg.clients
		m.clientCursor = 0
		if len(msg.clients) == 1 {
			return m, m.selectClient(msg.clients[0])
		}
		m.mode = entryModePickClient
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
				if m.cursor < m.offset {
					m.offset = m.cursor
				}
			}
		case key.Matches(msg, DefaultKeyMap.Down):
			if m.cursor < len(m.entries)-1 {
				m.cursor++
				if m.cursor >= m.offset+m.maxVisible {
					m.offset = m.cursor - m.maxVisible + 1
				}
			}
		case key.Matches(msg, DefaultKeyMap.New):
			m.loading = true
			return m, m.loadFormClients()
		case msg.String() == "u":
			m.unbilledOnly = !m.unbilledOnly
			m.cursor, m.offset = 0, 0
			m.loading = true
			return m, m.loadEntries()
		case key.Matches(msg, DefaultKeyMap.Select):
			entry := m.selected()
			if entry == nil {
				return m, nil
			}
			if entry.IsLocked() {
				m.err = fmt.Errorf("cannot edit: entry is locked by an invoice")
				return m, nil
			}
			m.descInput = newField("Enter description...", 200, 50)
			m.descInput.SetValue(entry.Description)
			m.mode = entryModeEditDesc
			return m, m.descInput.Focus()
		case msg.String() == "b":
			entry := m.selected()
			if entry == nil {
				return m, nil
			}
			if entry.IsLocked() {
				m.err = fmt.Errorf("cannot edit: entry is locked by an invoice")
				return m, nil
			}
			return m, m.toggleBillable(entry)
		case key.Matches(msg, DefaultKeyMap.Delete):
			entry := m.selected()
			if entry == nil {
				return m, nil
			}
			if entry.IsLocked() {
				m.err = fmt.Errorf("cannot delete: entry is locked by an invoice")
				return m, nil
			}
			m.mode = entryModeConfirmDelete
		}
	}
	return m, nil
}

func (m *EntriesModel) updatePickClient(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, DefaultKeyMap.Back):
			m.mode = entryModeList
			m.formClients = nil
		case key.Matches(msg, DefaultKeyMap.Up):
			if m.clientCursor > 0 {
				m.clientCursor--
			}
		case key.Matches(msg, DefaultKeyMap.Down):
			if m.clientCursor < len(m.formClients)-1 {
				m.clientCursor++
			}
		case key.Matches(msg, DefaultKeyMap.Select):
			return m, m.selectClient(m.formClients[m.clientCursor])
		}
	}
	return m, nil
}

func (m *EntriesModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			m.err = nil
			m.mode = entryModePickClient
			if len(m.formClients) <= 1 {
				m.mode = entryModeList
			}
			return m, nil
		case "tab", "down":
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus = (m.fieldFocus + 1) % entryFieldCount
			return m, m.fields[m.fieldFocus].Focus()
		case "shift+tab", "up":
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus = (m.fieldFocus - 1 + entryFieldCount) % entryFieldCount
			return m, m.fields[m.fieldFocus].Focus()
		case "enter":
			if m.fieldFocus == entryFieldCount-1 {
				return m, m.saveEntry()
			}
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus++
			return m, m.fields[m.fieldFocus].Focus()
		case "ctrl+s":
			return m, m.saveEntry()
		}
	}

	var cmd tea.Cmd
	m.fields[m.fieldFocus], cmd = m.fields[m.fieldFocus].Update(msg)
	return m, cmd
}

func (m *EntriesModel) updateConfirmDelete(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "y", "Y":
			if entry := m.selected(); entry != nil {
				return m, m.deleteEntry(entry.ID)
			}
			m.mode = entryModeList
		case "n", "N", "esc":
			m.mode = entryModeList
		}
	}
	return m, nil
}

func (m *EntriesModel) updateEditDesc(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			m.mode = entryModeList
			return m, nil
		case "enter":
			if entry := m.selected(); entry != nil {
				return m, m.updateDescription(entry.ID, strings.TrimSpace(m.descInput.Value()))
			}
			m.mode = entryModeList
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.descInput, cmd = m.descInput.Update(msg)
	return m, cmd
}

func (m *EntriesModel) View() string {
	switch m.mode {
	case entryModePickClient:
		return m.viewPickClient()
	case entryModeNew:
		return m.viewForm()
	}
	return m.viewList()
}

func (m *EntriesModel) viewPickClient() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("New Entry: pick a client") + "\n\n")
	for i, c := range m.formClients {
		line := fmt.Sprintf("  %s (%s)", c.Name, formatRate(c.HourlyRate))
		if i == m.clientCursor {
			line = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render("> " + line[2:])
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("  j/k: navigate  enter: select  esc: cancel"))
	return b.String()
}

func (m *EntriesModel) viewForm() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("New Entry for "+m.formClient.Name) + "\n\n")

	labels := []string{"Date:", "Start time:", "Duration:", "Description:", "Hourly rate override:"}
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
	b.WriteString(helpStyle.Render("  tab/shift+tab: navigate fields  ctrl+s: save  enter: next/save  esc: back"))
	return b.String()
}

func (m *EntriesModel) viewList() string {
	if m.loading {
		return "Loading entries..."
	}

	var b strings.Builder
	title := "Time Entries (Last 30 Days)"
	if m.unbilledOnly {
		title = "Unbilled Time Entries"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n")
	}
	if m.statusMsg != "" {
		b.WriteString(successStyle.Render("  "+m.statusMsg) + "\n\n")
	}

	if len(m.entries) == 0 {
		b.WriteString(subtitleStyle.Render("  No entries. Press 'n' to log time.") + "\n")
		return b.String()
	}

	end := min(m.offset+m.maxVisible, len(m.entries))
	for i := m.offset; i < end; i++ {
		e := m.entries[i]
		minutes := e.DurationMinutes
		if e.IsRunning() {
			minutes = int64(e.Duration() / time.Minute)
		}
		flag := " "
		switch {
		case e.IsRunning():
			flag = "●"
		case e.IsBilled:
			flag = "$"
		case !e.IsBillable:
			flag = "-"
		}
		line := fmt.Sprintf("%s %-7s %-18s %7s  %s",
			flag,
			e.StartTime.Local().Format("Jan 2"),
			truncateStr(nameOr(m.clientNames, e.ClientID), 18),
			formatMinutes(minutes),
			truncateStr(e.Description, 36),
		)
		if i == m.cursor {
			b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render("> "+line) + "\n")
		} else if e.IsLocked() {
			b.WriteString(subtitleStyle.Render("  "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
		if i == m.cursor && m.mode == entryModeEditDesc {
			b.WriteString("    " + m.descInput.View() + "\n")
		}
	}

	switch m.mode {
	case entryModeConfirmDelete:
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(warningColor).Render("  Delete this entry? (y/n)"))
	case entryModeEditDesc:
		b.WriteString("\n" + helpStyle.Render("  enter: save  esc: cancel"))
	default:
		b.WriteString("\n" + subtitleStyle.Render("  ● running  $ billed  - non-billable") + "\n")
		b.WriteString(helpStyle.Render("  j/k: navigate  n: new  enter: edit description  b: toggle billable  x: delete  u: unbilled only"))
	}
	return b.String()
}
