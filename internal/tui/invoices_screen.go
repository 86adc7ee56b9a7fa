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

type invoiceViewMode int

const (
	invoiceViewList       invoiceViewMode = iota
	invoiceViewDetail                     // one invoice with payments and reminders
	invoiceViewPayment                    // amount input for a payment
	invoiceViewConfirm                    // y/n before cancel or delete
	invoiceViewPickClient                 // draft from unbilled time: pick client
)

// statusFilters is the cycle order of the list filter; nil shows everything
var statusFilters = []*domain.InvoiceStatus{
	nil,
	statusPtr(domain.InvoiceStatusDraft),
	statusPtr(domain.InvoiceStatusSent),
	statusPtr(domain.InvoiceStatusViewed),
	statusPtr(domain.InvoiceStatusOverdue),
	statusPtr(domain.InvoiceStatusPaid),
	statusPtr(domain.InvoiceStatusCancelled),
}

func statusPtr(s domain.InvoiceStatus) *domain.InvoiceStatus { return &s }

// InvoicesModel displays invoices in list and detail views
type InvoicesModel struct {
	app         *app.App
	mode        invoiceViewMode
	invoices    []*domain.Invoice
	clientNames map[int64]string
	filter      int
	cursor      int
	loading     bool
	err         error
	statusMsg   string

	selected  *domain.Invoice
	payments  []*domain.Payment
	reminders []*domain.ReminderSchedule

	amountInput textinput.Model
	confirm     string // "cancel" or "delete"

	genClients []*domain.Client
	genCursor  int
}

type invoicesDataMsg struct {
	invoices    []*domain.Invoice
	clientNames map[int64]string
	err         error
}

type invoiceDetailMsg struct {
	invoice   *domain.Invoice
	payments  []*domain.Payment
	reminders []*domain.ReminderSchedule
	err       error
}

// invoiceActionMsg reports a finished action on one invoice
type invoiceActionMsg struct {
	invoiceID int64
	status    string
	deleted   bool
	err       error
}

type genClientsMsg struct {
	clients []*domain.Client
	err     error
}

// NewInvoicesModel creates a new invoices screen model
func NewInvoicesModel(a *app.App) tea.Model {
	return &InvoicesModel{app: a, loading: true}
}

// IsCapturingInput returns true while typing an amount, confirming or picking
func (m *InvoicesModel) IsCapturingInput() bool {
	return m.mode == invoiceViewPayment || m.mode == invoiceViewConfirm || m.mode == invoiceViewPickClient
}

func (m *InvoicesModel) Init() tea.Cmd {
	return m.loadInvoices()
}

func (m *InvoicesModel) loadInvoices() tea.Cmd {
	a := m.app
	filter := service.InvoiceFilter{Status: statusFilters[m.filter]}
	return func() tea.Msg {
		ctx := context.Background()
		invoices, err := a.Invoices.List(ctx, a.Owner(), filter)
		if err != nil {
			return invoicesDataMsg{err: err}
		}
		clients, err := a.Store.Clients().List(ctx, a.Owner(), true)
		if err != nil {
			return invoicesDataMsg{err: err}
		}
		return invoicesDataMsg{invoices: invoices, clientNames: clientNames(clients)}
	}
}

func (m *InvoicesModel) loadDetail(id int64) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx := context.Background()
		owner := a.Owner()
		inv, err := a.Invoices.Get(ctx, owner, id)
		if err != nil {
			return invoiceDetailMsg{err: err}
		}
		payments, err := a.Payments.List(ctx, owner, id)
		if err != nil {
			return invoiceDetailMsg{err: err}
		}
		reminders, err := a.Reminders.List(ctx, owner, id)
		if err != nil {
			return invoiceDetailMsg{err: err}
		}
		return invoiceDetailMsg{invoice: inv, payments: payments, reminders: reminders}
	}
}

// action runs fn against the selected invoice and reports status on success
func (m *InvoicesModel) action(fn func(ctx context.Context, owner, id int64) (string, error)) tea.Cmd {
	a := m.app
	id := m.selected.ID
	return func() tea.Msg {
		status, err := fn(context.Background(), a.Owner(), id)
		return invoiceActionMsg{invoiceID: id, status: status, err: err}
	}
}

func (m *InvoicesModel) send() tea.Cmd {
	a := m.app
	return m.action(func(ctx context.Context, owner, id int64) (string, error) {
		inv, err := a.Invoices.Send(ctx, owner, id)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Sent %s, due %s", inv.InvoiceNumber, inv.DueDate.Format("2006-01-02")), nil
	})
}

func (m *InvoicesModel) recordPayment(amount int64) tea.Cmd {
	a := m.app
	return m.action(func(ctx context.Context, owner, id int64) (string, error) {
		receipt, err := a.Payments.Record(ctx, owner, id, service.RecordPaymentRequest{Amount: amount})
		if err != nil {
			return "", err
		}
		status := fmt.Sprintf("Recorded %s, balance %s", money.Format(receipt.Payment.Amount), money.Format(receipt.Invoice.BalanceDue()))
		if receipt.Capped {
			status += " (capped at balance due)"
		}
		return status, nil
	})
}

func (m *InvoicesModel) remind() tea.Cmd {
	a := m.app
	return m.action(func(ctx context.Context, owner, id int64) (string, error) {
		rem, err := a.Reminders.SendManual(ctx, owner, id)
		if err != nil {
			return "", err
		}
		if rem.Status == domain.ReminderStatusFailed {
			return "", fmt.Errorf("reminder failed: %s", rem.Error)
		}
		return fmt.Sprintf("Sent %s reminder", rem.ReminderType), nil
	})
}

func (m *InvoicesModel) cancelInvoice() tea.Cmd {
	a := m.app
	return m.action(func(ctx context.Context, owner, id int64) (string, error) {
		inv, err := a.Invoices.Transition(ctx, owner, id, domain.InvoiceStatusCancelled)
		if err != nil {
			return "", err
		}
		return "Cancelled " + inv.InvoiceNumber, nil
	})
}

func (m *InvoicesModel) reopen() tea.Cmd {
	a := m.app
	return m.action(func(ctx context.Context, owner, id int64) (string, error) {
		inv, err := a.Invoices.Transition(ctx, owner, id, domain.InvoiceStatusDraft)
		if err != nil {
			return "", err
		}
		return "Reopened " + inv.InvoiceNumber + " as draft", nil
	})
}

func (m *InvoicesModel) deleteInvoice() tea.Cmd {
	a := m.app
	id, number := m.selected.ID, m.selected.InvoiceNumber
	return func() tea.Msg {
		if err := a.Invoices.Delete(context.Background(), a.Owner(), id); err != nil {
			return invoiceActionMsg{invoiceID: id, err: err}
		}
		return invoiceActionMsg{invoiceID: id, status: "Deleted " + number, deleted: true}
	}
}

func (m *InvoicesModel) loadGenClients() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx := context.Background()
		clients, err := a.Store.Clients().List(ctx, a.Owner(), false)
		if err != nil {
			return genClientsMsg{err: err}
		}
		entries, err := a.Entries.List(ctx, repository.EntryFilter{UserID: a.Owner(), UnbilledOnly: true})
		if err != nil {
			return genClientsMsg{err: err}
		}
		has := make(map[int64]bool)
		for _, e := range entries {
			if e.IsBillable && !e.IsRunning() {
				has[e.ClientID] = true
			}
		}
		var withUnbilled []*domain.Client
		for _, c := range clients {
			if has[c.ID] {
				withUnbilled = append(withUnbilled, c)
			}
		}
		return genClientsMsg{clients: withUnbilled}
	}
}

// generate drafts an invoice from every unbilled billable entry of client
func (m *InvoicesModel) generate(client *domain.Client) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx := context.Background()
		owner := a.Owner()
		clientID := client.ID
		entries, err := a.Entries.List(ctx, repository.EntryFilter{UserID: owner, ClientID: &clientID, UnbilledOnly: true})
		if err != nil {
			return invoiceActionMsg{err: err}
		}
		req := service.TimeInvoiceRequest{ClientID: clientID}
		for _, e := range entries {
			if e.IsBillable && !e.IsRunning() {
				req.EntryIDs = append(req.EntryIDs, e.ID)
			}
		}
		inv, err := a.Converter.FromTimeEntries(ctx, owner, req)
		if err != nil {
			return invoiceActionMsg{err: err}
		}
		return invoiceActionMsg{
			invoiceID: inv.ID,
			status:    fmt.Sprintf("Drafted %s for %s: %s", inv.InvoiceNumber, client.Name, money.Format(inv.Total)),
		}
	}
}

func (m *InvoicesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RefreshDataMsg:
		m.loading = true
		if m.selected != nil && m.mode == invoiceViewDetail {
			return m, tea.Batch(m.loadInvoices(), m.loadDetail(m.selected.ID))
		}
		return m, m.loadInvoices()

	case invoicesDataMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.invoices = msg.invoices
			m.clientNames = msg.clientNames
			if m.cursor >= len(m.invoices) {
				m.cursor = max(0, len(m.invoices)-1)
			}
		}
		return m, nil

	case invoiceDetailMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.mode = invoiceViewList
			return m, nil
		}
		m.selected = msg.invoice
		m.payments = msg.payments
		m.reminders = msg.reminders
		m.mode = invoiceViewDetail
		return m, nil

	case invoiceActionMsg:
		if msg.err != nil {
			m.err = msg.err
			if m.mode != invoiceViewList {
				if m.selected != nil {
					m.mode = invoiceViewDetail
				} else {
					m.mode = invoiceViewList
				}
			}
			return m, nil
		}
		m.statusMsg = msg.status
		if msg.deleted {
			m.selected = nil
			m.mode = invoiceViewList
			return m, m.loadInvoices()
		}
		m.loading = true
		return m, tea.Batch(m.loadInvoices(), m.loadDetail(msg.invoiceID))

	case genClientsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if len(msg.clients) == 0 {
			m.err = fmt.Errorf("no client has unbilled time")
			return m, nil
		}
		m.genClients = msg.clients
		m.genCursor = 0
		m.mode = invoiceViewPickClient
		return m, nil

	case tea.KeyMsg:
		m.err = nil
		switch m.mode {
		case invoiceViewList:
			m.statusMsg = ""
			return m.updateList(msg)
		case invoiceViewDetail:
			m.statusMsg = ""
			return m.updateDetail(msg)
		case invoiceViewPayment:
			return m.updatePayment(msg)
		case invoiceViewConfirm:
			return m.updateConfirm(msg)
		case invoiceViewPickClient:
			return m.updatePickClient(msg)
		}
	}

	if m.mode == invoiceViewPayment {
		var cmd tea.Cmd
		m.amountInput, cmd = m.amountInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *InvoicesModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	switch {
	case key.Matches(msg, DefaultKeyMap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, DefaultKeyMap.Down):
		if m.cursor < len(m.invoices)-1 {
			m.cursor++
		}
	case key.Matches(msg, DefaultKeyMap.Select):
		if m.cursor < len(m.invoices) {
			m.loading = true
			return m, m.loadDetail(m.invoices[m.cursor].ID)
		}
	case msg.String() == "f":
		m.filter = (m.filter + 1) % len(statusFilters)
		m.cursor = 0
		m.loading = true
		return m, m.loadInvoices()
	case msg.String() == "g":
		return m, m.loadGenClients()
	}
	return m, nil
}

func (m *InvoicesModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	inv := m.selected
	switch {
	case key.Matches(msg, DefaultKeyMap.Back):
		m.mode = invoiceViewList
		m.selected = nil
		return m, nil
	case msg.String() == "s":
		if inv.Status == domain.InvoiceStatusDraft {
			return m, m.send()
		}
	case msg.String() == "p":
		if inv.Status.AwaitingPayment() {
			m.amountInput = newField(strings.TrimPrefix(money.Format(inv.BalanceDue()), "$"), 14, 16)
			m.mode = invoiceViewPayment
			return m, m.amountInput.Focus()
		}
	case msg.String() == "m":
		if inv.Status.AwaitingPayment() {
			return m, m.remind()
		}
	case msg.String() == "X":
		if domain.CanTransition(inv.Status, domain.InvoiceStatusCancelled) {
			m.confirm = "cancel"
			m.mode = invoiceViewConfirm
		}
	case msg.String() == "o":
		if inv.Status == domain.InvoiceStatusCancelled {
			return m, m.reopen()
		}
	case msg.String() == "d":
		m.confirm = "delete"
		m.mode = invoiceViewConfirm
	}
	return m, nil
}

func (m *InvoicesModel) updatePayment(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = invoiceViewDetail
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.amountInput.Value())
		if value == "" {
			value = m.amountInput.Placeholder
		}
		amount, err := money.Parse(value)
		if err != nil {
			m.err = err
			return m, nil
		}
		return m, m.recordPayment(amount)
	}
	var cmd tea.Cmd
	m.amountInput, cmd = m.amountInput.Update(msg)
	return m, cmd
}

func (m *InvoicesModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if m.confirm == "delete" {
			return m, m.deleteInvoice()
		}
		return m, m.cancelInvoice()
	case "n", "N", "esc":
		m.mode = invoiceViewDetail
	}
	return m, nil
}

func (m *InvoicesModel) updatePickClient(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, DefaultKeyMap.Back):
		m.mode = invoiceViewList
	case key.Matches(msg, DefaultKeyMap.Up):
		if m.genCursor > 0 {
			m.genCursor--
		}
	case key.Matches(msg, DefaultKeyMap.Down):
		if m.genCursor < len(m.genClients)-1 {
			m.genCursor++
		}
	case key.Matches(msg, DefaultKeyMap.Select):
		m.mode = invoiceViewList
		return m, m.generate(m.genClients[m.genCursor])
	}
	return m, nil
}

func (m *InvoicesModel) View() string {
	var b strings.Builder
	switch m.mode {
	case invoiceViewList:
		b.WriteString(m.viewList())
	case invoiceViewPickClient:
		b.WriteString(m.viewPickClient())
	default:
		b.WriteString(m.viewDetail())
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
	}
	return b.String()
}

func (m *InvoicesModel) viewList() string {
	if m.loading && m.invoices == nil {
		return "Loading invoices..."
	}

	var b strings.Builder
	title := "Invoices"
	if f := statusFilters[m.filter]; f != nil {
		title += subtitleStyle.Render(fmt.Sprintf("  (%s)", *f))
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")
	if m.statusMsg != "" {
		b.WriteString(successStyle.Render("  "+m.statusMsg) + "\n\n")
	}

	if len(m.invoices) == 0 {
		b.WriteString(subtitleStyle.Render("  No invoices. Press 'g' to draft one from unbilled time.") + "\n")
	}

	for i, inv := range m.invoices {
		// status is styled on its own so the padding stays aligned
		status := renderStatus(inv.Status) + strings.Repeat(" ", max(0, 10-len(inv.Status)))
		line := fmt.Sprintf("%-14s %-20s ", inv.InvoiceNumber, truncateStr(nameOr(m.clientNames, inv.ClientID), 20)) +
			status +
			fmt.Sprintf(" %12s %12s  due %s", money.Format(inv.Total), money.Format(inv.BalanceDue()), inv.DueDate.Format("2006-01-02"))
		if i == m.cursor {
			b.WriteString("> " + lipgloss.NewStyle().Bold(true).Render(line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}

	b.WriteString("\n" + helpStyle.Render("  j/k: navigate  enter: open  f: filter by status  g: draft from unbilled time"))
	return b.String()
}

func (m *InvoicesModel) viewDetail() string {
	inv := m.selected
	if inv == nil {
		return "Loading invoice..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Invoice %s", inv.InvoiceNumber)) + "  " + renderStatus(inv.Status) + "\n\n")
	if m.statusMsg != "" {
		b.WriteString(successStyle.Render("  "+m.statusMsg) + "\n\n")
	}

	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Client:"), valueStyle.Render(nameOr(m.clientNames, inv.ClientID)))
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Issued:"), inv.IssueDate.Format("2006-01-02"))
	due := inv.DueDate.Format("2006-01-02")
	if days := inv.DaysOverdue(time.Now()); days > 0 && inv.Status == domain.InvoiceStatusOverdue {
		due += errorStyle.Render(fmt.Sprintf("  (%d days late)", days))
	}
	fmt.Fprintf(&b, "  %s %s\n\n", labelStyle.Render("Due:"), due)

	for _, it := range inv.Items {
		fmt.Fprintf(&b, "  %-40s %8s x %10s = %12s\n",
			truncateStr(it.Description, 40),
			it.Quantity.StringFixed(2),
			money.Format(it.UnitPrice),
			money.Format(it.Total),
		)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s %12s\n", labelStyle.Render("Subtotal:"), money.Format(inv.Subtotal))
	if inv.TaxAmount > 0 {
		fmt.Fprintf(&b, "  %s %12s\n", labelStyle.Render(fmt.Sprintf("Tax (%s%%):", inv.TaxRate.String())), money.Format(inv.TaxAmount))
	}
	if inv.DiscountAmount > 0 {
		fmt.Fprintf(&b, "  %s %12s\n", labelStyle.Render("Discount:"), "-"+money.Format(inv.DiscountAmount))
	}
	fmt.Fprintf(&b, "  %s %12s\n", labelStyle.Render("Total:"), money.Format(inv.Total))
	fmt.Fprintf(&b, "  %s %12s\n", labelStyle.Render("Paid:"), money.Format(inv.AmountPaid))
	fmt.Fprintf(&b, "  %s %12s\n", labelStyle.Render("Balance due:"), valueStyle.Render(money.Format(inv.BalanceDue())))

	if len(m.payments) > 0 {
		b.WriteString("\n  Payments\n")
		for _, p := range m.payments {
			fmt.Fprintf(&b, "  %s  %12s  %-14s %s\n", p.CreatedAt.Local().Format("2006-01-02"), money.Format(p.Amount), p.Method, p.Reference)
		}
	}

	if len(m.reminders) > 0 {
		b.WriteString("\n  Reminders\n")
		for _, r := range m.reminders {
			when := r.ScheduledFor.Local().Format("2006-01-02 15:04")
			if r.SentAt != nil {
				when = r.SentAt.Local().Format("2006-01-02 15:04")
			}
			line := fmt.Sprintf("  %-16s %-10s %s", r.ReminderType, r.Status, when)
			if r.Status == domain.ReminderStatusCancelled {
				line = subtitleStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n")
	switch m.mode {
	case invoiceViewPayment:
		b.WriteString("  Payment amount: " + m.amountInput.View() + "\n")
		b.WriteString(helpStyle.Render("  enter: record (blank pays the balance)  esc: cancel"))
	case invoiceViewConfirm:
		b.WriteString(lipgloss.NewStyle().Foreground(warningColor).Render(fmt.Sprintf("  %s invoice %s? (y/n)", strings.ToUpper(m.confirm[:1])+m.confirm[1:], inv.InvoiceNumber)))
	default:
		b.WriteString(helpStyle.Render("  " + detailHelp(inv.Status)))
	}
	return b.String()
}

func detailHelp(status domain.InvoiceStatus) string {
	switch {
	case status == domain.InvoiceStatusDraft:
		return "s: send  X: cancel  d: delete  esc: back"
	case status.AwaitingPayment():
		return "p: record payment  m: send reminder  X: cancel  esc: back"
	case status == domain.InvoiceStatusCancelled:
		return "o: reopen as draft  d: delete  esc: back"
	default:
		return "d: delete  esc: back"
	}
}

func (m *InvoicesModel) viewPickClient() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Draft from unbilled time: pick a client") + "\n\n")
	for i, c := range m.genClients {
		if i == m.genCursor {
			b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render("> "+c.Name) + "\n")
		} else {
			b.WriteString("  " + c.Name + "\n")
		}
	}
	b.WriteString("\n" + helpStyle.Render("  j/k: navigate  enter: draft invoice  esc: cancel"))
	return b.String()
}
