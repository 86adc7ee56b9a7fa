package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/app"
	"github.com/andy/billsink/internal/config"
	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/repository/memory"
	"github.com/andy/billsink/internal/service"
)

func newTestApp(t *testing.T) (*app.App, *domain.Client) {
	t.Helper()
	a, err := app.NewWithStore(config.DefaultConfig(), memory.New())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	rate := int64(10000)
	client := domain.NewClient(a.Owner(), "Acme", &rate)
	client.Email = "ap@acme.test"
	require.NoError(t, a.Store.Clients().Create(context.Background(), client))
	return a, client
}

func sentInvoice(t *testing.T, a *app.App, client *domain.Client) *domain.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := a.Invoices.Create(ctx, a.Owner(), service.CreateInvoiceRequest{
		ClientID: client.ID,
		Items:    []service.ItemInput{{Description: "Design", Quantity: decimal.NewFromInt(2), UnitPrice: 10000}},
	})
	require.NoError(t, err)
	inv, err = a.Invoices.Send(ctx, a.Owner(), inv.ID)
	require.NoError(t, err)
	return inv
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelSwitchesScreens(t *testing.T) {
	a, _ := newTestApp(t)
	var m tea.Model = New(a)

	m, cmd := m.Update(keyPress("i"))
	assert.NotNil(t, cmd)
	root := m.(Model)
	assert.Equal(t, ScreenInvoices, root.currentScreen)
	assert.Contains(t, root.screens, ScreenInvoices)

	m, _ = m.Update(keyPress("R"))
	assert.Equal(t, ScreenReports, m.(Model).currentScreen)
}

func TestModelFirstRunOpensClients(t *testing.T) {
	a, _ := newTestApp(t)
	var m tea.Model = New(a)

	m, cmd := m.Update(firstRunCheckMsg{hasClients: false})
	assert.NotNil(t, cmd)
	assert.Equal(t, ScreenClients, m.(Model).currentScreen)

	// only the first check redirects
	m, _ = m.Update(SwitchScreenMsg{Screen: ScreenDashboard})
	m, _ = m.Update(firstRunCheckMsg{hasClients: false})
	assert.Equal(t, ScreenDashboard, m.(Model).currentScreen)
}

func TestModelBlocksQuitWhileTimerRuns(t *testing.T) {
	a, client := newTestApp(t)
	ctx := context.Background()
	_, err := a.Timer.Start(ctx, a.Owner(), client.ID, nil, "calls")
	require.NoError(t, err)

	var m tea.Model = New(a)
	m, cmd := m.Update(keyPress("q"))
	assert.Nil(t, cmd)
	assert.Contains(t, m.(Model).quitMsg, "Timer is running")

	require.NoError(t, a.Timer.Discard(ctx, a.Owner()))
	_, cmd = m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDashboardShowsReceivables(t *testing.T) {
	a, client := newTestApp(t)
	sentInvoice(t, a, client)

	d := NewDashboardModel(a).(*DashboardModel)
	d.Update(d.loadData()())

	view := d.View()
	assert.Contains(t, view, "$200.00")
	assert.Contains(t, view, "Open invoices:  1")
	assert.Contains(t, view, "No active timer")
}

func TestInvoicesScreenRecordsPayment(t *testing.T) {
	a, client := newTestApp(t)
	inv := sentInvoice(t, a, client)

	m := NewInvoicesModel(a).(*InvoicesModel)
	m.Update(m.loadInvoices()())
	require.Len(t, m.invoices, 1)
	assert.Contains(t, m.View(), inv.InvoiceNumber)

	_, cmd := m.Update(keyPress("enter"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	require.Equal(t, invoiceViewDetail, m.mode)
	assert.Len(t, m.reminders, len(domain.DefaultCadence()))

	m.Update(keyPress("p"))
	require.Equal(t, invoiceViewPayment, m.mode)
	assert.True(t, m.IsCapturingInput())
	m.Update(keyPress("50"))

	_, cmd = m.Update(keyPress("enter"))
	require.NotNil(t, cmd)
	msg := cmd().(invoiceActionMsg)
	require.NoError(t, msg.err)
	assert.Contains(t, msg.status, "Recorded $50.00, balance $150.00")

	payments, err := a.Payments.List(context.Background(), a.Owner(), inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(5000), payments[0].Amount)
}

func TestInvoicesScreenBlankPaymentSettlesBalance(t *testing.T) {
	a, client := newTestApp(t)
	inv := sentInvoice(t, a, client)

	m := NewInvoicesModel(a).(*InvoicesModel)
	m.Update(m.loadDetail(inv.ID)())
	m.Update(keyPress("p"))

	_, cmd := m.Update(keyPress("enter"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	m.Update(m.loadDetail(inv.ID)())

	assert.Equal(t, domain.InvoiceStatusPaid, m.selected.Status)
	assert.NotContains(t, m.View(), "p: record payment")
}

func TestInvoicesScreenDraftsFromUnbilledTime(t *testing.T) {
	a, client := newTestApp(t)
	ctx := context.Background()
	_, err := a.Entries.Add(ctx, a.Owner(), service.ManualEntryRequest{
		ClientID:    client.ID,
		Description: "API work",
		Start:       time.Now().Add(-3 * time.Hour),
		Duration:    90 * time.Minute,
	})
	require.NoError(t, err)

	m := NewInvoicesModel(a).(*InvoicesModel)
	m.Update(m.loadGenClients()())
	require.Equal(t, invoiceViewPickClient, m.mode)
	require.Len(t, m.genClients, 1)

	_, cmd := m.Update(keyPress("enter"))
	require.NotNil(t, cmd)
	msg := cmd().(invoiceActionMsg)
	require.NoError(t, msg.err)
	assert.Contains(t, msg.status, "$150.00")

	invoices, err := a.Invoices.List(ctx, a.Owner(), service.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, domain.InvoiceStatusDraft, invoices[0].Status)

	// the billed entry no longer offers a draft
	m.Update(m.loadGenClients()())
	assert.Error(t, m.err)
}

func TestEntriesScreenDeletesAfterConfirm(t *testing.T) {
	a, client := newTestApp(t)
	ctx := context.Background()
	_, err := a.Entries.Add(ctx, a.Owner(), service.ManualEntryRequest{
		ClientID: client.ID,
		Start:    time.Now().Add(-2 * time.Hour),
		Duration: time.Hour,
	})
	require.NoError(t, err)

	m := NewEntriesModel(a).(*EntriesModel)
	m.Update(m.loadEntries()())
	require.Len(t, m.entries, 1)

	m.Update(keyPress("x"))
	require.Equal(t, entryModeConfirmDelete, m.mode)
	assert.Contains(t, m.View(), "Delete this entry?")

	_, cmd := m.Update(keyPress("y"))
	require.NotNil(t, cmd)
	_, cmd = m.Update(cmd())
	require.NotNil(t, cmd)
	m.Update(cmd())

	assert.Equal(t, "Entry deleted", m.statusMsg)
	assert.Empty(t, m.entries)
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "45m", formatMinutes(45))
	assert.Equal(t, "2h", formatMinutes(120))
	assert.Equal(t, "1h 30m", formatMinutes(90))
}
