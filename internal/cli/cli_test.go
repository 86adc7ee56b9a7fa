package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/app"
	"github.com/andy/billsink/internal/config"
	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/repository/memory"
	"github.com/andy/billsink/internal/service"
)

func setupApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.NewWithStore(config.DefaultConfig(), memory.New())
	require.NoError(t, err)
	SetApp(a)
	t.Cleanup(func() {
		a.Close()
		appInstance = nil
	})
	return a
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestBillingFlow(t *testing.T) {
	a := setupApp(t)
	ctx := context.Background()

	require.NoError(t, run(t, "clients", "add", "Globex", "--rate", "120", "--email", "ap@globex.test"))
	client, err := a.Store.Clients().GetByName(ctx, a.Owner(), "Globex")
	require.NoError(t, err)
	require.NotNil(t, client.HourlyRate)
	assert.Equal(t, int64(12000), *client.HourlyRate)

	require.NoError(t, run(t, "entries", "add", "Globex", "2026-01-05 09:00", "2026-01-05 11:00", "Build"))
	require.NoError(t, run(t, "invoices", "from-time", "Globex"))

	invoices, err := a.Invoices.List(ctx, a.Owner(), service.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	number := invoices[0].InvoiceNumber
	assert.Equal(t, int64(24000), invoices[0].Total)

	require.NoError(t, run(t, "invoices", "send", number))
	require.NoError(t, run(t, "payments", "record", number, "240"))

	inv, err := a.Invoices.GetByNumber(ctx, a.Owner(), number)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, int64(24000), inv.AmountPaid)

	reminders, err := a.Reminders.List(ctx, a.Owner(), inv.ID)
	require.NoError(t, err)
	for _, r := range reminders {
		assert.NotEqual(t, domain.ReminderStatusScheduled, r.Status)
	}
}

func TestSendUnknownInvoiceFails(t *testing.T) {
	setupApp(t)
	err := run(t, "invoices", "send", "INV-1-1999-001")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3", " "}, "entry")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseIDs([]string{"1,x"}, "entry")
	assert.ErrorContains(t, err, "invalid entry ID")
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, 14, d.Day())

	_, err = parseDate("14/03/2026")
	assert.Error(t, err)
}

func TestOptionalRate(t *testing.T) {
	rate, err := optionalRate("")
	require.NoError(t, err)
	assert.Nil(t, rate)

	rate, err = optionalRate("97.50")
	require.NoError(t, err)
	assert.Equal(t, int64(9750), *rate)
}
