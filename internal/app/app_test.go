package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/config"
	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/notifier"
	"github.com/andy/billsink/internal/repository/memory"
	"github.com/andy/billsink/internal/service"
)

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Invoice.DefaultTaxRate = 8.25
	cfg.Payments.Overpayment = config.OverpaymentCap
	cfg.User.Name = "Andy"

	s := Settings(cfg)
	assert.Equal(t, "8.25", s.DefaultTaxRate.String())
	assert.Equal(t, service.OverpaymentCap, s.Overpayment)
	assert.Equal(t, "Andy", s.SenderName)
	assert.Equal(t, domain.DefaultCadence(), s.Cadence)
	assert.Equal(t, 5*time.Minute, s.Lease)
}

func TestNewWithStoreWiresServices(t *testing.T) {
	cfg := config.DefaultConfig()
	a, err := NewWithStore(cfg, memory.New())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &notifier.LogNotifier{}, a.Notifier)
	assert.IsType(t, events.NoopPublisher{}, a.Events)
	assert.Equal(t, int64(1), a.Owner())

	ctx := context.Background()
	c := domain.NewClient(a.Owner(), "Acme", nil)
	c.Email = "ap@acme.test"
	require.NoError(t, a.Store.Clients().Create(ctx, c))

	inv, err := a.Invoices.Create(ctx, a.Owner(), service.CreateInvoiceRequest{ClientID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, "INV-1-"+time.Now().UTC().Format("2006")+"-001", inv.InvoiceNumber)
}

func TestResendProviderIsSelected(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notifier.Provider = config.ProviderResend
	cfg.Notifier.APIKey = "re_test"
	cfg.Notifier.From = "billing@example.com"

	a, err := NewWithStore(cfg, memory.New())
	require.NoError(t, err)
	assert.IsType(t, &notifier.ResendNotifier{}, a.Notifier)
}
