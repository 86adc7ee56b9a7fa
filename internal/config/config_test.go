package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.User.ID)
	assert.Equal(t, 30, cfg.Invoice.DefaultDueDays)
	assert.Equal(t, "INV", cfg.Invoice.NumberPrefix)
	assert.Equal(t, OverpaymentReject, cfg.Payments.Overpayment)
	assert.Equal(t, ProviderLog, cfg.Notifier.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Dispatcher.Lease)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, domain.DefaultCadence(), cfg.ReminderCadence())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
user:
  id: 7
  name: Andy
invoice:
  number_prefix: BILL
  default_tax_rate: 8.25
payments:
  overpayment: cap
reminders:
  send_hour: 14
  cadence:
    - type: overdue_firm
      days_offset: 10
    - type: upcoming_due
      days_offset: -2
dispatcher:
  lease: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))
	t.Setenv("BILLSINK_SERVER_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.User.ID)
	assert.Equal(t, "BILL", cfg.Invoice.NumberPrefix)
	assert.Equal(t, 8.25, cfg.Invoice.DefaultTaxRate)
	assert.Equal(t, OverpaymentCap, cfg.Payments.Overpayment)
	assert.Equal(t, 14, cfg.Reminders.SendHour)
	assert.Equal(t, 10*time.Minute, cfg.Dispatcher.Lease)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 30, cfg.Invoice.DefaultDueDays)

	assert.Equal(t, []domain.CadenceStep{
		{Type: domain.ReminderUpcomingDue, DaysOffset: -2},
		{Type: domain.ReminderOverdueFirm, DaysOffset: 10},
	}, cfg.ReminderCadence())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing user", func(c *Config) { c.User.ID = 0 }},
		{"unknown overpayment policy", func(c *Config) { c.Payments.Overpayment = "refund" }},
		{"resend without key", func(c *Config) { c.Notifier.Provider = ProviderResend }},
		{"unknown provider", func(c *Config) { c.Notifier.Provider = "smtp" }},
		{"send hour out of range", func(c *Config) { c.Reminders.SendHour = 24 }},
		{"empty cadence", func(c *Config) { c.Reminders.Cadence = nil }},
		{"unknown reminder type", func(c *Config) { c.Reminders.Cadence[0].Type = "nag" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateClampsCounts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.Attempts = 0
	cfg.Dispatcher.BatchSize = -4
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Retry.Attempts)
	assert.Equal(t, 1, cfg.Dispatcher.BatchSize)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.User.Name = "Andy"
	cfg.Invoice.NumberPrefix = "ACME"
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Andy", loaded.User.Name)
	assert.Equal(t, "ACME", loaded.Invoice.NumberPrefix)
	assert.Equal(t, cfg.Dispatcher.Lease, loaded.Dispatcher.Lease)
}
