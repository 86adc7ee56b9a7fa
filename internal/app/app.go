package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/andy/billsink/internal/config"
	"github.com/andy/billsink/internal/crypto"
	"github.com/andy/billsink/internal/db"
	"github.com/andy/billsink/internal/events"
	"github.com/andy/billsink/internal/logger"
	"github.com/andy/billsink/internal/metrics"
	"github.com/andy/billsink/internal/notifier"
	"github.com/andy/billsink/internal/repository"
	"github.com/andy/billsink/internal/service"
)

// App is the dependency injection container for all application components
type App struct {
	Config *config.Config
	DB     *db.DB
	Store  repository.Store
	Logger zerolog.Logger

	Metrics  *metrics.Collector
	Events   events.Publisher
	Notifier notifier.Notifier

	// Services
	Invoices   service.InvoiceService
	Converter  service.ConverterService
	Payments   service.PaymentService
	Reminders  service.ReminderScheduler
	Dispatcher service.ReminderDispatcher
	Timer      service.TimerService
	Entries    service.EntryService
	Reports    service.ReportService
}

// New creates a new App instance from the default config path
func New(ctx context.Context) (*App, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig opens the encrypted database described by cfg and wires
// every service over it.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := logger.Setup(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	password, err := databaseKey()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Database.Path, password)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a, err := NewWithStore(cfg, repository.NewSQLStore(database))
	if err != nil {
		database.Close()
		return nil, err
	}
	a.DB = database
	return a, nil
}

// NewWithStore wires the services over an existing store. The event
// publisher falls back to a no-op when the broker cannot be reached.
func NewWithStore(cfg *config.Config, store repository.Store) (*App, error) {
	base := log.Logger

	renderer, err := notifier.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	a := &App{
		Config:   cfg,
		Store:    store,
		Logger:   base,
		Metrics:  metrics.NewCollector("billsink"),
		Events:   newPublisher(cfg, logger.WithComponent("events")),
		Notifier: newNotifier(cfg, logger.WithComponent("notifier")),
	}

	deps := func(component string) service.Deps {
		return service.Deps{
			Store:    store,
			Settings: Settings(cfg),
			Logger:   logger.WithComponent(component),
			Events:   a.Events,
			Metrics:  a.Metrics,
			Notifier: a.Notifier,
			Renderer: renderer,
		}
	}

	a.Invoices = service.NewInvoiceService(deps("invoices"))
	a.Converter = service.NewConverterService(deps("converter"))
	a.Payments = service.NewPaymentService(deps("payments"))
	a.Reminders = service.NewReminderScheduler(deps("reminders"))
	a.Dispatcher = service.NewReminderDispatcher(deps("dispatcher"))
	a.Timer = service.NewTimerService(deps("timer"))
	a.Entries = service.NewEntryService(deps("entries"))
	a.Reports = service.NewReportService(deps("reports"))
	return a, nil
}

// Settings translates the config into service policy
func Settings(cfg *config.Config) service.Settings {
	return service.Settings{
		NumberPrefix:            cfg.Invoice.NumberPrefix,
		DefaultDueDays:          cfg.Invoice.DefaultDueDays,
		DefaultTaxRate:          decimal.NewFromFloat(cfg.Invoice.DefaultTaxRate),
		AllowReactivation:       cfg.Invoice.AllowReactivation,
		AllowDeleteWithPayments: cfg.Invoice.AllowDeleteWithPayments,
		Overpayment:             cfg.Payments.Overpayment,
		RemindersEnabled:        cfg.Reminders.Enabled,
		Cadence:                 cfg.ReminderCadence(),
		SendHour:                cfg.Reminders.SendHour,
		CatchUpOverdue:          cfg.Reminders.CatchUpOverdue,
		RetryAttempts:           cfg.Retry.Attempts,
		BatchSize:               cfg.Dispatcher.BatchSize,
		Lease:                   cfg.Dispatcher.Lease,
		SenderName:              cfg.User.Name,
		SenderEmail:             cfg.User.Email,
		ReplyTo:                 cfg.Notifier.ReplyTo,
	}
}

func newNotifier(cfg *config.Config, log zerolog.Logger) notifier.Notifier {
	if cfg.Notifier.Provider != config.ProviderResend {
		return notifier.NewLogNotifier(log)
	}
	return notifier.NewResendNotifier(notifier.ResendConfig{
		APIKey:             cfg.Notifier.APIKey,
		BaseURL:            cfg.Notifier.BaseURL,
		From:               cfg.Notifier.From,
		ReplyTo:            cfg.Notifier.ReplyTo,
		Timeout:            cfg.Notifier.Timeout,
		RatePerSecond:      cfg.Notifier.RatePerSecond,
		Burst:              cfg.Notifier.Burst,
		BreakerMaxFailures: cfg.Notifier.BreakerMaxFailures,
		BreakerCooldown:    cfg.Notifier.BreakerCooldown,
	}, log)
}

func newPublisher(cfg *config.Config, log zerolog.Logger) events.Publisher {
	if !cfg.Events.Enabled || cfg.Events.URL == "" {
		return events.NoopPublisher{}
	}
	p, err := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Exchange)
	if err != nil {
		log.Warn().Err(err).Msg("event publishing disabled")
		return events.NoopPublisher{}
	}
	return p
}

// Owner is the user the CLI and TUI act as
func (a *App) Owner() int64 {
	return a.Config.User.ID
}

// Close cleanly shuts down the application
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// SaveConfig saves the current configuration to disk
func (a *App) SaveConfig() error {
	return a.Config.Save(config.DefaultConfigPath())
}

// databaseKey returns the stored encryption key, prompting for a new one on
// first run when attached to a terminal.
func databaseKey() (string, error) {
	keyring := crypto.NewKeyring()
	password, err := keyring.GetKey()
	if err == nil {
		return password, nil
	}
	if !errors.Is(err, crypto.ErrKeyNotFound) {
		return "", err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no database key: set %s or run billsink in a terminal once", crypto.EnvKey)
	}

	fmt.Println("Setting up database encryption for the first time...")
	password, err = promptForPassword()
	if err != nil {
		return "", fmt.Errorf("failed to set password: %w", err)
	}
	if err := keyring.SetKey(password); err != nil {
		return "", fmt.Errorf("failed to store encryption key: %w", err)
	}
	return password, nil
}

// promptForPassword prompts user for a new database password (first run)
func promptForPassword() (string, error) {
	fmt.Println()
	fmt.Println("Your billing data will be encrypted with a password.")
	fmt.Println("This password will be stored securely in your system keyring.")
	fmt.Println()
	fmt.Print("Enter a password for database encryption: ")

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}

	fmt.Println()
	fmt.Println("✓ Database encryption configured successfully")
	fmt.Println()
	return string(password), nil
}
