package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. BILLSINK_SERVER_ADDR.
const EnvPrefix = "BILLSINK"

type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	User       UserConfig       `yaml:"user" mapstructure:"user"`
	Invoice    InvoiceConfig    `yaml:"invoice" mapstructure:"invoice"`
	Payments   PaymentsConfig   `yaml:"payments" mapstructure:"payments"`
	Reminders  RemindersConfig  `yaml:"reminders" mapstructure:"reminders"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" mapstructure:"dispatcher"`
	Notifier   NotifierConfig   `yaml:"notifier" mapstructure:"notifier"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Log        logger.LogConfig `yaml:"log" mapstructure:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// UserConfig identifies the owner the CLI acts as, and is printed on invoices
type UserConfig struct {
	ID      int64  `yaml:"id" mapstructure:"id"`
	Name    string `yaml:"name" mapstructure:"name"`
	Email   string `yaml:"email" mapstructure:"email"`
	Address string `yaml:"address" mapstructure:"address"`
	Phone   string `yaml:"phone" mapstructure:"phone"`
}

type InvoiceConfig struct {
	DefaultDueDays          int     `yaml:"default_due_days" mapstructure:"default_due_days"`
	DefaultTaxRate          float64 `yaml:"default_tax_rate" mapstructure:"default_tax_rate"` // percent, 8.25 = 8.25%
	NumberPrefix            string  `yaml:"number_prefix" mapstructure:"number_prefix"`
	AllowReactivation       bool    `yaml:"allow_reactivation" mapstructure:"allow_reactivation"`
	AllowDeleteWithPayments bool    `yaml:"allow_delete_with_payments" mapstructure:"allow_delete_with_payments"`
}

// Overpayment policies
const (
	OverpaymentReject = "reject"
	OverpaymentCap    = "cap"
)

type PaymentsConfig struct {
	Overpayment string `yaml:"overpayment" mapstructure:"overpayment"`
}

type CadenceStep struct {
	Type       string `yaml:"type" mapstructure:"type"`
	DaysOffset int    `yaml:"days_offset" mapstructure:"days_offset"`
}

type RemindersConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Cadence        []CadenceStep `yaml:"cadence" mapstructure:"cadence"`
	SendHour       int           `yaml:"send_hour" mapstructure:"send_hour"` // UTC hour of day reminders go out
	CatchUpOverdue bool          `yaml:"catch_up_overdue" mapstructure:"catch_up_overdue"`
}

type DispatcherConfig struct {
	Schedule      string        `yaml:"schedule" mapstructure:"schedule"`
	SweepSchedule string        `yaml:"sweep_schedule" mapstructure:"sweep_schedule"`
	BatchSize     int           `yaml:"batch_size" mapstructure:"batch_size"`
	Lease         time.Duration `yaml:"lease" mapstructure:"lease"`
}

// Notifier providers
const (
	ProviderLog    = "log"
	ProviderResend = "resend"
)

type NotifierConfig struct {
	Provider           string        `yaml:"provider" mapstructure:"provider"`
	APIKey             string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL            string        `yaml:"base_url" mapstructure:"base_url"`
	From               string        `yaml:"from" mapstructure:"from"`
	ReplyTo            string        `yaml:"reply_to" mapstructure:"reply_to"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerSecond      float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst              int           `yaml:"burst" mapstructure:"burst"`
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures" mapstructure:"breaker_max_failures"`
	BreakerCooldown    time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

type EventsConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	URL      string `yaml:"url" mapstructure:"url"`
	Exchange string `yaml:"exchange" mapstructure:"exchange"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" mapstructure:"addr"`
	JWTSecret      string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	InternalAPIKey string        `yaml:"internal_api_key" mapstructure:"internal_api_key"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

type RetryConfig struct {
	Attempts int `yaml:"attempts" mapstructure:"attempts"`
}

// DefaultConfigPath returns ~/.config/billsink/config.yaml
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "billsink", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "billsink", "config.yaml")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	cadence := make([]CadenceStep, 0)
	for _, step := range domain.DefaultCadence() {
		cadence = append(cadence, CadenceStep{Type: string(step.Type), DaysOffset: step.DaysOffset})
	}

	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(homeDir, ".config", "billsink", "billsink.db"),
		},
		User: UserConfig{ID: 1},
		Invoice: InvoiceConfig{
			DefaultDueDays:    30,
			NumberPrefix:      "INV",
			AllowReactivation: true,
		},
		Payments: PaymentsConfig{Overpayment: OverpaymentReject},
		Reminders: RemindersConfig{
			Enabled:        true,
			Cadence:        cadence,
			SendHour:       9,
			CatchUpOverdue: true,
		},
		Dispatcher: DispatcherConfig{
			Schedule:      "*/15 * * * *",
			SweepSchedule: "@hourly",
			BatchSize:     50,
			Lease:         5 * time.Minute,
		},
		Notifier: NotifierConfig{
			Provider:           ProviderLog,
			BaseURL:            "https://api.resend.com",
			Timeout:            10 * time.Second,
			RatePerSecond:      2,
			Burst:              2,
			BreakerMaxFailures: 5,
			BreakerCooldown:    time.Minute,
		},
		Events: EventsConfig{Exchange: "billsink.events"},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			RequestTimeout: 30 * time.Second,
		},
		Retry: RetryConfig{Attempts: 3},
		Log:   logger.DefaultConfig(),
	}
}

// Load reads the YAML file at path (if present) over the defaults, then
// applies BILLSINK_* environment overrides. A .env file in the working
// directory is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads from the default config path
func LoadDefault() (*Config, error) {
	return Load(DefaultConfigPath())
}

func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]any{
		"database.path":                      d.Database.Path,
		"user.id":                            d.User.ID,
		"user.name":                          d.User.Name,
		"user.email":                         d.User.Email,
		"user.address":                       d.User.Address,
		"user.phone":                         d.User.Phone,
		"invoice.default_due_days":           d.Invoice.DefaultDueDays,
		"invoice.default_tax_rate":           d.Invoice.DefaultTaxRate,
		"invoice.number_prefix":              d.Invoice.NumberPrefix,
		"invoice.allow_reactivation":         d.Invoice.AllowReactivation,
		"invoice.allow_delete_with_payments": d.Invoice.AllowDeleteWithPayments,
		"payments.overpayment":               d.Payments.Overpayment,
		"reminders.enabled":                  d.Reminders.Enabled,
		"reminders.cadence":                  d.Reminders.Cadence,
		"reminders.send_hour":                d.Reminders.SendHour,
		"reminders.catch_up_overdue":         d.Reminders.CatchUpOverdue,
		"dispatcher.schedule":                d.Dispatcher.Schedule,
		"dispatcher.sweep_schedule":          d.Dispatcher.SweepSchedule,
		"dispatcher.batch_size":              d.Dispatcher.BatchSize,
		"dispatcher.lease":                   d.Dispatcher.Lease,
		"notifier.provider":                  d.Notifier.Provider,
		"notifier.api_key":                   d.Notifier.APIKey,
		"notifier.base_url":                  d.Notifier.BaseURL,
		"notifier.from":                      d.Notifier.From,
		"notifier.reply_to":                  d.Notifier.ReplyTo,
		"notifier.timeout":                   d.Notifier.Timeout,
		"notifier.rate_per_second":           d.Notifier.RatePerSecond,
		"notifier.burst":                     d.Notifier.Burst,
		"notifier.breaker_max_failures":      d.Notifier.BreakerMaxFailures,
		"notifier.breaker_cooldown":          d.Notifier.BreakerCooldown,
		"events.enabled":                     d.Events.Enabled,
		"events.url":                         d.Events.URL,
		"events.exchange":                    d.Events.Exchange,
		"server.addr":                        d.Server.Addr,
		"server.jwt_secret":                  d.Server.JWTSecret,
		"server.internal_api_key":            d.Server.InternalAPIKey,
		"server.allowed_origins":             d.Server.AllowedOrigins,
		"server.request_timeout":             d.Server.RequestTimeout,
		"retry.attempts":                     d.Retry.Attempts,
		"log.level":                          d.Log.Level,
		"log.format":                         d.Log.Format,
		"log.output":                         d.Log.Output,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate checks enumerated settings and normalizes the cadence order
func (c *Config) Validate() error {
	if c.User.ID <= 0 {
		return errors.New("user.id must be positive")
	}
	switch c.Payments.Overpayment {
	case OverpaymentReject, OverpaymentCap:
	default:
		return fmt.Errorf("payments.overpayment must be %q or %q", OverpaymentReject, OverpaymentCap)
	}
	switch c.Notifier.Provider {
	case ProviderLog:
	case ProviderResend:
		if c.Notifier.APIKey == "" || c.Notifier.From == "" {
			return errors.New("notifier.api_key and notifier.from are required for the resend provider")
		}
	default:
		return fmt.Errorf("unknown notifier.provider %q", c.Notifier.Provider)
	}
	if c.Reminders.SendHour < 0 || c.Reminders.SendHour > 23 {
		return errors.New("reminders.send_hour must be between 0 and 23")
	}
	if len(c.Reminders.Cadence) == 0 {
		return errors.New("reminders.cadence cannot be empty")
	}
	for _, step := range c.Reminders.Cadence {
		if _, err := domain.ParseReminderType(step.Type); err != nil {
			return fmt.Errorf("reminders.cadence: %w", err)
		}
	}
	sort.SliceStable(c.Reminders.Cadence, func(i, j int) bool {
		return c.Reminders.Cadence[i].DaysOffset < c.Reminders.Cadence[j].DaysOffset
	})
	if c.Retry.Attempts < 1 {
		c.Retry.Attempts = 1
	}
	if c.Dispatcher.BatchSize < 1 {
		c.Dispatcher.BatchSize = 1
	}
	return nil
}

// ReminderCadence converts the configured cadence into domain steps
func (c *Config) ReminderCadence() []domain.CadenceStep {
	steps := make([]domain.CadenceStep, 0, len(c.Reminders.Cadence))
	for _, step := range c.Reminders.Cadence {
		steps = append(steps, domain.CadenceStep{Type: domain.ReminderType(step.Type), DaysOffset: step.DaysOffset})
	}
	return steps
}

// Save writes the config to the given path
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// EnsureDirectories creates the database directory
func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(filepath.Dir(c.Database.Path), 0700)
}
