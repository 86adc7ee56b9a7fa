package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the billing metrics and their registry. A nil *Collector is
// valid and records nothing, which keeps tests and the CLI free of wiring.
type Collector struct {
	registry *prometheus.Registry

	InvoicesCreated     *prometheus.CounterVec
	InvoiceTransitions  *prometheus.CounterVec
	PaymentsRecorded    *prometheus.CounterVec
	PaymentAmountCents  prometheus.Counter
	RemindersScheduled  prometheus.Counter
	RemindersDispatched *prometheus.CounterVec
	DispatchDuration    prometheus.Histogram
	ConcurrencyRetries  *prometheus.CounterVec
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
}

// NewCollector creates and registers all collectors under namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		InvoicesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_created_total",
			Help:      "Invoices created, by source",
		}, []string{"source"}),
		InvoiceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_transitions_total",
			Help:      "Invoice status transitions, by target status",
		}, []string{"status"}),
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Payments appended to the ledger, by method",
		}, []string{"method"}),
		PaymentAmountCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_amount_cents_total",
			Help:      "Sum of recorded payment amounts in minor units",
		}),
		RemindersScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_scheduled_total",
			Help:      "Reminder rows inserted by the scheduler",
		}),
		RemindersDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_dispatched_total",
			Help:      "Reminders processed by the dispatcher, by outcome",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of one dispatcher run",
			Buckets:   prometheus.DefBuckets,
		}),
		ConcurrencyRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_retries_total",
			Help:      "Operations retried after an optimistic-lock conflict",
		}, []string{"operation"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.InvoicesCreated,
		c.InvoiceTransitions,
		c.PaymentsRecorded,
		c.PaymentAmountCents,
		c.RemindersScheduled,
		c.RemindersDispatched,
		c.DispatchDuration,
		c.ConcurrencyRetries,
		c.RequestsTotal,
		c.RequestDuration,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) InvoiceCreated(source string) {
	if c == nil {
		return
	}
	c.InvoicesCreated.WithLabelValues(source).Inc()
}

func (c *Collector) InvoiceTransitioned(status string) {
	if c == nil {
		return
	}
	c.InvoiceTransitions.WithLabelValues(status).Inc()
}

func (c *Collector) PaymentRecorded(method string, cents int64) {
	if c == nil {
		return
	}
	c.PaymentsRecorded.WithLabelValues(method).Inc()
	c.PaymentAmountCents.Add(float64(cents))
}

func (c *Collector) ReminderScheduled(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.RemindersScheduled.Add(float64(n))
}

func (c *Collector) ReminderDispatched(outcome string) {
	if c == nil {
		return
	}
	c.RemindersDispatched.WithLabelValues(outcome).Inc()
}

func (c *Collector) DispatchObserved(d time.Duration) {
	if c == nil {
		return
	}
	c.DispatchDuration.Observe(d.Seconds())
}

func (c *Collector) Retried(operation string) {
	if c == nil {
		return
	}
	c.ConcurrencyRetries.WithLabelValues(operation).Inc()
}

// RequestObserved records one HTTP request
func (c *Collector) RequestObserved(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
