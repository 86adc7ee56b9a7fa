package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/andy/billsink/internal/metrics"
)

// RouterConfig carries the transport settings of the HTTP API
type RouterConfig struct {
	JWTSecret      string
	InternalAPIKey string
	AllowedOrigins []string
	RequestTimeout time.Duration
	Metrics        *metrics.Collector
	Logger         zerolog.Logger
}

// NewRouter creates a new chi router and registers the billing routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(observeRequests(cfg.Metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key", PortalTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/reminders/dispatch", h.handleDispatchReminders)
		r.Post("/invoices/sweep-overdue", h.handleSweepOverdue)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/portal/invoices/{id}/viewed", h.handleMarkViewed)

		r.Group(func(r chi.Router) {
			r.Use(OwnerAuthMiddleware(cfg.JWTSecret))

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.handleListInvoices)
				r.Post("/", h.handleCreateInvoice)
				r.Post("/from-time", h.handleInvoiceFromTime)
				r.Post("/from-milestones", h.handleInvoiceFromMilestones)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetInvoice)
					r.Patch("/", h.handleUpdateDraft)
					r.Delete("/", h.handleDeleteInvoice)
					r.Post("/send", h.handleSendInvoice)
					r.Post("/status", h.handleTransition)
					r.Put("/due-date", h.handleChangeDueDate)

					r.Get("/payments", h.handleListPayments)
					r.Post("/payments", h.handleRecordPayment)

					r.Get("/reminders", h.handleListReminders)
					r.Post("/reminders/schedule", h.handleScheduleReminders)
					r.Post("/reminders/cancel", h.handleCancelReminders)
					r.Post("/reminders/send", h.handleSendReminder)
				})
			})
		})
	})

	return r
}
