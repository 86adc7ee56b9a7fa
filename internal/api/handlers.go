package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/service"
)

// Services are the billing operations exposed over HTTP
type Services struct {
	Invoices   service.InvoiceService
	Converter  service.ConverterService
	Payments   service.PaymentService
	Reminders  service.ReminderScheduler
	Dispatcher service.ReminderDispatcher
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	svc    Services
	access AccessChecker
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(svc Services, access AccessChecker) *Handler {
	return &Handler{svc: svc, access: access}
}

func owner(r *http.Request) int64 {
	id, _ := OwnerFromContext(r.Context())
	return id
}

func invoiceID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("id", "invoice id must be a positive integer")
	}
	return id, nil
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	issue, due, err := parseDates(req.IssueDate, req.DueDate)
	if err != nil {
		respondWithError(w, err)
		return
	}

	inv, err := h.svc.Invoices.Create(r.Context(), owner(r), service.CreateInvoiceRequest{
		ClientID:  req.ClientID,
		ProjectID: req.ProjectID,
		IssueDate: issue,
		DueDate:   due,
		Items:     itemInputs(req.Items),
		TaxRate:   req.TaxRate,
		Discount:  req.Discount,
		Notes:     req.Notes,
	})
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) handleInvoiceFromTime(w http.ResponseWriter, r *http.Request) {
	var req timeInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	issue, due, err := parseDates(req.IssueDate, req.DueDate)
	if err != nil {
		respondWithError(w, err)
		return
	}

	inv, err := h.svc.Converter.FromTimeEntries(r.Context(), owner(r), service.TimeInvoiceRequest{
		ClientID:       req.ClientID,
		ProjectID:      req.ProjectID,
		EntryIDs:       req.EntryIDs,
		GroupByProject: req.GroupByProject,
		IssueDate:      issue,
		DueDate:        due,
		TaxRate:        req.TaxRate,
		Discount:       req.Discount,
		Notes:          req.Notes,
	})
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) handleInvoiceFromMilestones(w http.ResponseWriter, r *http.Request) {
	var req milestoneInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	issue, due, err := parseDates(req.IssueDate, req.DueDate)
	if err != nil {
		respondWithError(w, err)
		return
	}

	inv, err := h.svc.Converter.FromMilestones(r.Context(), owner(r), service.MilestoneInvoiceRequest{
		ProjectID:    req.ProjectID,
		MilestoneIDs: req.MilestoneIDs,
		IssueDate:    issue,
		DueDate:      due,
		TaxRate:      req.TaxRate,
		Discount:     req.Discount,
		Notes:        req.Notes,
	})
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	var filter service.InvoiceFilter
	if v := r.URL.Query().Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondWithError(w, domain.Validation("client_id", "client_id must be an integer"))
			return
		}
		filter.ClientID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := domain.ParseInvoiceStatus(v)
		if err != nil {
			respondWithError(w, err)
			return
		}
		filter.Status = &status
	}

	invoices, err := h.svc.Invoices.List(r.Context(), owner(r), filter)
	if err != nil {
		respondWithError(w, err)
		return
	}
	resp := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, toInvoiceResponse(inv))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	inv, err := h.svc.Invoices.Get(r.Context(), owner(r), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	var req updateDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		respondWithError(w, err)
		return
	}

	update := service.UpdateDraftRequest{
		TaxRate:  req.TaxRate,
		Discount: req.Discount,
		Notes:    req.Notes,
		DueDate:  due,
	}
	if req.Items != nil {
		items := itemInputs(*req.Items)
		update.Items = &items
	}

	inv, err := h.svc.Invoices.UpdateDraft(r.Context(), owner(r), id, update)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.svc.Invoices.Delete(r.Context(), owner(r), id); err != nil {
		respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSendInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	inv, err := h.svc.Invoices.Send(r.Context(), owner(r), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	to, err := domain.ParseInvoiceStatus(req.Status)
	if err != nil {
		respondWithError(w, err)
		return
	}

	inv, err := h.svc.Invoices.Transition(r.Context(), owner(r), id, to)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) handleChangeDueDate(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	var req dueDateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	due, err := parseDate("due_date", &req.DueDate)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if due == nil {
		respondWithError(w, domain.Validation("due_date", "due date is required"))
		return
	}

	inv, err := h.svc.Invoices.ChangeDueDate(r.Context(), owner(r), id, *due)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, err)
		return
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		respondWithError(w, err)
		return
	}

	receipt, err := h.svc.Payments.Record(r.Context(), owner(r), id, service.RecordPaymentRequest{
		Amount:    req.Amount,
		Method:    method,
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, receiptResponse{
		Payment: toPaymentResponse(receipt.Payment),
		Invoice: toInvoiceResponse(receipt.Invoice),
		Capped:  receipt.Capped,
	})
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	payments, err := h.svc.Payments.List(r.Context(), owner(r), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, toPaymentResponse(p))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListReminders(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	reminders, err := h.svc.Reminders.List(r.Context(), owner(r), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	resp := make([]reminderResponse, 0, len(reminders))
	for _, rem := range reminders {
		resp = append(resp, toReminderResponse(rem))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleScheduleReminders(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	n, err := h.svc.Reminders.Schedule(r.Context(), owner(r), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"scheduled": n})
}

func (h *Handler) handleCancelReminders(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	n, err := h.svc.Reminders.Cancel(r.Context(), owner(r), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

func (h *Handler) handleSendReminder(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	rem, err := h.svc.Reminders.SendManual(r.Context(), owner(r), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toReminderResponse(rem))
}

// handleMarkViewed is called by the client portal, authorized per invoice.
func (h *Handler) handleMarkViewed(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if h.access == nil {
		respondWithStatus(w, http.StatusForbidden, "portal access is disabled")
		return
	}
	ok, err := h.access.CanView(r.Context(), id, r.Header.Get(PortalTokenHeader))
	if err != nil {
		respondWithError(w, err)
		return
	}
	if !ok {
		respondWithStatus(w, http.StatusForbidden, "not allowed to view this invoice")
		return
	}

	inv, err := h.svc.Invoices.MarkViewed(r.Context(), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": string(inv.Status)})
}

func (h *Handler) handleDispatchReminders(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Dispatcher.Dispatch(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSweepOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Invoices.SweepOverdue(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"marked": n})
}
