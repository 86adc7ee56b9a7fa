package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/billsink/internal/domain"
	"github.com/andy/billsink/internal/metrics"
	"github.com/andy/billsink/internal/notifier"
	"github.com/andy/billsink/internal/repository/memory"
	"github.com/andy/billsink/internal/service"
)

const (
	testSecret = "test-secret"
	testAPIKey = "internal-key"
)

type testServer struct {
	t       *testing.T
	server  *httptest.Server
	store   *memory.Store
	portal  *PortalTokens
	client  *domain.Client
	token   string
	metrics *metrics.Collector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	renderer, err := notifier.NewRenderer()
	require.NoError(t, err)
	collector := metrics.NewCollector("billsink")

	deps := service.Deps{
		Store:    store,
		Settings: service.DefaultSettings(),
		Logger:   zerolog.Nop(),
		Metrics:  collector,
		Notifier: notifier.NewLogNotifier(zerolog.Nop()),
		Renderer: renderer,
	}
	portal := NewPortalTokens(testSecret)
	h := NewHandler(Services{
		Invoices:   service.NewInvoiceService(deps),
		Converter:  service.NewConverterService(deps),
		Payments:   service.NewPaymentService(deps),
		Reminders:  service.NewReminderScheduler(deps),
		Dispatcher: service.NewReminderDispatcher(deps),
	}, portal)

	router := NewRouter(h, RouterConfig{
		JWTSecret:      testSecret,
		InternalAPIKey: testAPIKey,
		Metrics:        collector,
		Logger:         zerolog.Nop(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client := domain.NewClient(1, "Acme", nil)
	client.Email = "billing@acme.test"
	require.NoError(t, store.Clients().Create(context.Background(), client))

	token, err := NewOwnerToken(testSecret, 1, time.Hour)
	require.NoError(t, err)

	return &testServer{t: t, server: srv, store: store, portal: portal, client: client, token: token, metrics: collector}
}

func (s *testServer) do(method, path, token string, body interface{}, headers ...string) *http.Response {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) createInvoice(unitPrice int64) invoiceResponse {
	s.t.Helper()
	resp := s.do(http.MethodPost, "/api/v1/invoices", s.token, map[string]interface{}{
		"client_id": s.client.ID,
		"items": []map[string]interface{}{
			{"description": "Consulting", "quantity": "1.5", "unit_price": unitPrice},
		},
		"tax_rate": "8.25",
	})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	return decode[invoiceResponse](s.t, resp)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOwnerAuth(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodGet, "/api/v1/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := NewOwnerToken("other-secret", 1, time.Hour)
	require.NoError(t, err)
	resp = s.do(http.MethodGet, "/api/v1/invoices", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired, err := NewOwnerToken(testSecret, 1, -time.Minute)
	require.NoError(t, err)
	resp = s.do(http.MethodGet, "/api/v1/invoices", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	named, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "andy"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	resp = s.do(http.MethodGet, "/api/v1/invoices", named, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/invoices", s.token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvoiceLifecycle(t *testing.T) {
	s := newTestServer(t)

	inv := s.createInvoice(10000)
	assert.Equal(t, "draft", inv.Status)
	assert.Equal(t, int64(15000), inv.Subtotal)
	assert.Equal(t, int64(1238), inv.TaxAmount)
	assert.Equal(t, int64(16238), inv.Total)
	assert.Equal(t, int64(16238), inv.BalanceDue)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "1.5", inv.Items[0].Quantity.String())

	base := fmt.Sprintf("/api/v1/invoices/%d", inv.ID)

	resp := s.do(http.MethodPatch, base, s.token, map[string]interface{}{"notes": "Thanks!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Thanks!", decode[invoiceResponse](t, resp).Notes)

	resp = s.do(http.MethodPost, base+"/send", s.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sent", decode[invoiceResponse](t, resp).Status)

	resp = s.do(http.MethodGet, base+"/reminders", s.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reminders := decode[[]reminderResponse](t, resp)
	assert.Len(t, reminders, 6)

	resp = s.do(http.MethodPatch, base, s.token, map[string]interface{}{"notes": "late edit"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "immutable", decode[errorBody](t, resp).Error.Kind)

	resp = s.do(http.MethodPost, base+"/payments", s.token, map[string]interface{}{"amount": 6238, "method": "card"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	receipt := decode[receiptResponse](t, resp)
	assert.Equal(t, "sent", receipt.Invoice.Status)
	assert.Equal(t, int64(10000), receipt.Invoice.BalanceDue)

	resp = s.do(http.MethodPost, base+"/payments", s.token, map[string]interface{}{"amount": 10000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	receipt = decode[receiptResponse](t, resp)
	assert.Equal(t, "paid", receipt.Invoice.Status)
	assert.Equal(t, int64(0), receipt.Invoice.BalanceDue)
	assert.Equal(t, "bank_transfer", receipt.Payment.Method)

	resp = s.do(http.MethodGet, base+"/payments", s.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]paymentResponse](t, resp), 2)

	resp = s.do(http.MethodGet, base+"/reminders", s.token, nil)
	for _, r := range decode[[]reminderResponse](t, resp) {
		assert.Equal(t, "cancelled", r.Status)
	}

	resp = s.do(http.MethodPost, base+"/status", s.token, map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", decode[errorBody](t, resp).Error.Kind)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	inv := s.createInvoice(10000)

	t.Run("not found", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/api/v1/invoices/999", s.token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "not_found", decode[errorBody](t, resp).Error.Kind)
	})

	t.Run("other owner sees nothing", func(t *testing.T) {
		other, err := NewOwnerToken(testSecret, 2, time.Hour)
		require.NoError(t, err)
		resp := s.do(http.MethodGet, fmt.Sprintf("/api/v1/invoices/%d", inv.ID), other, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("validation carries the field", func(t *testing.T) {
		resp := s.do(http.MethodPost, "/api/v1/invoices", s.token, map[string]interface{}{
			"client_id":       s.client.ID,
			"items":           []map[string]interface{}{{"description": "x", "quantity": "1", "unit_price": 100}},
			"discount_amount": 500,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		body := decode[errorBody](t, resp)
		assert.Equal(t, "validation", body.Error.Kind)
		assert.Equal(t, "discount_amount", body.Error.Field)
	})

	t.Run("bad date", func(t *testing.T) {
		resp := s.do(http.MethodPut, fmt.Sprintf("/api/v1/invoices/%d/due-date", inv.ID), s.token, map[string]string{"due_date": "next week"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "due_date", decode[errorBody](t, resp).Error.Field)
	})

	t.Run("unknown field", func(t *testing.T) {
		resp := s.do(http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/payments", inv.ID), s.token, map[string]interface{}{"amount": 1, "currency": "EUR"})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("payment on a draft", func(t *testing.T) {
		resp := s.do(http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/payments", inv.ID), s.token, map[string]interface{}{"amount": 100})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "invalid_transition", decode[errorBody](t, resp).Error.Kind)
	})

	t.Run("bad id", func(t *testing.T) {
		resp := s.do(http.MethodGet, "/api/v1/invoices/abc", s.token, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestListInvoicesFilters(t *testing.T) {
	s := newTestServer(t)
	first := s.createInvoice(10000)
	s.createInvoice(20000)

	resp := s.do(http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/send", first.ID), s.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/invoices", s.token, nil)
	assert.Len(t, decode[[]invoiceResponse](t, resp), 2)

	resp = s.do(http.MethodGet, "/api/v1/invoices?status=sent", s.token, nil)
	sent := decode[[]invoiceResponse](t, resp)
	require.Len(t, sent, 1)
	assert.Equal(t, first.ID, sent[0].ID)

	resp = s.do(http.MethodGet, "/api/v1/invoices?status=lost", s.token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDeleteDraft(t *testing.T) {
	s := newTestServer(t)
	inv := s.createInvoice(10000)
	path := fmt.Sprintf("/api/v1/invoices/%d", inv.ID)

	resp := s.do(http.MethodDelete, path, s.token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodGet, path, s.token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPortalMarkViewed(t *testing.T) {
	s := newTestServer(t)
	inv := s.createInvoice(10000)
	other := s.createInvoice(5000)
	resp := s.do(http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/send", inv.ID), s.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	path := fmt.Sprintf("/api/v1/portal/invoices/%d/viewed", inv.ID)

	resp = s.do(http.MethodPost, path, "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	wrong, err := s.portal.Issue(other.ID, time.Hour)
	require.NoError(t, err)
	resp = s.do(http.MethodPost, path, "", nil, PortalTokenHeader, wrong)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	token, err := s.portal.Issue(inv.ID, time.Hour)
	require.NoError(t, err)
	resp = s.do(http.MethodPost, path, "", nil, PortalTokenHeader, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "viewed", decode[map[string]string](t, resp)["status"])
}

func TestInternalRoutes(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodPost, "/internal/reminders/dispatch", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(http.MethodPost, "/internal/reminders/dispatch", "", nil, "X-Internal-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(http.MethodPost, "/internal/reminders/dispatch", "", nil, "X-Internal-API-Key", testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, service.DispatchResult{}, decode[service.DispatchResult](t, resp))

	resp = s.do(http.MethodPost, "/internal/invoices/sweep-overdue", "", nil, "X-Internal-API-Key", testAPIKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[map[string]int](t, resp)["marked"])
}

func TestInternalAuthRefusesWithoutKey(t *testing.T) {
	called := false
	h := InternalAuthMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, key := range []string{"", "anything"} {
		req := httptest.NewRequest(http.MethodPost, "/internal/reminders/dispatch", nil)
		if key != "" {
			req.Header.Set("X-Internal-API-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	assert.False(t, called)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createInvoice(10000)

	resp := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.True(t, strings.Contains(body, "billsink_invoices_created_total"))
	assert.True(t, strings.Contains(body, "billsink_http_requests_total"))
}
