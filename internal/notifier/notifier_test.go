package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() TemplateData {
	return TemplateData{
		ClientName:    "Acme & Co",
		InvoiceNumber: "INV-2026-004",
		Total:         "$500.00",
		AmountDue:     "$250.00",
		DueDate:       "2026-03-01",
		DaysOverdue:   20,
		SenderName:    "Andy",
	}
}

func TestRendererRendersEveryTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for _, name := range templateNames {
		subject, body, err := r.Render(name, sampleData())
		require.NoError(t, err, name)
		assert.Contains(t, subject, "INV-2026-004", name)
		assert.Contains(t, body, "Acme &amp; Co", name)
		assert.Contains(t, body, "$250.00", name)
	}
}

func TestRendererUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = r.Render("nope", sampleData())
	assert.Error(t, err)
}

func TestRendererSubjectIsPlainText(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := sampleData()
	data.SenderName = "Smith & Sons"
	subject, _, err := r.Render(TemplateInvoiceSent, data)
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-2026-004 from Smith & Sons", subject)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())

	res, err := n.Send(context.Background(), Message{To: "a@example.com", Subject: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.ID)

	res, err = n.Send(context.Background(), Message{Subject: "hi"})
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.False(t, res.Success)
}

func TestResendNotifierPostsEmail(t *testing.T) {
	var got resendRequest
	var idempotency, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		idempotency = r.Header.Get("Idempotency-Key")
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"em_123"}`))
	}))
	defer server.Close()

	n := NewResendNotifier(ResendConfig{
		APIKey:  "re_test",
		BaseURL: server.URL + "/",
		From:    "billing@example.com",
		ReplyTo: "andy@example.com",
	}, zerolog.Nop())

	res, err := n.Send(context.Background(), Message{
		To:             "client@example.com",
		Subject:        "Invoice",
		HTML:           "<p>hi</p>",
		Tags:           map[string]string{"type": "due_today", "invoice": "7"},
		IdempotencyKey: "reminder-7",
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, ID: "em_123"}, res)
	assert.Equal(t, "reminder-7", idempotency)
	assert.Equal(t, "Bearer re_test", auth)
	assert.Equal(t, []string{"client@example.com"}, got.To)
	assert.Equal(t, "andy@example.com", got.ReplyTo)
	assert.Equal(t, []resendTag{{Name: "invoice", Value: "7"}, {Name: "type", Value: "due_today"}}, got.Tags)
}

func TestResendNotifierReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from address"}`))
	}))
	defer server.Close()

	n := NewResendNotifier(ResendConfig{BaseURL: server.URL, BreakerMaxFailures: 2, BreakerCooldown: time.Minute}, zerolog.Nop())

	res, err := n.Send(context.Background(), Message{To: "client@example.com"})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid from address")

	_, _ = n.Send(context.Background(), Message{To: "client@example.com"})
	_, err = n.Send(context.Background(), Message{To: "client@example.com"})
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
