package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ResendConfig configures the Resend HTTP provider
type ResendConfig struct {
	APIKey             string
	BaseURL            string
	From               string
	ReplyTo            string
	Timeout            time.Duration
	RatePerSecond      float64
	Burst              int
	BreakerMaxFailures uint32
	BreakerCooldown    time.Duration
}

// ResendNotifier posts emails to the Resend API behind a rate limiter and a
// circuit breaker.
type ResendNotifier struct {
	cfg        ResendConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html"`
	ReplyTo string      `json:"reply_to,omitempty"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func NewResendNotifier(cfg ResendConfig, logger zerolog.Logger) *ResendNotifier {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	return &ResendNotifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "resend",
			Timeout: cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn().
					Str("name", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		}),
	}
}

func (n *ResendNotifier) Send(ctx context.Context, msg Message) (Result, error) {
	if msg.To == "" {
		return failed(ErrNoRecipient)
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return failed(fmt.Errorf("rate limiter: %w", err))
	}

	out, err := n.breaker.Execute(func() (interface{}, error) {
		return n.post(ctx, msg)
	})
	if err != nil {
		return failed(err)
	}
	id := out.(string)
	return Result{Success: true, ID: id}, nil
}

func (n *ResendNotifier) post(ctx context.Context, msg Message) (string, error) {
	replyTo := msg.ReplyTo
	if replyTo == "" {
		replyTo = n.cfg.ReplyTo
	}
	body := resendRequest{
		From:    n.cfg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		ReplyTo: replyTo,
	}
	keys := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		body.Tags = append(body.Tags, resendTag{Name: k, Value: msg.Tags[k]})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.BaseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if msg.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", msg.IdempotencyKey)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	var parsed resendResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 400 {
		if parsed.Message != "" {
			return "", fmt.Errorf("resend returned status %d: %s", resp.StatusCode, parsed.Message)
		}
		return "", fmt.Errorf("resend returned status %d", resp.StatusCode)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("resend response has no email id")
	}
	return parsed.ID, nil
}
