// Package notifier delivers rendered emails. The core only depends on the
// Notifier interface; providers are picked from config at startup.
package notifier

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned when a message has no To address
var ErrNoRecipient = errors.New("message has no recipient")

// Message is one outbound email
type Message struct {
	To             string
	Subject        string
	HTML           string
	ReplyTo        string
	Tags           map[string]string
	IdempotencyKey string
}

// Result is the provider's answer. A failed send returns a non-nil error and
// a Result with Success false and Error set.
type Result struct {
	Success bool
	ID      string
	Error   string
}

// Notifier sends messages
type Notifier interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

func failed(err error) (Result, error) {
	return Result{Success: false, Error: err.Error()}, err
}
