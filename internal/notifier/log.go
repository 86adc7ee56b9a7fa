package notifier

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogNotifier writes messages to the logger instead of sending them
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) (Result, error) {
	if msg.To == "" {
		return failed(ErrNoRecipient)
	}
	id := "log-" + uuid.NewString()
	n.logger.Info().
		Str("email_id", id).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("idempotency_key", msg.IdempotencyKey).
		Interface("tags", msg.Tags).
		Msg("email not sent: log provider")
	return Result{Success: true, ID: id}, nil
}
