package queue

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogNotifier writes notifications to the log instead of delivering them. It stands in for the messaging
// gateway when rabbitmq.mock is set.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, phone, text string) error {
	log.Info().Str("phone", phone).Str("text", text).Msg("notification")
	return nil
}
