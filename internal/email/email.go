package email

import (
	"context"

	"github.com/skylane/booking/internal/kafka"
	"go.uber.org/zap"
)

// Sender delivers notification events to the recipient. Delivery is
// at-least-once upstream, so sending the same event twice must be harmless.
type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.NotificationEvent) error {
	// TODO: wire a real SMTP relay; for now delivery is a structured log line.
	s.log.Info("send email",
		zap.String("recipient", event.RecipientEmail),
		zap.String("subject", event.Subject),
		zap.String("booking_id", event.BookingID),
	)
	return nil
}
