package email

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Domenick1991/ticketbooking/internal/kafka"
)

// Sender stands in for the outbound mail service. It renders the message a
// customer would receive for each booking notification and logs it.
type Sender struct {
	logger *slog.Logger
}

func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject := Subject(event)
	if subject == "" {
		s.logger.DebugContext(ctx, "no email for notification", "type", event.Type, "booking_id", event.BookingID)
		return nil
	}
	s.logger.InfoContext(ctx, "send email",
		"user_id", event.UserID,
		"booking_id", event.BookingID,
		"subject", subject,
		"tickets", strings.Join(event.TicketCodes, ","),
	)
	return nil
}

// Subject returns the mail subject for a notification type, or "" when the
// customer is not mailed about it.
func Subject(event kafka.BookingEvent) string {
	switch event.Type {
	case kafka.TypeBookingCreated:
		return "Your tickets are on hold"
	case kafka.TypeTicketsIssued:
		return "Your tickets are confirmed"
	case kafka.TypePaymentFailed:
		return "Your payment did not go through"
	case kafka.TypeBookingExpired:
		return "Your reservation has expired"
	case kafka.TypeBookingCancelled:
		return "Your booking was cancelled"
	default:
		return ""
	}
}
