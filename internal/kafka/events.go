package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
)

// Notification types published on the booking events topic.
const (
	TypeBookingCreated   = "booking_created"
	TypeBookingExpired   = "booking_expired"
	TypeBookingCancelled = "booking_cancelled"
	TypeTicketsIssued    = "tickets_issued"
	TypePaymentFailed    = "payment_failed"
)

type BookingEvent struct {
	Type        string     `json:"type"`
	BookingID   string     `json:"booking_id"`
	EventID     string     `json:"event_id"`
	UserID      string     `json:"user_id"`
	Quantity    int        `json:"quantity"`
	TotalCents  int64      `json:"total_cents"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	TicketCodes []string   `json:"ticket_codes,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// NewBookingEvent snapshots a booking into a notification of the given type.
func NewBookingEvent(eventType string, b *domain.Booking) BookingEvent {
	return BookingEvent{
		Type:       eventType,
		BookingID:  b.ID,
		EventID:    b.EventID,
		UserID:     b.UserID,
		Quantity:   b.Quantity,
		TotalCents: b.TotalCents,
		Status:     string(b.Status),
		Reason:     b.CancellationReason,
		ExpiresAt:  b.ExpiresAt,
		OccurredAt: time.Now().UTC(),
	}
}

func DecodeBookingEvent(data []byte) (BookingEvent, error) {
	var event BookingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return BookingEvent{}, fmt.Errorf("decode booking event: %w", err)
	}
	if event.Type == "" || event.BookingID == "" {
		return BookingEvent{}, fmt.Errorf("decode booking event: missing type or booking id")
	}
	return event, nil
}
