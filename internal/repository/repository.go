package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
)

// Store is the relational store. WithTx runs fn inside one serializable
// transaction; fn's error rolls everything back. fn may be re-run when the
// database reports a serialization conflict, so it must not have side
// effects outside tx.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reader covers non-locking reads outside any transaction.
type Reader interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	ListBookingsByUser(ctx context.Context, userID string, limit int) ([]domain.Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
	ListTicketsByBooking(ctx context.Context, bookingID string) ([]domain.Ticket, error)
}

type Tx interface {
	EventTx
	BookingTx
	TicketTx
	PaymentTx
}

type EventTx interface {
	// GetEventForUpdate reads the event holding an exclusive row lock until
	// the transaction ends.
	GetEventForUpdate(ctx context.Context, id string) (*domain.Event, error)
	DecrementAvailable(ctx context.Context, eventID string, qty int) error
	IncrementAvailable(ctx context.Context, eventID string, qty int) error
	IncrementSold(ctx context.Context, eventID string, qty int) error
}

type BookingTx interface {
	CreateBooking(ctx context.Context, b *domain.Booking) error
	GetBookingForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	MarkBookingConfirmed(ctx context.Context, id, paymentRef string, at time.Time) error
	// MarkBookingTerminated moves a booking to cancelled or failed and clears
	// its expiry.
	MarkBookingTerminated(ctx context.Context, id string, status domain.BookingStatus, reason string, at time.Time) error
}

type TicketTx interface {
	TicketCodeExists(ctx context.Context, code string) (bool, error)
	CreateTickets(ctx context.Context, tickets []domain.Ticket) error
}

type PaymentTx interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPaymentByNotificationID(ctx context.Context, notificationID string) (*domain.Payment, error)
	GetPaymentByIntentForUpdate(ctx context.Context, intentID string) (*domain.Payment, error)
	GetOpenPaymentForBooking(ctx context.Context, bookingID string) (*domain.Payment, error)
	MarkPaymentSucceeded(ctx context.Context, id, notificationID string, at time.Time) error
	MarkPaymentFailed(ctx context.Context, id, notificationID, message string, at time.Time) error
}
