package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusFailed    BookingStatus = "failed"
)

// Cancellation reasons recorded on terminal bookings.
const (
	ReasonExpired         = "expired"
	ReasonCancelledByUser = "cancelled_by_user"
	ReasonPaymentFailed   = "payment_failed"
)

// Expiry sources, recorded in metrics.
const (
	ExpirySourceTask  = "task"
	ExpirySourceSweep = "sweep"
)

type Booking struct {
	ID                 string
	EventID            string
	UserID             string
	Quantity           int
	UnitPriceCents     int64
	SubtotalCents      int64
	ServiceFeeCents    int64
	TotalCents         int64
	Status             BookingStatus
	ExpiresAt          *time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	PaymentReference   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

// IsExpired reports whether a pending booking's hold window has passed.
func (b *Booking) IsExpired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// OwnedBy reports whether the caller may read or act on the booking.
func (b *Booking) OwnedBy(userID string) bool {
	return b.UserID == userID
}
