package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment tracks one gateway payment intent for a booking. NotificationID
// is the gateway's event id of the notification that settled it and is
// unique across all payments.
type Payment struct {
	ID              string
	BookingID       string
	PaymentIntentID string
	NotificationID  string
	AmountCents     int64
	Currency        string
	ClientSecret    string
	Status          PaymentStatus
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p *Payment) Settled() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusFailed
}
