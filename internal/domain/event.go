package domain

import "time"

type Event struct {
	ID               string
	Title            string
	Venue            string
	EventDate        time.Time
	TotalTickets     int
	AvailableTickets int
	SoldTickets      int
	TicketPriceCents int64
	IsActive         bool
	IsCancelled      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Bookable reports whether new reservations may be taken at now.
func (e *Event) Bookable(now time.Time) error {
	if !e.IsActive || e.IsCancelled {
		return ErrEventUnavailable
	}
	if e.EventDate.Before(now) {
		return ErrEventEnded
	}
	return nil
}
