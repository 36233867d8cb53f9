package domain

import "time"

type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
)

type Ticket struct {
	ID         string
	BookingID  string
	EventID    string
	UserID     string
	TicketCode string
	Status     TicketStatus
	CreatedAt  time.Time
}
