package api

import (
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/Domenick1991/ticketbooking/internal/pricing"
)

// Money is rendered in major units with two decimals, e.g. "115.00".
func money(cents int64) string {
	return pricing.Major(cents).StringFixed(2)
}

func timestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

type eventResponse struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Venue            string `json:"venue"`
	EventDate        string `json:"event_date"`
	TotalTickets     int    `json:"total_tickets"`
	AvailableTickets int    `json:"available_tickets"`
	SoldTickets      int    `json:"sold_tickets"`
	TicketPrice      string `json:"ticket_price"`
	IsActive         bool   `json:"is_active"`
	IsCancelled      bool   `json:"is_cancelled"`
}

func newEventResponse(e *domain.Event) eventResponse {
	return eventResponse{
		ID:               e.ID,
		Title:            e.Title,
		Venue:            e.Venue,
		EventDate:        e.EventDate.UTC().Format(time.RFC3339),
		TotalTickets:     e.TotalTickets,
		AvailableTickets: e.AvailableTickets,
		SoldTickets:      e.SoldTickets,
		TicketPrice:      money(e.TicketPriceCents),
		IsActive:         e.IsActive,
		IsCancelled:      e.IsCancelled,
	}
}

type ticketResponse struct {
	ID         string `json:"id"`
	TicketCode string `json:"ticket_code"`
	Status     string `json:"status"`
}

type bookingResponse struct {
	ID                 string           `json:"id"`
	EventID            string           `json:"event_id"`
	UserID             string           `json:"user_id"`
	Quantity           int              `json:"quantity"`
	UnitPrice          string           `json:"unit_price"`
	Subtotal           string           `json:"subtotal"`
	ServiceFee         string           `json:"service_fee"`
	Total              string           `json:"total"`
	Status             string           `json:"status"`
	ExpiresAt          *string          `json:"expires_at,omitempty"`
	ConfirmedAt        *string          `json:"confirmed_at,omitempty"`
	CancelledAt        *string          `json:"cancelled_at,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	PaymentReference   string           `json:"payment_reference,omitempty"`
	Tickets            []ticketResponse `json:"tickets,omitempty"`
}

func newBookingResponse(b *domain.Booking, tickets []domain.Ticket) bookingResponse {
	resp := bookingResponse{
		ID:                 b.ID,
		EventID:            b.EventID,
		UserID:             b.UserID,
		Quantity:           b.Quantity,
		UnitPrice:          money(b.UnitPriceCents),
		Subtotal:           money(b.SubtotalCents),
		ServiceFee:         money(b.ServiceFeeCents),
		Total:              money(b.TotalCents),
		Status:             string(b.Status),
		ExpiresAt:          timestamp(b.ExpiresAt),
		ConfirmedAt:        timestamp(b.ConfirmedAt),
		CancelledAt:        timestamp(b.CancelledAt),
		CancellationReason: b.CancellationReason,
		PaymentReference:   b.PaymentReference,
	}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, ticketResponse{ID: t.ID, TicketCode: t.TicketCode, Status: string(t.Status)})
	}
	return resp
}

type paymentIntentResponse struct {
	BookingID       string `json:"booking_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}
