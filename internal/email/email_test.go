package email

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/Domenick1991/ticketbooking/internal/kafka"
	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "Your tickets are confirmed", Subject(kafka.BookingEvent{Type: kafka.TypeTicketsIssued}))
	assert.Equal(t, "Your reservation has expired", Subject(kafka.BookingEvent{Type: kafka.TypeBookingExpired}))
	assert.Empty(t, Subject(kafka.BookingEvent{Type: "something_else"}))
}

func TestSenderSend(t *testing.T) {
	s := NewSender(slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := s.Send(context.Background(), kafka.BookingEvent{Type: kafka.TypeTicketsIssued, BookingID: "b-1", TicketCodes: []string{"TKT-2026-AAAAAAAA"}})
	assert.NoError(t, err)

	err = s.Send(context.Background(), kafka.BookingEvent{Type: "unknown", BookingID: "b-1"})
	assert.NoError(t, err)
}
