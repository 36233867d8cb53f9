package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookingEvent(t *testing.T) {
	expiresAt := time.Now().Add(10 * time.Minute)
	b := &domain.Booking{
		ID:         "b-1",
		EventID:    "e-1",
		UserID:     "u-1",
		Quantity:   2,
		TotalCents: 11500,
		Status:     domain.BookingStatusPending,
		ExpiresAt:  &expiresAt,
	}

	event := NewBookingEvent(TypeBookingCreated, b)

	assert.Equal(t, TypeBookingCreated, event.Type)
	assert.Equal(t, "b-1", event.BookingID)
	assert.Equal(t, "e-1", event.EventID)
	assert.Equal(t, 2, event.Quantity)
	assert.Equal(t, int64(11500), event.TotalCents)
	assert.Equal(t, "pending", event.Status)
	assert.Equal(t, &expiresAt, event.ExpiresAt)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestDecodeBookingEvent(t *testing.T) {
	data, err := json.Marshal(BookingEvent{Type: TypeTicketsIssued, BookingID: "b-1", TicketCodes: []string{"TKT-2026-ABCDEFGH"}})
	require.NoError(t, err)

	event, err := DecodeBookingEvent(data)
	require.NoError(t, err)
	assert.Equal(t, TypeTicketsIssued, event.Type)
	assert.Equal(t, []string{"TKT-2026-ABCDEFGH"}, event.TicketCodes)

	_, err = DecodeBookingEvent([]byte(`{"type":"booking_created"}`))
	assert.Error(t, err)

	_, err = DecodeBookingEvent([]byte(`not json`))
	assert.Error(t, err)
}
