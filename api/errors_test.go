package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{err: domain.ErrBookingNotFound, want: http.StatusNotFound},
		{err: domain.ErrPaymentNotFound, want: http.StatusNotFound},
		{err: domain.ErrForbidden, want: http.StatusForbidden},
		{err: domain.ErrLockBusy, want: http.StatusConflict},
		{err: domain.ErrEventUnavailable, want: http.StatusBadRequest},
		{err: domain.InsufficientInventory(0, 1), want: http.StatusBadRequest},
		{err: fmt.Errorf("confirm: %w", domain.ErrAlreadyProcessed), want: http.StatusBadRequest},
		{err: domain.ErrExpired, want: http.StatusBadRequest},
		{err: domain.ErrInvalidQuantity, want: http.StatusBadRequest},
		{err: assert.AnError, want: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}
