package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match with errors.Is; the concrete errors below wrap
// the kind they belong to.
var (
	ErrNotFound              = errors.New("not found")
	ErrUnavailable           = errors.New("unavailable")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrLockBusy              = errors.New("resource is locked by another request, retry later")
	ErrAlreadyProcessed      = errors.New("booking has already been processed")
	ErrExpired               = errors.New("booking reservation has expired")
	ErrForbidden             = errors.New("forbidden")
	ErrSignatureInvalid      = errors.New("notification signature is invalid")
	ErrAmountMismatch        = errors.New("payment amount does not match booking total")
	ErrInvalidQuantity       = errors.New("quantity must be between 1 and 10")
)

var (
	ErrEventNotFound    = fmt.Errorf("event %w", ErrNotFound)
	ErrBookingNotFound  = fmt.Errorf("booking %w", ErrNotFound)
	ErrPaymentNotFound  = fmt.Errorf("payment %w", ErrNotFound)
	ErrEventUnavailable = fmt.Errorf("event is %w", ErrUnavailable)
	ErrEventEnded       = fmt.Errorf("event has already ended: %w", ErrUnavailable)
)

// InsufficientInventory builds the user-facing error carrying both counts.
func InsufficientInventory(available, requested int) error {
	return fmt.Errorf("%w: only %d tickets available, %d requested", ErrInsufficientInventory, available, requested)
}
