package tickets

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/Domenick1991/ticketbooking/internal/metrics"
	"github.com/Domenick1991/ticketbooking/internal/repository"
	"github.com/google/uuid"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	defaultCodeAttempts = 10
)

var ErrCodeSpaceExhausted = errors.New("could not generate a unique ticket code")

type IssuerUseCase interface {
	Confirm(ctx context.Context, bookingID, paymentReference string) (*ConfirmedBooking, error)
}

type ConfirmedBooking struct {
	Booking *domain.Booking
	Tickets []domain.Ticket
}

// CodeGenerator returns a candidate ticket code for the given year.
type CodeGenerator func(year int) (string, error)

type Issuer struct {
	store        repository.Store
	now          func() time.Time
	generateCode CodeGenerator
	codeAttempts int
	logger       *slog.Logger
}

type Option func(*Issuer)

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func WithCodeGenerator(gen CodeGenerator, attempts int) Option {
	return func(i *Issuer) {
		i.generateCode = gen
		if attempts > 0 {
			i.codeAttempts = attempts
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func NewIssuer(store repository.Store, opts ...Option) *Issuer {
	i := &Issuer{
		store:        store,
		now:          time.Now,
		generateCode: RandomCode,
		codeAttempts: defaultCodeAttempts,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// RandomCode builds TKT-<year>-XXXXXXXX from crypto/rand.
func RandomCode(year int) (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("TKT-%d-%s", year, buf), nil
}

// Confirm moves a pending booking to confirmed and issues one ticket per
// unit of quantity, all in one transaction.
func (i *Issuer) Confirm(ctx context.Context, bookingID, paymentReference string) (*ConfirmedBooking, error) {
	var result *ConfirmedBooking
	err := i.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		result = nil

		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.IsPending() {
			return fmt.Errorf("%w: booking %s is %s", domain.ErrAlreadyProcessed, b.ID, b.Status)
		}
		now := i.now()
		if b.IsExpired(now) {
			return domain.ErrExpired
		}

		if err := tx.MarkBookingConfirmed(ctx, b.ID, paymentReference, now); err != nil {
			return err
		}

		issued := make([]domain.Ticket, 0, b.Quantity)
		seen := make(map[string]struct{}, b.Quantity)
		for n := 0; n < b.Quantity; n++ {
			code, err := i.uniqueCode(ctx, tx, now.Year(), seen)
			if err != nil {
				return err
			}
			issued = append(issued, domain.Ticket{
				ID:         uuid.NewString(),
				BookingID:  b.ID,
				EventID:    b.EventID,
				UserID:     b.UserID,
				TicketCode: code,
				Status:     domain.TicketStatusValid,
			})
		}
		if err := tx.CreateTickets(ctx, issued); err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		if err := tx.IncrementSold(ctx, b.EventID, b.Quantity); err != nil {
			return err
		}

		b.Status = domain.BookingStatusConfirmed
		b.ConfirmedAt = &now
		b.ExpiresAt = nil
		b.PaymentReference = paymentReference
		result = &ConfirmedBooking{Booking: b, Tickets: issued}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TicketsIssued.Add(float64(len(result.Tickets)))
	i.logger.InfoContext(ctx, "booking confirmed",
		"booking_id", bookingID,
		"event_id", result.Booking.EventID,
		"tickets", len(result.Tickets),
	)
	return result, nil
}

func (i *Issuer) uniqueCode(ctx context.Context, tx repository.TicketTx, year int, seen map[string]struct{}) (string, error) {
	for attempt := 0; attempt < i.codeAttempts; attempt++ {
		code, err := i.generateCode(year)
		if err != nil {
			return "", fmt.Errorf("generate ticket code: %w", err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		exists, err := tx.TicketCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			seen[code] = struct{}{}
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

var _ IssuerUseCase = (*Issuer)(nil)
