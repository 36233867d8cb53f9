package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, event_id, user_id, quantity, unit_price_cents, subtotal_cents, service_fee_cents, total_cents,
	status, expires_at, confirmed_at, cancelled_at, cancellation_reason, payment_reference, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Quantity, &b.UnitPriceCents, &b.SubtotalCents, &b.ServiceFeeCents, &b.TotalCents,
		&b.Status, &b.ExpiresAt, &b.ConfirmedAt, &b.CancelledAt, &b.CancellationReason, &b.PaymentReference, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (s *PGStore) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
}

func (s *PGStore) ListBookingsByUser(ctx context.Context, userID string, limit int) ([]domain.Booking, error) {
	rows, err := s.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PGStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	rows, err := s.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND expires_at < $2 ORDER BY expires_at LIMIT $3`, domain.BookingStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (t *pgTx) CreateBooking(ctx context.Context, b *domain.Booking) error {
	return t.tx.QueryRow(ctx, `INSERT INTO bookings (id, event_id, user_id, quantity, unit_price_cents, subtotal_cents,
			service_fee_cents, total_cents, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		b.ID, b.EventID, b.UserID, b.Quantity, b.UnitPriceCents, b.SubtotalCents, b.ServiceFeeCents, b.TotalCents, b.Status, b.ExpiresAt).
		Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (t *pgTx) GetBookingForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) MarkBookingConfirmed(ctx context.Context, id, paymentRef string, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE bookings SET status=$2, confirmed_at=$3, expires_at=NULL, payment_reference=$4, updated_at=now()
		WHERE id=$1 AND status=$5`, id, domain.BookingStatusConfirmed, at, paymentRef, domain.BookingStatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}

func (t *pgTx) MarkBookingTerminated(ctx context.Context, id string, status domain.BookingStatus, reason string, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE bookings SET status=$2, cancellation_reason=$3, cancelled_at=$4, expires_at=NULL, updated_at=now()
		WHERE id=$1 AND status=$5`, id, status, reason, at, domain.BookingStatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}
