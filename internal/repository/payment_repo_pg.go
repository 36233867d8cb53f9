package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, booking_id, payment_intent_id, COALESCE(notification_id, ''), amount_cents, currency,
	client_secret, status, error_message, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	if err := row.Scan(&p.ID, &p.BookingID, &p.PaymentIntentID, &p.NotificationID, &p.AmountCents, &p.Currency,
		&p.ClientSecret, &p.Status, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) CreatePayment(ctx context.Context, p *domain.Payment) error {
	return t.tx.QueryRow(ctx, `INSERT INTO payments (id, booking_id, payment_intent_id, amount_cents, currency, client_secret, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.BookingID, p.PaymentIntentID, p.AmountCents, p.Currency, p.ClientSecret, p.Status).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (t *pgTx) GetPaymentByNotificationID(ctx context.Context, notificationID string) (*domain.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE notification_id=$1`, notificationID))
}

func (t *pgTx) GetPaymentByIntentForUpdate(ctx context.Context, intentID string) (*domain.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_intent_id=$1 FOR UPDATE`, intentID))
}

func (t *pgTx) GetOpenPaymentForBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE booking_id=$1 AND status=$2 ORDER BY created_at DESC LIMIT 1`, bookingID, domain.PaymentStatusPending))
}

func (t *pgTx) MarkPaymentSucceeded(ctx context.Context, id, notificationID string, at time.Time) error {
	return t.settlePayment(ctx, id, domain.PaymentStatusSucceeded, notificationID, "", at)
}

func (t *pgTx) MarkPaymentFailed(ctx context.Context, id, notificationID, message string, at time.Time) error {
	return t.settlePayment(ctx, id, domain.PaymentStatusFailed, notificationID, message, at)
}

func (t *pgTx) settlePayment(ctx context.Context, id string, status domain.PaymentStatus, notificationID, message string, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE payments SET status=$2, notification_id=$3, error_message=$4, updated_at=$5
		WHERE id=$1 AND status=$6`, id, status, notificationID, message, at, domain.PaymentStatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}
