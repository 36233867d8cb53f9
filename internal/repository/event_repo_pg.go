package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, title, venue, event_date, total_tickets, available_tickets, sold_tickets,
	ticket_price_cents, is_active, is_cancelled, created_at, updated_at`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	if err := row.Scan(&e.ID, &e.Title, &e.Venue, &e.EventDate, &e.TotalTickets, &e.AvailableTickets, &e.SoldTickets,
		&e.TicketPriceCents, &e.IsActive, &e.IsCancelled, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *PGStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	return scanEvent(s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1`, id))
}

func (s *PGStore) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.db.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE is_active AND NOT is_cancelled ORDER BY event_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (t *pgTx) GetEventForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return scanEvent(t.tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) DecrementAvailable(ctx context.Context, eventID string, qty int) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE events SET available_tickets = available_tickets - $2, updated_at = now()
		WHERE id=$1 AND available_tickets >= $2`, eventID, qty)
	if err != nil {
		return fmt.Errorf("decrement available tickets: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: decrement of %d rejected", domain.ErrInsufficientInventory, qty)
	}
	return nil
}

func (t *pgTx) IncrementAvailable(ctx context.Context, eventID string, qty int) error {
	return t.adjust(ctx, `UPDATE events SET available_tickets = available_tickets + $2, updated_at = now() WHERE id=$1`, eventID, qty)
}

func (t *pgTx) IncrementSold(ctx context.Context, eventID string, qty int) error {
	return t.adjust(ctx, `UPDATE events SET sold_tickets = sold_tickets + $2, updated_at = now() WHERE id=$1`, eventID, qty)
}

func (t *pgTx) adjust(ctx context.Context, sql, eventID string, qty int) error {
	cmd, err := t.tx.Exec(ctx, sql, eventID, qty)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
