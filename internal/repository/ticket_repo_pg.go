package repository

import (
	"context"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *PGStore) ListTicketsByBooking(ctx context.Context, bookingID string) ([]domain.Ticket, error) {
	rows, err := s.db.Query(ctx, `SELECT id, booking_id, event_id, user_id, ticket_code, status, created_at
		FROM tickets WHERE booking_id=$1 ORDER BY ticket_code`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0)
	for rows.Next() {
		var tk domain.Ticket
		if err := rows.Scan(&tk.ID, &tk.BookingID, &tk.EventID, &tk.UserID, &tk.TicketCode, &tk.Status, &tk.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, tk)
	}
	return tickets, rows.Err()
}

func (t *pgTx) TicketCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE ticket_code=$1)`, code).Scan(&exists)
	return exists, err
}

func (t *pgTx) CreateTickets(ctx context.Context, tickets []domain.Ticket) error {
	batch := &pgx.Batch{}
	for i := range tickets {
		batch.Queue(`INSERT INTO tickets (id, booking_id, event_id, user_id, ticket_code, status)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
			tickets[i].ID, tickets[i].BookingID, tickets[i].EventID, tickets[i].UserID, tickets[i].TicketCode, tickets[i].Status).
			QueryRow(func(row pgx.Row) error {
				return row.Scan(&tickets[i].CreatedAt)
			})
	}
	return t.tx.SendBatch(ctx, batch).Close()
}
