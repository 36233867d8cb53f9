// Package memstore is an in-memory repository.Store. Transactions are fully
// serialized and roll back on error or panic, which makes it a strict
// stand-in for the Postgres store in tests and local runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/Domenick1991/ticketbooking/internal/repository"
)

type Store struct {
	mu       sync.Mutex
	events   map[string]domain.Event
	bookings map[string]domain.Booking
	tickets  map[string]domain.Ticket
	payments map[string]domain.Payment
}

func New() *Store {
	return &Store{
		events:   make(map[string]domain.Event),
		bookings: make(map[string]domain.Booking),
		tickets:  make(map[string]domain.Ticket),
		payments: make(map[string]domain.Payment),
	}
}

type snapshot struct {
	events   map[string]domain.Event
	bookings map[string]domain.Booking
	tickets  map[string]domain.Ticket
	payments map[string]domain.Payment
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		events:   cloneMap(s.events),
		bookings: cloneMap(s.bookings),
		tickets:  cloneMap(s.tickets),
		payments: cloneMap(s.payments),
	}
}

func (s *Store) restore(snap snapshot) {
	s.events = snap.events
	s.bookings = snap.bookings
	s.tickets = snap.tickets
	s.payments = snap.payments
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	committed := false
	defer func() {
		if !committed {
			s.restore(snap)
		}
	}()

	if err := fn(ctx, &tx{s: s}); err != nil {
		return err
	}
	committed = true
	return nil
}

// AddEvent inserts or replaces an event.
func (s *Store) AddEvent(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
		e.UpdatedAt = e.CreatedAt
	}
	s.events[e.ID] = e
}

// Payments returns all payments, oldest first.
func (s *Store) Payments() []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Tickets returns every ticket across all bookings.
func (s *Store) Tickets() []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketCode < out[j].TicketCode })
	return out
}

// PutBooking overwrites a booking as-is.
func (s *Store) PutBooking(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

func (s *Store) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return &e, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, 0, len(s.events))
	for _, e := range s.events {
		if e.IsActive && !e.IsCancelled {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.Before(out[j].EventDate) })
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

func (s *Store) ListBookingsByUser(ctx context.Context, userID string, limit int) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if b.Status == domain.BookingStatusPending && b.ExpiresAt != nil && b.ExpiresAt.Before(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListTicketsByBooking(ctx context.Context, bookingID string) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Ticket, 0)
	for _, t := range s.tickets {
		if t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketCode < out[j].TicketCode })
	return out, nil
}

// tx runs with Store.mu held.
type tx struct {
	s *Store
}

func (t *tx) GetEventForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	e, ok := t.s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return &e, nil
}

func (t *tx) DecrementAvailable(ctx context.Context, eventID string, qty int) error {
	e, ok := t.s.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if e.AvailableTickets < qty {
		return fmt.Errorf("%w: decrement of %d rejected", domain.ErrInsufficientInventory, qty)
	}
	e.AvailableTickets -= qty
	e.UpdatedAt = time.Now()
	t.s.events[eventID] = e
	return nil
}

func (t *tx) IncrementAvailable(ctx context.Context, eventID string, qty int) error {
	e, ok := t.s.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	e.AvailableTickets += qty
	e.UpdatedAt = time.Now()
	t.s.events[eventID] = e
	return nil
}

func (t *tx) IncrementSold(ctx context.Context, eventID string, qty int) error {
	e, ok := t.s.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	e.SoldTickets += qty
	e.UpdatedAt = time.Now()
	t.s.events[eventID] = e
	return nil
}

func (t *tx) CreateBooking(ctx context.Context, b *domain.Booking) error {
	if _, ok := t.s.events[b.EventID]; !ok {
		return domain.ErrEventNotFound
	}
	if _, exists := t.s.bookings[b.ID]; exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	t.s.bookings[b.ID] = *b
	return nil
}

func (t *tx) GetBookingForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	b, ok := t.s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

func (t *tx) MarkBookingConfirmed(ctx context.Context, id, paymentRef string, at time.Time) error {
	b, ok := t.s.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if b.Status != domain.BookingStatusPending {
		return domain.ErrAlreadyProcessed
	}
	b.Status = domain.BookingStatusConfirmed
	b.ConfirmedAt = &at
	b.ExpiresAt = nil
	b.PaymentReference = paymentRef
	b.UpdatedAt = time.Now()
	t.s.bookings[id] = b
	return nil
}

func (t *tx) MarkBookingTerminated(ctx context.Context, id string, status domain.BookingStatus, reason string, at time.Time) error {
	b, ok := t.s.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if b.Status != domain.BookingStatusPending {
		return domain.ErrAlreadyProcessed
	}
	b.Status = status
	b.CancellationReason = reason
	b.CancelledAt = &at
	b.ExpiresAt = nil
	b.UpdatedAt = time.Now()
	t.s.bookings[id] = b
	return nil
}

func (t *tx) TicketCodeExists(ctx context.Context, code string) (bool, error) {
	for _, tk := range t.s.tickets {
		if tk.TicketCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) CreateTickets(ctx context.Context, tickets []domain.Ticket) error {
	now := time.Now()
	for i := range tickets {
		exists, _ := t.TicketCodeExists(ctx, tickets[i].TicketCode)
		if exists {
			return fmt.Errorf("duplicate ticket code %s", tickets[i].TicketCode)
		}
		tickets[i].CreatedAt = now
		t.s.tickets[tickets[i].ID] = tickets[i]
	}
	return nil
}

func (t *tx) CreatePayment(ctx context.Context, p *domain.Payment) error {
	for _, existing := range t.s.payments {
		if existing.PaymentIntentID == p.PaymentIntentID {
			return fmt.Errorf("duplicate payment intent %s", p.PaymentIntentID)
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	t.s.payments[p.ID] = *p
	return nil
}

func (t *tx) GetPaymentByNotificationID(ctx context.Context, notificationID string) (*domain.Payment, error) {
	for _, p := range t.s.payments {
		if p.NotificationID != "" && p.NotificationID == notificationID {
			return &p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (t *tx) GetPaymentByIntentForUpdate(ctx context.Context, intentID string) (*domain.Payment, error) {
	for _, p := range t.s.payments {
		if p.PaymentIntentID == intentID {
			return &p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (t *tx) GetOpenPaymentForBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	var found *domain.Payment
	for _, p := range t.s.payments {
		if p.BookingID == bookingID && p.Status == domain.PaymentStatusPending {
			if found == nil || p.CreatedAt.After(found.CreatedAt) {
				p := p
				found = &p
			}
		}
	}
	if found == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return found, nil
}

func (t *tx) MarkPaymentSucceeded(ctx context.Context, id, notificationID string, at time.Time) error {
	return t.settle(id, domain.PaymentStatusSucceeded, notificationID, "", at)
}

func (t *tx) MarkPaymentFailed(ctx context.Context, id, notificationID, message string, at time.Time) error {
	return t.settle(id, domain.PaymentStatusFailed, notificationID, message, at)
}

func (t *tx) settle(id string, status domain.PaymentStatus, notificationID, message string, at time.Time) error {
	p, ok := t.s.payments[id]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if p.Status != domain.PaymentStatusPending {
		return domain.ErrAlreadyProcessed
	}
	for otherID, other := range t.s.payments {
		if otherID != id && notificationID != "" && other.NotificationID == notificationID {
			return fmt.Errorf("duplicate notification id %s", notificationID)
		}
	}
	p.Status = status
	p.NotificationID = notificationID
	p.ErrorMessage = message
	p.UpdatedAt = at
	t.s.payments[id] = p
	return nil
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*tx)(nil)
)
