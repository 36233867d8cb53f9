package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/Domenick1991/ticketbooking/internal/kafka"
	"github.com/Domenick1991/ticketbooking/internal/lock"
	"github.com/Domenick1991/ticketbooking/internal/metrics"
	"github.com/Domenick1991/ticketbooking/internal/pricing"
	"github.com/Domenick1991/ticketbooking/internal/repository"
	"github.com/google/uuid"
)

const (
	MinQuantity = 1
	MaxQuantity = 10

	DefaultReservationWindow = 10 * time.Minute
	DefaultSweepBatch        = 100

	userBookingsLimit = 100

	// Upper bound on enqueuing the expiry task after a reservation commits.
	scheduleTimeout = 500 * time.Millisecond
)

type BookingUseCase interface {
	Reserve(ctx context.Context, input ReserveInput) (*domain.Booking, error)
	ExpireBooking(ctx context.Context, bookingID, source string) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
	CancelBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error)
	GetBooking(ctx context.Context, bookingID string, caller domain.Caller) (*BookingDetails, error)
	ListUserBookings(ctx context.Context, userID string) ([]domain.Booking, error)
}

type ExpirationScheduler interface {
	ScheduleExpiration(ctx context.Context, bookingID string, at time.Time) error
	CancelExpiration(ctx context.Context, bookingID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// EventCache drops cached event listings once availability changes.
type EventCache interface {
	InvalidateEvents(ctx context.Context) error
}

type ReserveInput struct {
	EventID  string `json:"event_id"`
	UserID   string `json:"-"`
	Quantity int    `json:"quantity"`
}

type BookingDetails struct {
	Booking *domain.Booking
	Tickets []domain.Ticket
}

type BookingService struct {
	store              repository.Store
	locker             lock.Locker
	scheduler          ExpirationScheduler
	producer           Producer
	eventCache         EventCache
	bookingTopic       string
	notificationsTopic string
	pricing            *pricing.Calculator
	window             time.Duration
	lockTTL            time.Duration
	sweepBatch         int
	now                func() time.Time
	logger             *slog.Logger
}

type BookingServiceOption func(*BookingService)

// WithProducer enables notifications on bookingTopic.
func WithProducer(producer Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithEventCache(c EventCache) BookingServiceOption {
	return func(s *BookingService) {
		s.eventCache = c
	}
}

func WithPricing(c *pricing.Calculator) BookingServiceOption {
	return func(s *BookingService) {
		s.pricing = c
	}
}

func WithReservationWindow(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.window = d
		}
	}
}

func WithLockTTL(d time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithSweepBatch(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.sweepBatch = n
		}
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

func NewBookingService(
	store repository.Store,
	locker lock.Locker,
	scheduler ExpirationScheduler,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		store:      store,
		locker:     locker,
		scheduler:  scheduler,
		pricing:    pricing.NewCalculator(pricing.DefaultServiceFeeRate),
		window:     DefaultReservationWindow,
		lockTTL:    lock.DefaultTTL,
		sweepBatch: DefaultSweepBatch,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Reserve holds quantity tickets of an event for the user until the
// reservation window closes. It never waits for a busy event lock: the
// caller gets domain.ErrLockBusy and may retry.
func (s *BookingService) Reserve(ctx context.Context, input ReserveInput) (*domain.Booking, error) {
	if input.Quantity < MinQuantity || input.Quantity > MaxQuantity {
		metrics.Reservations.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidQuantity
	}

	started := time.Now()
	booking, err := lock.WithLock(ctx, s.locker, lock.EventKey(input.EventID), s.lockTTL,
		func(ctx context.Context) (*domain.Booking, error) {
			return s.reserveLocked(ctx, input)
		})
	metrics.ReservationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.Reservations.WithLabelValues(reservationResult(err)).Inc()
		return nil, err
	}
	metrics.Reservations.WithLabelValues("ok").Inc()

	schedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), scheduleTimeout)
	err = s.scheduler.ScheduleExpiration(schedCtx, booking.ID, *booking.ExpiresAt)
	cancel()
	if err != nil {
		// The sweep still expires the booking.
		s.logger.ErrorContext(ctx, "schedule expiration failed", "booking_id", booking.ID, "error", err)
	}
	s.invalidateEvents(ctx)
	s.publish(ctx, kafka.TypeBookingCreated, booking)

	s.logger.InfoContext(ctx, "booking reserved",
		"booking_id", booking.ID,
		"event_id", booking.EventID,
		"user_id", booking.UserID,
		"quantity", booking.Quantity,
		"total_cents", booking.TotalCents,
	)
	return booking, nil
}

func (s *BookingService) reserveLocked(ctx context.Context, input ReserveInput) (*domain.Booking, error) {
	var created *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		created = nil

		event, err := tx.GetEventForUpdate(ctx, input.EventID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := event.Bookable(now); err != nil {
			return err
		}
		if event.AvailableTickets < input.Quantity {
			return domain.InsufficientInventory(event.AvailableTickets, input.Quantity)
		}

		quote := s.pricing.Quote(event.TicketPriceCents, input.Quantity)
		expiresAt := now.Add(s.window)

		if err := tx.DecrementAvailable(ctx, event.ID, input.Quantity); err != nil {
			return err
		}
		b := &domain.Booking{
			ID:              uuid.NewString(),
			EventID:         event.ID,
			UserID:          input.UserID,
			Quantity:        input.Quantity,
			UnitPriceCents:  quote.UnitPriceCents,
			SubtotalCents:   quote.SubtotalCents,
			ServiceFeeCents: quote.ServiceFeeCents,
			TotalCents:      quote.TotalCents,
			Status:          domain.BookingStatusPending,
			ExpiresAt:       &expiresAt,
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func reservationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrLockBusy):
		return "lock_busy"
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Release moves a pending booking to a terminal status and hands its
// tickets back to the event. It must run inside tx after b's row was
// locked; b is updated in place.
func Release(ctx context.Context, tx repository.Tx, b *domain.Booking, status domain.BookingStatus, reason string, now time.Time) error {
	if err := tx.MarkBookingTerminated(ctx, b.ID, status, reason, now); err != nil {
		return err
	}
	if err := tx.IncrementAvailable(ctx, b.EventID, b.Quantity); err != nil {
		return err
	}
	b.Status = status
	b.CancellationReason = reason
	b.CancelledAt = &now
	b.ExpiresAt = nil
	return nil
}

// ExpireBooking cancels a booking whose hold ran out. It reports false
// when the booking was already terminal, so running it again never hands
// tickets back twice.
func (s *BookingService) ExpireBooking(ctx context.Context, bookingID, source string) (bool, error) {
	var expired *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		expired = nil

		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.IsPending() {
			return nil
		}
		if err := Release(ctx, tx, b, domain.BookingStatusCancelled, domain.ReasonExpired, s.now()); err != nil {
			return err
		}
		expired = b
		return nil
	})
	if errors.Is(err, domain.ErrBookingNotFound) {
		s.logger.WarnContext(ctx, "expiring unknown booking", "booking_id", bookingID, "source", source)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if expired == nil {
		return false, nil
	}

	metrics.Expirations.WithLabelValues(source).Inc()
	if source != domain.ExpirySourceTask {
		s.cancelExpiration(ctx, bookingID)
	}
	s.invalidateEvents(ctx)
	s.publish(ctx, kafka.TypeBookingExpired, expired)
	s.logger.InfoContext(ctx, "booking expired",
		"booking_id", bookingID,
		"event_id", expired.EventID,
		"quantity", expired.Quantity,
		"source", source,
	)
	return true, nil
}

// SweepExpired expires one batch of overdue pending bookings and returns
// how many it transitioned.
func (s *BookingService) SweepExpired(ctx context.Context) (int, error) {
	overdue, err := s.store.ListExpiredPending(ctx, s.now(), s.sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired bookings: %w", err)
	}

	var (
		count int
		errs  []error
	)
	for _, b := range overdue {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := s.ExpireBooking(ctx, b.ID, domain.ExpirySourceSweep)
		if err != nil {
			s.logger.ErrorContext(ctx, "sweep failed to expire booking", "booking_id", b.ID, "error", err)
			errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
			continue
		}
		if ok {
			count++
		}
	}
	return count, errors.Join(errs...)
}

// CancelBooking lets the owner give up a pending booking.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error) {
	var cancelled *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cancelled = nil

		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.OwnedBy(userID) {
			return domain.ErrForbidden
		}
		if !b.IsPending() {
			return fmt.Errorf("%w: booking %s is %s", domain.ErrAlreadyProcessed, b.ID, b.Status)
		}
		if err := Release(ctx, tx, b, domain.BookingStatusCancelled, domain.ReasonCancelledByUser, s.now()); err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cancelExpiration(ctx, bookingID)
	s.invalidateEvents(ctx)
	s.publish(ctx, kafka.TypeBookingCancelled, cancelled)
	s.logger.InfoContext(ctx, "booking cancelled", "booking_id", bookingID, "user_id", userID)
	return cancelled, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID string, caller domain.Caller) (*BookingDetails, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !caller.CanRead(b) {
		return nil, domain.ErrForbidden
	}
	tickets, err := s.store.ListTicketsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &BookingDetails{Booking: b, Tickets: tickets}, nil
}

// ListUserBookings returns the user's most recent bookings first.
func (s *BookingService) ListUserBookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	return s.store.ListBookingsByUser(ctx, userID, userBookingsLimit)
}

func (s *BookingService) cancelExpiration(ctx context.Context, bookingID string) {
	if err := s.scheduler.CancelExpiration(ctx, bookingID); err != nil {
		s.logger.WarnContext(ctx, "cancel expiration failed", "booking_id", bookingID, "error", err)
	}
}

func (s *BookingService) invalidateEvents(ctx context.Context) {
	if s.eventCache == nil {
		return
	}
	if err := s.eventCache.InvalidateEvents(ctx); err != nil {
		s.logger.WarnContext(ctx, "invalidate events cache failed", "error", err)
	}
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.NewBookingEvent(eventType, booking)
	if err := s.producer.Publish(ctx, s.bookingTopic, booking.ID, event); err != nil {
		s.logger.WarnContext(ctx, "publish failed", "type", eventType, "booking_id", booking.ID, "error", err)
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, booking.ID, event); err != nil {
			s.logger.WarnContext(ctx, "publish failed", "type", eventType, "booking_id", booking.ID, "topic", s.notificationsTopic, "error", err)
		}
	}
}

var _ BookingUseCase = (*BookingService)(nil)
