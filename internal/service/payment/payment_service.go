package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/Domenick1991/ticketbooking/internal/gateway"
	"github.com/Domenick1991/ticketbooking/internal/kafka"
	"github.com/Domenick1991/ticketbooking/internal/metrics"
	"github.com/Domenick1991/ticketbooking/internal/repository"
	"github.com/Domenick1991/ticketbooking/internal/service/booking"
	"github.com/Domenick1991/ticketbooking/internal/service/tickets"
	"github.com/google/uuid"
)

// errUnmatched marks a notification for an intent we never created and
// whose metadata names no booking we know.
var errUnmatched = errors.New("notification does not match any booking")

type PaymentUseCase interface {
	HandleNotification(ctx context.Context, signature string, payload []byte) (Ack, error)
	CreatePaymentIntent(ctx context.Context, bookingID, userID string) (*domain.Payment, error)
	ConfirmBooking(ctx context.Context, bookingID, paymentReference string) (*tickets.ConfirmedBooking, error)
}

type TicketIssuer interface {
	Confirm(ctx context.Context, bookingID, paymentReference string) (*tickets.ConfirmedBooking, error)
}

type ExpirationCanceller interface {
	CancelExpiration(ctx context.Context, bookingID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Ack is what the webhook endpoint reports back to the gateway.
type Ack struct {
	NotificationID string `json:"notification_id"`
	Type           string `json:"type"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Ignored        bool   `json:"ignored,omitempty"`
}

type PaymentService struct {
	store      repository.Store
	gateway    gateway.Gateway
	issuer     TicketIssuer
	scheduler  ExpirationCanceller
	producer   Producer
	eventCache booking.EventCache
	topic      string
	currency   string
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*PaymentService)

func WithProducer(producer Producer, topic string) Option {
	return func(s *PaymentService) {
		s.producer = producer
		s.topic = topic
	}
}

func WithEventCache(c booking.EventCache) Option {
	return func(s *PaymentService) {
		s.eventCache = c
	}
}

func WithCurrency(currency string) Option {
	return func(s *PaymentService) {
		if currency != "" {
			s.currency = currency
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *PaymentService) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *PaymentService) {
		s.logger = logger
	}
}

func NewPaymentService(store repository.Store, gw gateway.Gateway, issuer TicketIssuer, scheduler ExpirationCanceller, opts ...Option) *PaymentService {
	s := &PaymentService{
		store:     store,
		gateway:   gw,
		issuer:    issuer,
		scheduler: scheduler,
		currency:  "usd",
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleNotification verifies and applies one gateway notification. A nil
// error means the gateway may consider it delivered; any error asks for a
// redelivery.
func (s *PaymentService) HandleNotification(ctx context.Context, signature string, payload []byte) (Ack, error) {
	n, err := s.gateway.ParseNotification(payload, signature)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			metrics.WebhookNotifications.WithLabelValues("unknown", "invalid_signature").Inc()
		} else {
			metrics.WebhookNotifications.WithLabelValues("unknown", "error").Inc()
		}
		return Ack{}, err
	}

	ack := Ack{NotificationID: n.ID, Type: n.Type}
	var result string
	switch n.Type {
	case gateway.TypePaymentSucceeded:
		result, err = s.handleSucceeded(ctx, n, &ack)
	case gateway.TypePaymentFailed:
		result, err = s.handleFailed(ctx, n, &ack)
	default:
		ack.Ignored = true
		result = "ignored"
	}
	metrics.WebhookNotifications.WithLabelValues(n.Type, result).Inc()
	if err != nil {
		return Ack{}, err
	}
	return ack, nil
}

func (s *PaymentService) handleSucceeded(ctx context.Context, n *gateway.Notification, ack *Ack) (string, error) {
	var (
		bookingID  string
		duplicate  bool
		stillToDo  bool
		lateSignal bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		bookingID, duplicate, stillToDo, lateSignal = "", false, false, false

		seen, err := tx.GetPaymentByNotificationID(ctx, n.ID)
		if err == nil {
			duplicate = true
			bookingID = seen.BookingID
			stillToDo, err = awaitingConfirmation(ctx, tx, seen)
			return err
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return err
		}

		p, err := s.paymentForIntent(ctx, tx, n)
		if err != nil {
			return err
		}
		bookingID = p.BookingID
		if p.Settled() {
			duplicate = true
			lateSignal = p.Status == domain.PaymentStatusFailed
			stillToDo, err = awaitingConfirmation(ctx, tx, p)
			return err
		}

		b, err := tx.GetBookingForUpdate(ctx, p.BookingID)
		if err != nil {
			return err
		}
		if n.AmountCents != b.TotalCents {
			return fmt.Errorf("%w: notified %d, booking %s total %d", domain.ErrAmountMismatch, n.AmountCents, b.ID, b.TotalCents)
		}
		if err := tx.MarkPaymentSucceeded(ctx, p.ID, n.ID, s.now()); err != nil {
			return err
		}
		stillToDo = true
		return nil
	})
	switch {
	case errors.Is(err, errUnmatched), errors.Is(err, domain.ErrBookingNotFound):
		s.logger.WarnContext(ctx, "payment notification for unknown booking", "notification_id", n.ID, "intent_id", n.PaymentIntentID)
		ack.Ignored = true
		return "ignored", nil
	case errors.Is(err, domain.ErrAmountMismatch):
		s.logger.ErrorContext(ctx, "payment amount mismatch", "notification_id", n.ID, "intent_id", n.PaymentIntentID, "error", err)
		return "amount_mismatch", err
	case err != nil:
		return "error", fmt.Errorf("record payment %s: %w", n.PaymentIntentID, err)
	}

	ack.Duplicate = duplicate
	if lateSignal {
		s.logger.ErrorContext(ctx, "payment succeeded after it was recorded as failed, refund required",
			"booking_id", bookingID, "intent_id", n.PaymentIntentID, "notification_id", n.ID)
		return "unfulfillable", nil
	}
	if !stillToDo {
		return "duplicate", nil
	}
	if duplicate {
		s.logger.InfoContext(ctx, "retrying confirmation of paid booking", "booking_id", bookingID, "notification_id", n.ID)
	}

	confirmed, err := s.issuer.Confirm(ctx, bookingID, n.PaymentIntentID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyProcessed) && s.confirmedByIntent(ctx, bookingID, n.PaymentIntentID):
		// A concurrent delivery of the same payment got there first.
		ack.Duplicate = true
		return "duplicate", nil
	case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrExpired):
		// Money was taken for a booking that can no longer be fulfilled.
		s.logger.ErrorContext(ctx, "paid booking could not be confirmed, refund required",
			"booking_id", bookingID, "intent_id", n.PaymentIntentID, "error", err)
		return "unfulfillable", nil
	default:
		return "error", fmt.Errorf("confirm booking %s: %w", bookingID, err)
	}

	s.afterConfirm(ctx, confirmed)
	if duplicate {
		return "recovered", nil
	}
	return "processed", nil
}

// confirmedByIntent reports whether the booking already holds tickets paid
// by intentID.
func (s *PaymentService) confirmedByIntent(ctx context.Context, bookingID, intentID string) bool {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		s.logger.WarnContext(ctx, "reload booking failed", "booking_id", bookingID, "error", err)
		return false
	}
	return b.Status == domain.BookingStatusConfirmed && b.PaymentReference == intentID
}

// ConfirmBooking confirms a booking on a payment reference vouched for by
// a trusted operator rather than a gateway notification.
func (s *PaymentService) ConfirmBooking(ctx context.Context, bookingID, paymentReference string) (*tickets.ConfirmedBooking, error) {
	confirmed, err := s.issuer.Confirm(ctx, bookingID, paymentReference)
	if err != nil {
		return nil, err
	}
	s.afterConfirm(ctx, confirmed)
	return confirmed, nil
}

func (s *PaymentService) afterConfirm(ctx context.Context, confirmed *tickets.ConfirmedBooking) {
	s.cancelExpiration(ctx, confirmed.Booking.ID)
	s.invalidateEvents(ctx)
	event := kafka.NewBookingEvent(kafka.TypeTicketsIssued, confirmed.Booking)
	for _, t := range confirmed.Tickets {
		event.TicketCodes = append(event.TicketCodes, t.TicketCode)
	}
	s.publish(ctx, event)
}

// awaitingConfirmation reports whether a succeeded payment still has a
// pending booking, which happens when confirmation failed after the
// payment was recorded.
func awaitingConfirmation(ctx context.Context, tx repository.Tx, p *domain.Payment) (bool, error) {
	if p.Status != domain.PaymentStatusSucceeded {
		return false, nil
	}
	b, err := tx.GetBookingForUpdate(ctx, p.BookingID)
	if err != nil {
		return false, err
	}
	return b.IsPending(), nil
}

func (s *PaymentService) handleFailed(ctx context.Context, n *gateway.Notification, ack *Ack) (string, error) {
	var (
		released  *domain.Booking
		duplicate bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		released, duplicate = nil, false

		if _, err := tx.GetPaymentByNotificationID(ctx, n.ID); err == nil {
			duplicate = true
			return nil
		} else if !errors.Is(err, domain.ErrPaymentNotFound) {
			return err
		}

		p, err := s.paymentForIntent(ctx, tx, n)
		if err != nil {
			return err
		}
		if p.Settled() {
			duplicate = true
			return nil
		}

		now := s.now()
		if err := tx.MarkPaymentFailed(ctx, p.ID, n.ID, n.FailureMessage, now); err != nil {
			return err
		}
		b, err := tx.GetBookingForUpdate(ctx, p.BookingID)
		if err != nil {
			return err
		}
		if !b.IsPending() {
			return nil
		}
		if err := booking.Release(ctx, tx, b, domain.BookingStatusFailed, domain.ReasonPaymentFailed, now); err != nil {
			return err
		}
		released = b
		return nil
	})
	switch {
	case errors.Is(err, errUnmatched), errors.Is(err, domain.ErrBookingNotFound):
		s.logger.WarnContext(ctx, "payment notification for unknown booking", "notification_id", n.ID, "intent_id", n.PaymentIntentID)
		ack.Ignored = true
		return "ignored", nil
	case err != nil:
		return "error", fmt.Errorf("record failed payment %s: %w", n.PaymentIntentID, err)
	}

	ack.Duplicate = duplicate
	if duplicate {
		return "duplicate", nil
	}
	if released != nil {
		s.cancelExpiration(ctx, released.ID)
		s.invalidateEvents(ctx)
		s.publish(ctx, kafka.NewBookingEvent(kafka.TypePaymentFailed, released))
		s.logger.InfoContext(ctx, "payment failed, booking released",
			"booking_id", released.ID,
			"event_id", released.EventID,
			"quantity", released.Quantity,
			"reason", n.FailureMessage,
		)
	}
	return "processed", nil
}

// paymentForIntent locks the payment row of the notified intent, creating
// it from the intent metadata when the intent was made outside this
// service.
func (s *PaymentService) paymentForIntent(ctx context.Context, tx repository.Tx, n *gateway.Notification) (*domain.Payment, error) {
	p, err := tx.GetPaymentByIntentForUpdate(ctx, n.PaymentIntentID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}
	if n.BookingID == "" {
		return nil, errUnmatched
	}
	if _, err := tx.GetBookingForUpdate(ctx, n.BookingID); err != nil {
		return nil, err
	}

	p = &domain.Payment{
		ID:              uuid.NewString(),
		BookingID:       n.BookingID,
		PaymentIntentID: n.PaymentIntentID,
		AmountCents:     n.AmountCents,
		Currency:        n.Currency,
		Status:          domain.PaymentStatusPending,
	}
	if err := tx.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return p, nil
}

// CreatePaymentIntent starts payment for a pending booking. Asking again
// returns the open intent instead of creating another one.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, bookingID, userID string) (*domain.Payment, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(userID) {
		return nil, domain.ErrForbidden
	}
	if !b.IsPending() {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrAlreadyProcessed, b.ID, b.Status)
	}
	if b.IsExpired(s.now()) {
		return nil, domain.ErrExpired
	}

	var open *domain.Payment
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetOpenPaymentForBooking(ctx, bookingID)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			open = nil
			return nil
		}
		open = p
		return err
	})
	if err != nil {
		return nil, err
	}
	if open != nil {
		return open, nil
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, b.ID, b.TotalCents, s.currency)
	if err != nil {
		return nil, err
	}

	var payment *domain.Payment
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		existing, err := tx.GetPaymentByIntentForUpdate(ctx, intent.ID)
		if err == nil {
			payment = existing
			return nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return err
		}
		p := &domain.Payment{
			ID:              uuid.NewString(),
			BookingID:       b.ID,
			PaymentIntentID: intent.ID,
			AmountCents:     intent.AmountCents,
			Currency:        intent.Currency,
			ClientSecret:    intent.ClientSecret,
			Status:          domain.PaymentStatusPending,
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment intent created", "booking_id", b.ID, "intent_id", intent.ID, "amount_cents", intent.AmountCents)
	return payment, nil
}

func (s *PaymentService) cancelExpiration(ctx context.Context, bookingID string) {
	if err := s.scheduler.CancelExpiration(ctx, bookingID); err != nil {
		s.logger.WarnContext(ctx, "cancel expiration failed", "booking_id", bookingID, "error", err)
	}
}

func (s *PaymentService) invalidateEvents(ctx context.Context) {
	if s.eventCache == nil {
		return
	}
	if err := s.eventCache.InvalidateEvents(ctx); err != nil {
		s.logger.WarnContext(ctx, "invalidate events cache failed", "error", err)
	}
}

func (s *PaymentService) publish(ctx context.Context, event kafka.BookingEvent) {
	if s.producer == nil || s.topic == "" {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, event.BookingID, event); err != nil {
		s.logger.WarnContext(ctx, "publish failed", "type", event.Type, "booking_id", event.BookingID, "error", err)
	}
}

var _ PaymentUseCase = (*PaymentService)(nil)
