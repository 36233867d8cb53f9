package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/Domenick1991/ticketbooking/internal/gateway"
	"github.com/Domenick1991/ticketbooking/internal/kafka"
	"github.com/Domenick1991/ticketbooking/internal/repository"
	"github.com/Domenick1991/ticketbooking/internal/repository/memstore"
	"github.com/Domenick1991/ticketbooking/internal/service/tickets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const webhookSecret = "whsec_test"

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ParseNotification(payload []byte, signature string) (*gateway.Notification, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Notification), args.Error(1)
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, bookingID string, amountCents int64, currency string) (*gateway.PaymentIntent, error) {
	args := m.Called(ctx, bookingID, amountCents, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentIntent), args.Error(1)
}

type MockCanceller struct {
	mock.Mock
}

func (m *MockCanceller) CancelExpiration(ctx context.Context, bookingID string) error {
	return m.Called(ctx, bookingID).Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value any) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

// flakyIssuer fails the first n confirmations before delegating.
type flakyIssuer struct {
	inner    TicketIssuer
	failures int
}

func (f *flakyIssuer) Confirm(ctx context.Context, bookingID, ref string) (*tickets.ConfirmedBooking, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	return f.inner.Confirm(ctx, bookingID, ref)
}

type notification struct {
	id        string
	eventType string
	intentID  string
	bookingID string
	failure   string
	amount    int64
}

func (n notification) payload() []byte {
	metadata := "{}"
	if n.bookingID != "" {
		metadata = fmt.Sprintf(`{"booking_id":%q}`, n.bookingID)
	}
	lastError := "null"
	if n.failure != "" {
		lastError = fmt.Sprintf(`{"message":%q}`, n.failure)
	}
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2020-08-27","type":%q,
"data":{"object":{"id":%q,"object":"payment_intent","amount":%d,"currency":"usd","metadata":%s,"last_payment_error":%s}}}`,
		n.id, n.eventType, n.intentID, n.amount, metadata, lastError))
}

func signed(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	}).Header
}

type fixture struct {
	store     *memstore.Store
	canceller *MockCanceller
	producer  *MockProducer
	service   *PaymentService
}

func newFixture(t *testing.T, gw gateway.Gateway, issuer TicketIssuer) *fixture {
	t.Helper()
	f := &fixture{store: memstore.New(), canceller: &MockCanceller{}, producer: &MockProducer{}}
	f.store.AddEvent(domain.Event{
		ID:               "e-1",
		Title:            "Concert",
		EventDate:        fixedNow.Add(7 * 24 * time.Hour),
		TotalTickets:     10,
		AvailableTickets: 8,
		TicketPriceCents: 5000,
		IsActive:         true,
	})
	expiresAt := fixedNow.Add(5 * time.Minute)
	f.store.PutBooking(domain.Booking{
		ID:              "b-1",
		EventID:         "e-1",
		UserID:          "u-1",
		Quantity:        2,
		UnitPriceCents:  5000,
		SubtotalCents:   10000,
		ServiceFeeCents: 1500,
		TotalCents:      11500,
		Status:          domain.BookingStatusPending,
		ExpiresAt:       &expiresAt,
		CreatedAt:       fixedNow,
	})
	if gw == nil {
		gw = gateway.NewStripeGateway("sk_test", webhookSecret)
	}
	if issuer == nil {
		issuer = f.issuer()
	}
	f.canceller.On("CancelExpiration", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.service = NewPaymentService(f.store, gw, issuer, f.canceller,
		WithProducer(f.producer, "booking-events"),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

func (f *fixture) issuer() *tickets.Issuer {
	return tickets.NewIssuer(f.store,
		tickets.WithClock(func() time.Time { return fixedNow }),
		tickets.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (f *fixture) addPayment(t *testing.T, intentID string) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.CreatePayment(ctx, &domain.Payment{
			ID:              "p-1",
			BookingID:       "b-1",
			PaymentIntentID: intentID,
			AmountCents:     11500,
			Currency:        "usd",
			Status:          domain.PaymentStatusPending,
		})
	})
	require.NoError(t, err)
}

func (f *fixture) deliver(n notification) (Ack, error) {
	payload := n.payload()
	return f.service.HandleNotification(context.Background(), signed(payload), payload)
}

func (f *fixture) booking(t *testing.T) *domain.Booking {
	t.Helper()
	b, err := f.store.GetBooking(context.Background(), "b-1")
	require.NoError(t, err)
	return b
}

func (f *fixture) event(t *testing.T) *domain.Event {
	t.Helper()
	e, err := f.store.GetEvent(context.Background(), "e-1")
	require.NoError(t, err)
	return e
}

var succeeded = notification{id: "evt_1", eventType: gateway.TypePaymentSucceeded, intentID: "pi_1", bookingID: "b-1", amount: 11500}

func TestHandleNotification_Succeeded(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	f.producer.On("Publish", mock.Anything, "booking-events", "b-1", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.TypeTicketsIssued && len(e.TicketCodes) == 2
	})).Return(nil).Once()

	ack, err := f.deliver(succeeded)
	require.NoError(t, err)
	assert.Equal(t, Ack{NotificationID: "evt_1", Type: gateway.TypePaymentSucceeded}, ack)

	b := f.booking(t)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	assert.Equal(t, "pi_1", b.PaymentReference)
	assert.Len(t, f.store.Tickets(), 2)
	assert.Equal(t, 2, f.event(t).SoldTickets)
	assert.Equal(t, 8, f.event(t).AvailableTickets)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusSucceeded, payments[0].Status)
	assert.Equal(t, "evt_1", payments[0].NotificationID)

	f.canceller.AssertCalled(t, "CancelExpiration", mock.Anything, "b-1")
	f.producer.AssertExpectations(t)
}

func TestHandleNotification_ReplaysAreIdempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	f.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	first, err := f.deliver(succeeded)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	for i := 0; i < 5; i++ {
		ack, err := f.deliver(succeeded)
		require.NoError(t, err)
		assert.True(t, ack.Duplicate)
	}

	assert.Len(t, f.store.Tickets(), 2)
	assert.Equal(t, 2, f.event(t).SoldTickets)
	f.producer.AssertNumberOfCalls(t, "Publish", 1)
}

// A second notification id for an intent that already succeeded is still
// a duplicate.
func TestHandleNotification_SecondNotificationForSettledIntent(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	f.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.deliver(succeeded)
	require.NoError(t, err)

	again := succeeded
	again.id = "evt_1b"
	ack, err := f.deliver(again)
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)
	assert.Len(t, f.store.Tickets(), 2)
}

func TestHandleNotification_CreatesPaymentFromMetadata(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.deliver(succeeded)
	require.NoError(t, err)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "pi_1", payments[0].PaymentIntentID)
	assert.Equal(t, "b-1", payments[0].BookingID)
	assert.Equal(t, domain.PaymentStatusSucceeded, payments[0].Status)
	assert.Equal(t, domain.BookingStatusConfirmed, f.booking(t).Status)
}

func TestHandleNotification_UnknownIntentIsIgnored(t *testing.T) {
	testCases := []struct {
		name      string
		bookingID string
	}{
		{name: "no metadata", bookingID: ""},
		{name: "unknown booking", bookingID: "b-404"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			n := succeeded
			n.intentID = "pi_other"
			n.bookingID = tc.bookingID

			ack, err := f.deliver(n)

			require.NoError(t, err)
			assert.True(t, ack.Ignored)
			assert.Empty(t, f.store.Payments())
			assert.True(t, f.booking(t).IsPending())
		})
	}
}

func TestHandleNotification_AmountMismatchNeverConfirms(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	n := succeeded
	n.amount = 100

	_, err := f.deliver(n)

	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.True(t, f.booking(t).IsPending())
	assert.Empty(t, f.store.Tickets())
	assert.Equal(t, domain.PaymentStatusPending, f.store.Payments()[0].Status)
	assert.Empty(t, f.store.Payments()[0].NotificationID)
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleNotification_Failed(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	f.producer.On("Publish", mock.Anything, "booking-events", "b-1", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.TypePaymentFailed && e.Status == string(domain.BookingStatusFailed)
	})).Return(nil).Once()
	failed := notification{id: "evt_2", eventType: gateway.TypePaymentFailed, intentID: "pi_1", bookingID: "b-1", amount: 11500, failure: "Your card was declined."}

	ack, err := f.deliver(failed)
	require.NoError(t, err)
	assert.False(t, ack.Duplicate)

	b := f.booking(t)
	assert.Equal(t, domain.BookingStatusFailed, b.Status)
	assert.Equal(t, domain.ReasonPaymentFailed, b.CancellationReason)
	assert.Nil(t, b.ExpiresAt)
	assert.Equal(t, 10, f.event(t).AvailableTickets)
	assert.Equal(t, 0, f.event(t).SoldTickets)

	p := f.store.Payments()[0]
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Equal(t, "Your card was declined.", p.ErrorMessage)
	assert.Equal(t, "evt_2", p.NotificationID)

	ack, err = f.deliver(failed)
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)
	assert.Equal(t, 10, f.event(t).AvailableTickets)

	f.canceller.AssertCalled(t, "CancelExpiration", mock.Anything, "b-1")
	f.producer.AssertExpectations(t)
}

func TestHandleNotification_SuccessAfterFailureIsNotConfirmed(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	f.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.deliver(notification{id: "evt_2", eventType: gateway.TypePaymentFailed, intentID: "pi_1", bookingID: "b-1", amount: 11500})
	require.NoError(t, err)

	ack, err := f.deliver(succeeded)
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)
	assert.Equal(t, domain.BookingStatusFailed, f.booking(t).Status)
	assert.Empty(t, f.store.Tickets())
}

func TestHandleNotification_InvalidSignature(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	payload := succeeded.payload()
	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_forged"}).Header

	_, err := f.service.HandleNotification(context.Background(), forged, payload)

	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
	assert.True(t, f.booking(t).IsPending())
	assert.Equal(t, domain.PaymentStatusPending, f.store.Payments()[0].Status)
}

func TestHandleNotification_OtherTypeIgnored(t *testing.T) {
	f := newFixture(t, nil, nil)

	ack, err := f.deliver(notification{id: "evt_3", eventType: "payment_intent.created", intentID: "pi_1", bookingID: "b-1", amount: 11500})

	require.NoError(t, err)
	assert.True(t, ack.Ignored)
	assert.Empty(t, f.store.Payments())
}

// When confirmation fails after the payment was recorded, the gateway's
// redelivery completes it.
func TestHandleNotification_RedeliveryRecoversConfirmation(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.service.issuer = &flakyIssuer{inner: f.issuer(), failures: 1}
	f.addPayment(t, "pi_1")
	f.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.deliver(succeeded)
	require.Error(t, err)
	assert.True(t, f.booking(t).IsPending())
	assert.Equal(t, domain.PaymentStatusSucceeded, f.store.Payments()[0].Status)

	ack, err := f.deliver(succeeded)
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)
	assert.Equal(t, domain.BookingStatusConfirmed, f.booking(t).Status)
	assert.Len(t, f.store.Tickets(), 2)

	ack, err = f.deliver(succeeded)
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)
	assert.Len(t, f.store.Tickets(), 2)
}

// racingIssuer lets a redelivery of the same notification confirm the
// booking while the first delivery is still on its way to Confirm.
type racingIssuer struct {
	inner     TicketIssuer
	redeliver func()
	raced     bool
}

func (r *racingIssuer) Confirm(ctx context.Context, bookingID, ref string) (*tickets.ConfirmedBooking, error) {
	if !r.raced {
		r.raced = true
		r.redeliver()
	}
	return r.inner.Confirm(ctx, bookingID, ref)
}

func TestHandleNotification_ConcurrentRedeliveryIsNotARefund(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	f.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	var logs bytes.Buffer
	f.service.logger = slog.New(slog.NewTextHandler(&logs, nil))

	var second Ack
	f.service.issuer = &racingIssuer{inner: f.issuer(), redeliver: func() {
		var err error
		second, err = f.deliver(succeeded)
		require.NoError(t, err)
	}}

	first, err := f.deliver(succeeded)
	require.NoError(t, err)

	assert.True(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, domain.BookingStatusConfirmed, f.booking(t).Status)
	assert.Len(t, f.store.Tickets(), 2)
	assert.Equal(t, 2, f.event(t).SoldTickets)
	assert.NotContains(t, logs.String(), "refund required")
	assert.NotContains(t, logs.String(), "level=ERROR")
	f.producer.AssertNumberOfCalls(t, "Publish", 1)
}

// A booking confirmed under another payment still needs a refund for this one.
func TestHandleNotification_ConfirmedByOtherReferenceIsUnfulfillable(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	var logs bytes.Buffer
	f.service.logger = slog.New(slog.NewTextHandler(&logs, nil))
	_, err := f.issuer().Confirm(context.Background(), "b-1", "wire-7")
	require.NoError(t, err)

	ack, err := f.deliver(succeeded)

	require.NoError(t, err)
	assert.False(t, ack.Duplicate)
	assert.Equal(t, "wire-7", f.booking(t).PaymentReference)
	assert.Contains(t, logs.String(), "refund required")
}

func TestHandleNotification_PaidAfterExpiry(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.addPayment(t, "pi_1")
	expired := f.booking(t)
	past := fixedNow.Add(-time.Minute)
	expired.ExpiresAt = &past
	f.store.PutBooking(*expired)

	ack, err := f.deliver(succeeded)

	require.NoError(t, err)
	assert.False(t, ack.Duplicate)
	assert.True(t, f.booking(t).IsPending())
	assert.Empty(t, f.store.Tickets())
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreatePaymentIntent(t *testing.T) {
	gw := &MockGateway{}
	f := newFixture(t, gw, nil)
	ctx := context.Background()

	gw.On("CreatePaymentIntent", ctx, "b-1", int64(11500), "usd").
		Return(&gateway.PaymentIntent{ID: "pi_9", ClientSecret: "pi_9_secret", AmountCents: 11500, Currency: "usd"}, nil).Once()

	p, err := f.service.CreatePaymentIntent(ctx, "b-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_9", p.PaymentIntentID)
	assert.Equal(t, "pi_9_secret", p.ClientSecret)
	assert.Equal(t, int64(11500), p.AmountCents)
	assert.Equal(t, domain.PaymentStatusPending, p.Status)

	again, err := f.service.CreatePaymentIntent(ctx, "b-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	assert.Len(t, f.store.Payments(), 1)
	gw.AssertExpectations(t)
}

func TestCreatePaymentIntent_Rejections(t *testing.T) {
	gw := &MockGateway{}
	f := newFixture(t, gw, nil)
	ctx := context.Background()

	_, err := f.service.CreatePaymentIntent(ctx, "b-1", "u-2")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.service.CreatePaymentIntent(ctx, "missing", "u-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	confirmed := f.booking(t)
	confirmed.Status = domain.BookingStatusConfirmed
	f.store.PutBooking(*confirmed)
	_, err = f.service.CreatePaymentIntent(ctx, "b-1", "u-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	gw.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreatePaymentIntent_GatewayError(t *testing.T) {
	gw := &MockGateway{}
	f := newFixture(t, gw, nil)
	gw.On("CreatePaymentIntent", mock.Anything, "b-1", int64(11500), "usd").Return(nil, errors.New("stripe unavailable")).Once()

	_, err := f.service.CreatePaymentIntent(context.Background(), "b-1", "u-1")

	assert.ErrorContains(t, err, "stripe unavailable")
	assert.Empty(t, f.store.Payments())
}

func TestConfirmBooking(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.producer.On("Publish", mock.Anything, "booking-events", "b-1", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.TypeTicketsIssued
	})).Return(nil).Once()
	ctx := context.Background()

	confirmed, err := f.service.ConfirmBooking(ctx, "b-1", "bank-transfer-42")
	require.NoError(t, err)
	assert.Equal(t, "bank-transfer-42", confirmed.Booking.PaymentReference)
	assert.Len(t, confirmed.Tickets, 2)

	_, err = f.service.ConfirmBooking(ctx, "b-1", "bank-transfer-42")
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	f.canceller.AssertCalled(t, "CancelExpiration", mock.Anything, "b-1")
	f.producer.AssertExpectations(t)
}
