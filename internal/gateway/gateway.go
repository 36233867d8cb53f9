// Package gateway adapts the payment provider: it verifies and decodes
// signed webhook notifications and creates payment intents.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	TypePaymentSucceeded = "payment_intent.succeeded"
	TypePaymentFailed    = "payment_intent.payment_failed"

	// MetadataBookingID is the intent metadata key carrying our booking id.
	MetadataBookingID = "booking_id"

	DefaultTolerance = 5 * time.Minute
)

// Notification is a verified gateway event about a payment intent.
type Notification struct {
	ID              string
	Type            string
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	BookingID       string
	FailureMessage  string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Currency     string
}

type Gateway interface {
	ParseNotification(payload []byte, signature string) (*Notification, error)
	CreatePaymentIntent(ctx context.Context, bookingID string, amountCents int64, currency string) (*PaymentIntent, error)
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

type Option func(*StripeGateway)

func WithTolerance(d time.Duration) Option {
	return func(g *StripeGateway) {
		g.tolerance = d
	}
}

func NewStripeGateway(secretKey, webhookSecret string, opts ...Option) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	g := &StripeGateway{api: api, webhookSecret: webhookSecret, tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ParseNotification verifies the Stripe-Signature header against the raw
// payload and decodes payment intent events. Other event types come back
// with only ID and Type set.
func (g *StripeGateway) ParseNotification(payload []byte, signature string) (*Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}

	n := &Notification{ID: event.ID, Type: string(event.Type)}
	if n.Type != TypePaymentSucceeded && n.Type != TypePaymentFailed {
		return n, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("decode payment intent of %s: %w", event.ID, err)
	}
	n.PaymentIntentID = intent.ID
	n.AmountCents = intent.Amount
	n.Currency = string(intent.Currency)
	n.BookingID = intent.Metadata[MetadataBookingID]
	if intent.LastPaymentError != nil {
		n.FailureMessage = intent.LastPaymentError.Msg
	}
	return n, nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, bookingID string, amountCents int64, currency string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	params.AddMetadata(MetadataBookingID, bookingID)
	params.SetIdempotencyKey("booking-" + bookingID)

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.Amount,
		Currency:     string(intent.Currency),
	}, nil
}

var _ Gateway = (*StripeGateway)(nil)
