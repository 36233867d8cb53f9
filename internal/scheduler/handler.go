package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/hibiken/asynq"
)

// Expirer applies the expiry transition.
type Expirer interface {
	ExpireBooking(ctx context.Context, bookingID, source string) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
}

type Handler struct {
	expirer Expirer
	logger  *slog.Logger
}

func NewHandler(expirer Expirer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{expirer: expirer, logger: logger}
}

// Mux routes both task types to h.
func (h *Handler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExpireBooking, h.HandleExpire)
	mux.HandleFunc(TypeExpireSweep, h.HandleSweep)
	return mux
}

func (h *Handler) HandleExpire(ctx context.Context, t *asynq.Task) error {
	var p expirePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.BookingID == "" {
		return fmt.Errorf("malformed expire payload %q: %w", t.Payload(), asynq.SkipRetry)
	}

	expired, err := h.expirer.ExpireBooking(ctx, p.BookingID, domain.ExpirySourceTask)
	if err != nil {
		return fmt.Errorf("expire booking %s: %w", p.BookingID, err)
	}
	h.logger.InfoContext(ctx, "expiration task done", "booking_id", p.BookingID, "expired", expired)
	return nil
}

func (h *Handler) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := h.expirer.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired bookings: %w", err)
	}
	if n > 0 {
		h.logger.InfoContext(ctx, "sweep expired bookings", "count", n)
	}
	return nil
}
