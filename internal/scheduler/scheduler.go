// Package scheduler runs booking expirations on asynq: one delayed task per
// pending booking keyed by its id, plus a recurring sweep that catches any
// booking whose task was lost.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/ticketbooking/config"
	"github.com/Domenick1991/ticketbooking/internal/metrics"
	"github.com/hibiken/asynq"
)

const (
	TypeExpireBooking = "booking:expire"
	TypeExpireSweep   = "booking:expire_sweep"

	QueueExpirations = "expirations"
)

type expirePayload struct {
	BookingID string `json:"booking_id"`
}

// TaskID is the key an expiration task is stored under, so it can be
// cancelled and is never enqueued twice for one booking.
func TaskID(bookingID string) string {
	return "expire:" + bookingID
}

func NewExpireTask(bookingID string) (*asynq.Task, error) {
	payload, err := json.Marshal(expirePayload{BookingID: bookingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeExpireBooking, payload), nil
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type TaskDeleter interface {
	DeleteTask(queue, id string) error
}

type AsynqScheduler struct {
	client    Enqueuer
	inspector TaskDeleter
	maxRetry  int
}

type Option func(*AsynqScheduler)

// WithMaxRetry bounds how often a failing expiration task is retried before
// the sweep is left to pick the booking up.
func WithMaxRetry(n int) Option {
	return func(s *AsynqScheduler) {
		s.maxRetry = n
	}
}

func NewAsynqScheduler(client Enqueuer, inspector TaskDeleter, opts ...Option) *AsynqScheduler {
	s := &AsynqScheduler{client: client, inspector: inspector, maxRetry: 5}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleExpiration enqueues the expiry of bookingID at at. Scheduling the
// same booking twice is a no-op.
func (s *AsynqScheduler) ScheduleExpiration(ctx context.Context, bookingID string, at time.Time) error {
	task, err := NewExpireTask(bookingID)
	if err != nil {
		metrics.ExpirationScheduling.WithLabelValues("schedule", "error").Inc()
		return fmt.Errorf("build expire task: %w", err)
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(bookingID)),
		asynq.ProcessAt(at),
		asynq.Queue(QueueExpirations),
		asynq.MaxRetry(s.maxRetry),
	)
	switch {
	case err == nil:
		metrics.ExpirationScheduling.WithLabelValues("schedule", "ok").Inc()
		return nil
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		metrics.ExpirationScheduling.WithLabelValues("schedule", "duplicate").Inc()
		return nil
	default:
		metrics.ExpirationScheduling.WithLabelValues("schedule", "error").Inc()
		return fmt.Errorf("enqueue expiration of %s: %w", bookingID, err)
	}
}

// CancelExpiration removes a booking's pending expiry task. A task that is
// already gone is not an error.
func (s *AsynqScheduler) CancelExpiration(ctx context.Context, bookingID string) error {
	err := s.inspector.DeleteTask(QueueExpirations, TaskID(bookingID))
	switch {
	case err == nil:
		metrics.ExpirationScheduling.WithLabelValues("cancel", "ok").Inc()
		return nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		metrics.ExpirationScheduling.WithLabelValues("cancel", "not_found").Inc()
		return nil
	default:
		metrics.ExpirationScheduling.WithLabelValues("cancel", "error").Inc()
		return fmt.Errorf("delete expiration of %s: %w", bookingID, err)
	}
}

// RegisterSweep adds the recurring sweep to a periodic scheduler.
func RegisterSweep(s *asynq.Scheduler, interval time.Duration) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	return s.Register(fmt.Sprintf("@every %s", interval), asynq.NewTask(TypeExpireSweep, nil),
		asynq.Queue(QueueExpirations),
		asynq.MaxRetry(0),
		asynq.Timeout(interval),
	)
}
