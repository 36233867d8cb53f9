// Package lock provides short-lived, key-scoped mutual exclusion backed by
// Redis, shared by every process that talks to the same Redis.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/Domenick1991/ticketbooking/internal/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can keep others out.
const DefaultTTL = 5 * time.Second

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL ran out cannot drop the lock of the next holder.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Locker hands out one token per successful acquisition. Release only
// drops the lock while it is still held under that token.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool)
	Release(ctx context.Context, key, token string)
}

type RedisLocker struct {
	client   redis.Cmdable
	logger   *slog.Logger
	newToken func() string
}

type Option func(*RedisLocker)

func WithLogger(logger *slog.Logger) Option {
	return func(l *RedisLocker) {
		l.logger = logger
	}
}

// WithTokenSource replaces the random lock token generator.
func WithTokenSource(fn func() string) Option {
	return func(l *RedisLocker) {
		l.newToken = fn
	}
}

func NewRedisLocker(client redis.Cmdable, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client:   client,
		logger:   slog.Default(),
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire performs SET key token NX PX ttl. Any store error counts as not
// acquired.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		l.logger.Warn("lock acquire failed", "key", key, "error", err)
		metrics.LockAcquisitions.WithLabelValues("error").Inc()
		return "", false
	}
	if !ok {
		metrics.LockAcquisitions.WithLabelValues("busy").Inc()
		return "", false
	}
	metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
	return token, true
}

// Release is best-effort: errors are logged and the TTL cleans up.
func (l *RedisLocker) Release(ctx context.Context, key, token string) {
	if token == "" {
		return
	}

	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		l.logger.Warn("lock release failed", "key", key, "error", err)
	}
}

// WithLock runs fn while holding key. It fails fast with domain.ErrLockBusy
// when the lock is held elsewhere; the lock is released on every exit path
// of fn, panics included.
func WithLock[T any](ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	token, ok := l.Acquire(ctx, key, ttl)
	if !ok {
		return zero, fmt.Errorf("%w: %s", domain.ErrLockBusy, key)
	}
	defer l.Release(context.WithoutCancel(ctx), key, token)

	return fn(ctx)
}

// EventKey scopes a lock to a single event's inventory.
func EventKey(eventID string) string {
	return "lock:event:" + eventID
}

var _ Locker = (*RedisLocker)(nil)
