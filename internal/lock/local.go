package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is a single-process Locker with the same fail-fast and TTL
// semantics as RedisLocker. It only excludes callers sharing the value.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localHold
	now  func() time.Time
}

type localHold struct {
	token    string
	deadline time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.deadline) {
		return "", false
	}
	token := uuid.NewString()
	l.held[key] = localHold{token: token, deadline: now.Add(ttl)}
	return token, true
}

// Release is a no-op once another holder has taken key over.
func (l *LocalLocker) Release(_ context.Context, key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
}

var _ Locker = (*LocalLocker)(nil)
