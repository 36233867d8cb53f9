package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Domenick1991/ticketbooking/config"
	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

const eventsKey = "cache:events"

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

// EventCache keeps the public event listing. It is for display only; the
// reservation path always reads the locked row.
type EventCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewEventCache(client redis.Cmdable, ttl time.Duration) *EventCache {
	return &EventCache{client: client, ttl: ttl}
}

// GetEvents returns nil, nil on a cache miss.
func (c *EventCache) GetEvents(ctx context.Context) ([]domain.Event, error) {
	data, err := c.client.Get(ctx, eventsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *EventCache) SetEvents(ctx context.Context, events []domain.Event) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, eventsKey, payload, c.ttl).Err()
}

func (c *EventCache) InvalidateEvents(ctx context.Context) error {
	return c.client.Del(ctx, eventsKey).Err()
}
