package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/ticketbooking/config"
	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []domain.Event {
	return []domain.Event{{
		ID:               "e-1",
		Title:            "Concert",
		Venue:            "Arena",
		EventDate:        time.Date(2027, 1, 10, 20, 0, 0, 0, time.UTC),
		TotalTickets:     100,
		AvailableTickets: 60,
		SoldTickets:      30,
		TicketPriceCents: 5000,
		IsActive:         true,
	}}
}

func TestEventCache_GetEvents_Miss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewEventCache(client, time.Minute)

	mock.ExpectGet(eventsKey).RedisNil()

	events, err := c.GetEvents(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventCache_GetEvents_Hit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewEventCache(client, time.Minute)

	payload, err := json.Marshal(sampleEvents())
	require.NoError(t, err)
	mock.ExpectGet(eventsKey).SetVal(string(payload))

	events, err := c.GetEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleEvents(), events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventCache_GetEvents_Error(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewEventCache(client, time.Minute)

	mock.ExpectGet(eventsKey).SetErr(errors.New("connection refused"))

	_, err := c.GetEvents(context.Background())
	assert.Error(t, err)
}

func TestEventCache_SetEvents(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewEventCache(client, 30*time.Second)

	payload, err := json.Marshal(sampleEvents())
	require.NoError(t, err)
	mock.ExpectSet(eventsKey, payload, 30*time.Second).SetVal("OK")

	assert.NoError(t, c.SetEvents(context.Background(), sampleEvents()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventCache_InvalidateEvents(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewEventCache(client, time.Minute)

	mock.ExpectDel(eventsKey).SetVal(1)

	assert.NoError(t, c.InvalidateEvents(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisClient(t *testing.T) {
	client := NewRedisClient(config.RedisConfig{Addr: "localhost:6379", DB: 2})
	defer client.Close()

	var _ redis.Cmdable = client
	assert.Equal(t, "localhost:6379", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
}
