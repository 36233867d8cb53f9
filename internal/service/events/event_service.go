package events

import (
	"context"
	"log/slog"

	"github.com/Domenick1991/ticketbooking/internal/domain"
)

type EventUseCase interface {
	List(ctx context.Context) ([]domain.Event, error)
	GetByID(ctx context.Context, id string) (*domain.Event, error)
}

type EventReader interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
}

type Cache interface {
	GetEvents(ctx context.Context) ([]domain.Event, error)
	SetEvents(ctx context.Context, events []domain.Event) error
}

type EventService struct {
	repo   EventReader
	cache  Cache
	logger *slog.Logger
}

type Option func(*EventService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *EventService) {
		s.logger = logger
	}
}

// NewEventService accepts a nil cache; listings then always hit the store.
func NewEventService(repo EventReader, cache Cache, opts ...Option) *EventService {
	s := &EventService{repo: repo, cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EventService) List(ctx context.Context) ([]domain.Event, error) {
	if s.cache != nil {
		cached, err := s.cache.GetEvents(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "event cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetEvents(ctx, events); err != nil {
			s.logger.WarnContext(ctx, "event cache write failed", "error", err)
		}
	}
	return events, nil
}

func (s *EventService) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	return s.repo.GetEvent(ctx, id)
}

var _ EventUseCase = (*EventService)(nil)
