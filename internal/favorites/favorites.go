// Package favorites keeps the set of events each user follows.
package favorites

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
)

var ErrEventNotFound = errors.New("event not found")

type Store interface {
	Add(ctx context.Context, userID, eventID string) error
	Remove(ctx context.Context, userID, eventID string) error
	ListEvents(ctx context.Context, userID string) ([]models.Event, error)
}

type EventLookup interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

type Service struct {
	store  Store
	events EventLookup
	logger *logger.Logger
}

func NewService(store Store, events EventLookup, log *logger.Logger) *Service {
	return &Service{store: store, events: events, logger: log}
}

// Add marks eventID as a favorite of userID. Repeating it changes nothing.
func (s *Service) Add(ctx context.Context, userID, eventID string) error {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	if err := s.store.Add(ctx, userID, eventID); err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	s.logger.LogDatabase("UPSERT", "user_favorites", userID+"/"+eventID)
	return nil
}

// Remove succeeds whether or not the event was a favorite.
func (s *Service) Remove(ctx context.Context, userID, eventID string) error {
	if err := s.store.Remove(ctx, userID, eventID); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string) ([]models.Event, error) {
	return s.store.ListEvents(ctx, userID)
}
