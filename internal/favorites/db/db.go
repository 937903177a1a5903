package db

import (
	"context"
	"time"

	"ms-eventhub/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// Add is a no-op when the pair already exists.
func (d *DB) Add(ctx context.Context, userID, eventID string) error {
	_, err := d.Bun.NewInsert().
		Model(&models.UserFavorite{UserID: userID, EventID: eventID, CreatedAt: time.Now().UTC()}).
		On("CONFLICT (user_id, event_id) DO NOTHING").
		Exec(ctx)
	return err
}

// Remove is a no-op when the pair is absent.
func (d *DB) Remove(ctx context.Context, userID, eventID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.UserFavorite)(nil)).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Exec(ctx)
	return err
}

func (d *DB) ListEvents(ctx context.Context, userID string) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Relation("Venue").
		Join("JOIN user_favorites AS uf ON uf.event_id = event.id").
		Where("uf.user_id = ?", userID).
		Scan(ctx)
	return events, err
}

func (d *DB) IsFavorite(ctx context.Context, userID, eventID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.UserFavorite)(nil)).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Exists(ctx)
}
