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

// ---------------- EVENTS ----------------

// GetEvent loads an event with its venue. Returns sql.ErrNoRows when absent.
func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Relation("Venue").
		Where("event.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Relation("Venue").
		Order("event.event_date ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	return events, err
}

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

// UpdatePromo replaces the promo settings. The usage counter restarts when the
// code changes. It returns false when the event is missing or the new limit is
// below the usage already recorded for an unchanged code.
func (d *DB) UpdatePromo(ctx context.Context, eventID, code string, pct float64, limit int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("usage_count = CASE WHEN lower(promo_code) = lower(?) THEN usage_count ELSE 0 END", code).
		Set("promo_code = ?", code).
		Set("discount_percentage = ?", pct).
		Set("usage_limit = ?", limit).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", eventID).
		Where("(? = 0 OR lower(promo_code) <> lower(?) OR usage_count <= ?)", limit, code, limit).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ---------------- VENUES ----------------

func (d *DB) GetVenue(ctx context.Context, id string) (*models.Venue, error) {
	var venue models.Venue
	err := d.Bun.NewSelect().
		Model(&venue).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &venue, nil
}

func (d *DB) CreateVenue(ctx context.Context, venue *models.Venue) error {
	_, err := d.Bun.NewInsert().Model(venue).Exec(ctx)
	return err
}
