package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ms-eventhub/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// Redeem consumes one usage slot of the event's promo code in a single conditional
// update and returns the discount percentage stored on the row at that moment.
// ok is false when the code does not match or the limit is reached.
func (d *DB) Redeem(ctx context.Context, eventID, code string) (pct float64, ok bool, err error) {
	err = d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("usage_count = usage_count + 1").
		Where("id = ?", eventID).
		Where("promo_code <> ''").
		Where("lower(promo_code) = lower(?)", strings.TrimSpace(code)).
		Where("(usage_limit = 0 OR usage_count < usage_limit)").
		Returning("discount_percentage").
		Scan(ctx, &pct)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redeem promo: %w", err)
	}
	return pct, true, nil
}

// Refund gives back one slot. Used only when a redemption never reached the provider.
func (d *DB) Refund(ctx context.Context, eventID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("usage_count = usage_count - 1").
		Where("id = ?", eventID).
		Where("usage_count > 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("refund promo: %w", err)
	}
	return nil
}

// UsageCount reads the current counter.
func (d *DB) UsageCount(ctx context.Context, eventID string) (int, error) {
	var count int
	err := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Column("usage_count").
		Where("id = ?", eventID).
		Scan(ctx, &count)
	return count, err
}
