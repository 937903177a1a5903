package analytics

import (
	"context"

	"ms-eventhub/internal/models"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// SalesTotals is the aggregate over all purchases of one event.
type SalesTotals struct {
	Orders  int     `bun:"orders"`
	Tickets int     `bun:"tickets"`
	Revenue float64 `bun:"revenue"`
}

// Totals sums the paid purchases of an event.
func (db *DB) Totals(ctx context.Context, eventID string) (SalesTotals, error) {
	var t SalesTotals
	err := db.bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(quantity), 0) AS tickets").
		ColumnExpr("COALESCE(SUM(amount_total), 0) AS revenue").
		Where("event_id = ?", eventID).
		Scan(ctx, &t)
	return t, err
}

// DailySales groups purchases by calendar day of purchase.
func (db *DB) DailySales(ctx context.Context, eventID string) ([]DailySalesMetrics, error) {
	var rows []DailySalesMetrics
	err := db.bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("CAST(DATE(purchase_date) AS TEXT) AS sales_date").
		ColumnExpr("COALESCE(SUM(amount_total), 0) AS daily_revenue").
		ColumnExpr("COALESCE(SUM(quantity), 0) AS tickets_sold_on_date").
		Where("event_id = ?", eventID).
		GroupExpr("DATE(purchase_date)").
		OrderExpr("sales_date").
		Scan(ctx, &rows)
	return rows, err
}

// DiscountUsage groups purchases by the discount that was applied.
func (db *DB) DiscountUsage(ctx context.Context, eventID string) ([]DiscountUsage, error) {
	var rows []DiscountUsage
	err := db.bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("COALESCE(discount_type, 'none') AS discount_type").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(quantity), 0) AS tickets").
		ColumnExpr("COALESCE(SUM(amount_total), 0) AS revenue").
		Where("event_id = ?", eventID).
		GroupExpr("COALESCE(discount_type, 'none')").
		OrderExpr("discount_type").
		Scan(ctx, &rows)
	return rows, err
}
