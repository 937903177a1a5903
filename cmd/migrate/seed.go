package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
)

// seedData inserts a small demo catalogue. Rows that already exist are kept.
func seedData(ctx context.Context, dsn string, log *logger.Logger) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		return fmt.Errorf("connect for seeding: %w", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())

	now := time.Now().UTC()

	users := []models.User{
		{ID: "user001", Email: "alice@example.com", FullName: "Alice Wonderland", CreatedAt: now},
		{ID: "user002", Email: "bob@example.com", FullName: "Bob Builder", CreatedAt: now},
	}
	venues := []models.Venue{
		{ID: "venue001", Name: "Dasharath Stadium", Address: "Tripureshwor, Kathmandu", Capacity: 100, CreatedAt: now},
		{ID: "venue002", Name: "Patan Durbar Square", Address: "Lalitpur", Capacity: 40, CreatedAt: now},
	}
	events := []models.Event{
		{
			ID:                 "event001",
			Title:              "Summer Fest 2025",
			Description:        "Annual summer music festival.",
			Category:           "music",
			EventDate:          now.AddDate(0, 1, 0),
			Price:              100,
			VenueID:            "venue001",
			OrganizerID:        "user002",
			PromoCode:          "SUMMER20",
			DiscountPercentage: 20,
			UsageLimit:         50,
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		{
			ID:          "event002",
			Title:       "Heritage Night Walk",
			Description: "Guided evening tour.",
			Category:    "culture",
			EventDate:   now.AddDate(0, 0, 2),
			Price:       50,
			VenueID:     "venue002",
			OrganizerID: "user002",
			PromoCode:   "SAVE10",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}

	rows := []struct {
		name  string
		model interface{}
	}{
		{"users", &users},
		{"venues", &venues},
		{"events", &events},
	}
	for _, r := range rows {
		res, err := db.NewInsert().Model(r.model).On("CONFLICT (id) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("seed %s: %w", r.name, err)
		}
		n, _ := res.RowsAffected()
		log.Info("SEED", fmt.Sprintf("%s: %d row(s) inserted", r.name, n))
	}
	return nil
}
