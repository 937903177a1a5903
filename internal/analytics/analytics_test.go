package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-eventhub/internal/analytics"
	"ms-eventhub/internal/events"
	"ms-eventhub/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type eventStub map[string]*models.Event

func (s eventStub) GetEvent(_ context.Context, id string) (*models.Event, error) {
	if e, ok := s[id]; ok {
		return e, nil
	}
	return nil, events.ErrEventNotFound
}

func setup(t *testing.T) (*bun.DB, *analytics.Service) {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	_, err = bunDB.NewCreateTable().Model((*models.Ticket)(nil)).Exec(context.Background())
	require.NoError(t, err)

	ev := eventStub{"e1": {
		ID: "e1", Title: "Gig", OrganizerID: "org", PromoCode: "VIP", DiscountPercentage: 15,
		UsageLimit: 10, UsageCount: 3, Venue: &models.Venue{Capacity: 20},
	}}
	return bunDB, analytics.NewService(analytics.NewDB(bunDB), ev)
}

func insertTicket(t *testing.T, db *bun.DB, qty int, total float64, kind string, at time.Time) {
	t.Helper()
	_, err := db.NewInsert().Model(&models.Ticket{
		ID: uuid.NewString(), UserID: "u1", EventID: "e1", SessionID: uuid.NewString(),
		Quantity: qty, UnitPrice: total / float64(qty), AmountTotal: total, DiscountType: kind,
		Codes: []string{}, PurchaseDate: at, DeliveryStatus: models.DeliveryPending,
	}).Exec(context.Background())
	require.NoError(t, err)
}

func TestGetEventAnalytics(t *testing.T) {
	db, svc := setup(t)
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	insertTicket(t, db, 2, 80, "none", day1)
	insertTicket(t, db, 5, 160, "group", day1)
	insertTicket(t, db, 1, 34, "promo", day2)

	got, err := svc.GetEventAnalytics(context.Background(), "e1", "org")
	require.NoError(t, err)

	assert.Equal(t, 3, got.TotalOrders)
	assert.Equal(t, 8, got.TotalTicketsSold)
	assert.Equal(t, 274.0, got.TotalRevenue)
	assert.Equal(t, 12, got.SeatsLeft)
	assert.Equal(t, 40.0, got.PercentSold)
	require.NotNil(t, got.Promo)
	assert.Equal(t, 3, got.Promo.UsageCount)

	require.Len(t, got.DailySales, 2)
	assert.Equal(t, "2026-03-01", got.DailySales[0].Date)
	assert.Equal(t, 7, got.DailySales[0].TicketsSold)
	assert.Equal(t, 240.0, got.DailySales[0].Revenue)

	require.Len(t, got.DiscountUsage, 3)
	assert.Equal(t, "group", got.DiscountUsage[0].DiscountType)
	assert.Equal(t, 5, got.DiscountUsage[0].Tickets)
}

func TestGetEventAnalyticsEmpty(t *testing.T) {
	_, svc := setup(t)

	got, err := svc.GetEventAnalytics(context.Background(), "e1", "org")
	require.NoError(t, err)
	assert.Zero(t, got.TotalTicketsSold)
	assert.Equal(t, 20, got.SeatsLeft)
	assert.Empty(t, got.DailySales)
}

func TestGetEventAnalyticsAccess(t *testing.T) {
	_, svc := setup(t)

	_, err := svc.GetEventAnalytics(context.Background(), "e1", "someone")
	assert.ErrorIs(t, err, analytics.ErrForbidden)

	_, err = svc.GetEventAnalytics(context.Background(), "nope", "org")
	assert.ErrorIs(t, err, events.ErrEventNotFound)
}
