//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-eventhub/internal/database/migrations"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
	"ms-eventhub/internal/promo/db"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "eventhub",
				"POSTGRES_PASSWORD": "eventhub",
				"POSTGRES_DB":       "eventhub",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://eventhub:eventhub@%s:%s/eventhub?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, sqldb.PingContext(ctx))

	runner := migrations.NewRunner(sqldb, migrations.Options{Dir: "../../../migrations"}, logger.NewNop())
	require.NoError(t, runner.Up())

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

// Concurrent purchases against a real Postgres row never exceed the usage limit.
func TestRedeemConcurrentPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)
	ctx := context.Background()

	_, err := bunDB.NewInsert().Model(&models.Venue{ID: "v1", Name: "Arena", Capacity: 500, CreatedAt: time.Now()}).Exec(ctx)
	require.NoError(t, err)
	_, err = bunDB.NewInsert().Model(&models.Event{
		ID: "e1", Title: "Finals", EventDate: time.Now().Add(240 * time.Hour), Price: 60, VenueID: "v1",
		PromoCode: "FINALS", DiscountPercentage: 15, UsageLimit: 10, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}).Exec(ctx)
	require.NoError(t, err)

	d := &db.DB{Bun: bunDB}
	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := d.Redeem(ctx, "e1", "finals")
			if assert.NoError(t, err) && ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), granted)
	count, err := d.UsageCount(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	require.NoError(t, d.Refund(ctx, "e1"))
	_, ok, err := d.Redeem(ctx, "e1", "FINALS")
	require.NoError(t, err)
	assert.True(t, ok, "a refunded slot can be redeemed again")
}
