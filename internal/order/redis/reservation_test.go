package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client using miniredis for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}
	return client, mr
}

func cleanupTestRedis(client *redis.Client, mr *miniredis.Miniredis) {
	if client != nil {
		client.Close()
	}
	if mr != nil {
		mr.Close()
	}
}

func newTestReservations(t *testing.T, ttl time.Duration) (*Reservations, *time.Time) {
	client, mr := setupTestRedis(t)
	t.Cleanup(func() { cleanupTestRedis(client, mr) })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReservations(client, ttl)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestReserveWithinCapacity(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReservations(t, 30*time.Minute)

	h, err := r.Reserve(ctx, "e1", 3, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Quantity)
	assert.NotEmpty(t, h.ID)

	held, err := r.Held(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 3, held)

	// 5 sold + 3 held + 3 requested > 10
	_, err = r.Reserve(ctx, "e1", 3, 5, 10)
	assert.ErrorIs(t, err, ErrCapacityExhausted)

	_, err = r.Reserve(ctx, "e1", 2, 5, 10)
	require.NoError(t, err)
}

func TestReserveSoldOut(t *testing.T) {
	r, _ := newTestReservations(t, time.Minute)
	_, err := r.Reserve(context.Background(), "e1", 1, 10, 10)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestReleaseFreesSeats(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReservations(t, time.Minute)

	h, err := r.Reserve(ctx, "e1", 4, 0, 4)
	require.NoError(t, err)
	_, err = r.Reserve(ctx, "e1", 1, 0, 4)
	assert.ErrorIs(t, err, ErrCapacityExhausted)

	ok, err := r.Release(ctx, "e1", h.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Release(ctx, "e1", h.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Reserve(ctx, "e1", 4, 0, 4)
	require.NoError(t, err)
}

func TestExpiredHoldsArePruned(t *testing.T) {
	ctx := context.Background()
	r, now := newTestReservations(t, 10*time.Minute)

	_, err := r.Reserve(ctx, "e1", 2, 0, 2)
	require.NoError(t, err)

	*now = now.Add(11 * time.Minute)
	held, err := r.Held(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, held)

	_, err = r.Reserve(ctx, "e1", 2, 0, 2)
	require.NoError(t, err)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReservations(t, time.Minute)

	const capacity = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Reserve(ctx, "e1", 1, 0, capacity); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, capacity, granted)
}
