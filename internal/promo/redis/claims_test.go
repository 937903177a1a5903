package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Claims) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewClaims(client, 30*time.Minute)
}

func TestClaimPutHasTake(t *testing.T) {
	_, claims := setupTestRedis(t)
	ctx := context.Background()

	ok, err := claims.Put(ctx, "evt", "user", "save10")
	require.NoError(t, err)
	assert.True(t, ok)

	has, err := claims.Has(ctx, "evt", "user", "SAVE10")
	require.NoError(t, err)
	assert.True(t, has)

	took, err := claims.Take(ctx, "evt", "user", "Save10")
	require.NoError(t, err)
	assert.True(t, took)

	took, err = claims.Take(ctx, "evt", "user", "SAVE10")
	require.NoError(t, err)
	assert.False(t, took)
}

func TestClaimPutKeepsExisting(t *testing.T) {
	_, claims := setupTestRedis(t)
	ctx := context.Background()

	_, err := claims.Put(ctx, "evt", "user", "A")
	require.NoError(t, err)
	ok, err := claims.Put(ctx, "evt", "user", "A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimTakeWrongCodeLeavesClaim(t *testing.T) {
	_, claims := setupTestRedis(t)
	ctx := context.Background()

	_, err := claims.Put(ctx, "evt", "user", "A")
	require.NoError(t, err)

	took, err := claims.Take(ctx, "evt", "user", "B")
	require.NoError(t, err)
	assert.False(t, took)

	has, err := claims.Has(ctx, "evt", "user", "A")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestClaimExpires(t *testing.T) {
	mr, claims := setupTestRedis(t)
	ctx := context.Background()

	_, err := claims.Put(ctx, "evt", "user", "A")
	require.NoError(t, err)
	mr.FastForward(31 * time.Minute)

	has, err := claims.Has(ctx, "evt", "user", "A")
	require.NoError(t, err)
	assert.False(t, has)
}
