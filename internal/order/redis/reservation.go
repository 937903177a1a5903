package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrCapacityExhausted = errors.New("not enough seats left")

// Seat holds of one event live in a ZSET scored by expiry (ms) and a HASH of
// quantities, both keyed by hold id. Expired holds are pruned by every script.
const pruneLua = `
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('HDEL', KEYS[2], id)
end
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local held = 0
for _, q in ipairs(redis.call('HVALS', KEYS[2])) do
	held = held + tonumber(q)
end
`

// ARGV: now, expiresAt, holdId, quantity, sold, capacity, ttlMs
var reserveScript = redis.NewScript(pruneLua + `
local qty = tonumber(ARGV[4])
if tonumber(ARGV[5]) + held + qty > tonumber(ARGV[6]) then
	return -1
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[3], qty)
redis.call('PEXPIRE', KEYS[1], ARGV[7])
redis.call('PEXPIRE', KEYS[2], ARGV[7])
return held + qty
`)

// ARGV: now
var heldScript = redis.NewScript(pruneLua + `
return held
`)

// Reservations places short-lived seat holds so concurrent checkouts cannot
// oversell an event.
type Reservations struct {
	Client *redis.Client
	TTL    time.Duration
	now    func() time.Time
}

func NewReservations(client *redis.Client, ttl time.Duration) *Reservations {
	return &Reservations{Client: client, TTL: ttl, now: time.Now}
}

type Hold struct {
	ID        string
	EventID   string
	Quantity  int
	ExpiresAt time.Time
}

func holdKeys(eventID string) []string {
	return []string{"holds:" + eventID, "hold_qty:" + eventID}
}

// Reserve holds quantity seats when sold, live holds and quantity fit in
// capacity. It returns ErrCapacityExhausted otherwise.
func (r *Reservations) Reserve(ctx context.Context, eventID string, quantity, sold, capacity int) (*Hold, error) {
	now := r.now()
	hold := &Hold{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Quantity:  quantity,
		ExpiresAt: now.Add(r.TTL),
	}

	res, err := reserveScript.Run(ctx, r.Client, holdKeys(eventID),
		now.UnixMilli(), hold.ExpiresAt.UnixMilli(), hold.ID, quantity, sold, capacity, r.TTL.Milliseconds(),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("reserve seats for %s: %w", eventID, err)
	}
	if res < 0 {
		return nil, ErrCapacityExhausted
	}
	return hold, nil
}

// Release drops a hold. Unknown or expired holds are ignored.
func (r *Reservations) Release(ctx context.Context, eventID, holdID string) (bool, error) {
	if holdID == "" {
		return false, nil
	}
	keys := holdKeys(eventID)
	pipe := r.Client.TxPipeline()
	zrem := pipe.ZRem(ctx, keys[0], holdID)
	pipe.HDel(ctx, keys[1], holdID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("release hold %s: %w", holdID, err)
	}
	return zrem.Val() > 0, nil
}

// Held sums the live holds of an event.
func (r *Reservations) Held(ctx context.Context, eventID string) (int, error) {
	n, err := heldScript.Run(ctx, r.Client, holdKeys(eventID), r.now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("count holds for %s: %w", eventID, err)
	}
	return n, nil
}
