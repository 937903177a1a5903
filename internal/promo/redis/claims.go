package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Claims remembers that a user already spent a promo slot through validation,
// so the following purchase can reuse it instead of redeeming again.
type Claims struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClaims(client *redis.Client, ttl time.Duration) *Claims {
	return &Claims{client: client, ttl: ttl}
}

func claimKey(eventID, userID string) string {
	return fmt.Sprintf("promo_claim:%s:%s", eventID, userID)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Put records a claim for code. An existing claim is kept and its TTL left alone.
func (c *Claims) Put(ctx context.Context, eventID, userID, code string) (bool, error) {
	return c.client.SetNX(ctx, claimKey(eventID, userID), normalize(code), c.ttl).Result()
}

// Has reports whether a live claim for code exists.
func (c *Claims) Has(ctx context.Context, eventID, userID, code string) (bool, error) {
	val, err := c.client.Get(ctx, claimKey(eventID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == normalize(code), nil
}

// Take consumes the claim. It returns true only when the stored code matches.
// A claim for a different code is left in place.
func (c *Claims) Take(ctx context.Context, eventID, userID, code string) (bool, error) {
	res, err := takeScript.Run(ctx, c.client, []string{claimKey(eventID, userID)}, normalize(code)).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

var takeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)
