package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"payhook/pkg/platform/sentinel"
)

const keyPrefix = "payhook:claim:"

// RedisGuard backs claims with a shared redis instance. SET NX is a single
// linearizable operation on the server, so concurrent deliveries across
// processes are arbitrated by redis rather than by check-then-set races.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard builds a guard over client. A non-positive ttl falls back to
// DefaultClaimTTL.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

// TryClaim claims the fingerprint if nobody holds it. The claim value is the
// claim time, which makes stuck claims diagnosable from redis directly.
func (g *RedisGuard) TryClaim(ctx context.Context, fingerprint string) (bool, error) {
	claimed, err := g.client.SetNX(ctx, keyPrefix+fingerprint, time.Now().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: claim %s: %v", sentinel.ErrUnavailable, fingerprint, err)
	}
	return claimed, nil
}
