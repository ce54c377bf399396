package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("PAYMENT:143", "groceries")
	b := Fingerprint("PAYMENT:143", "groceries")
	assert.Equal(t, a, b, "same pairing must fingerprint identically")

	assert.NotEqual(t, a, Fingerprint("PAYMENT:143", "rent"))
	assert.NotEqual(t, a, Fingerprint("PAYMENT:144", "groceries"))

	// The separator keeps (id, rule) pairs from colliding by concatenation.
	assert.NotEqual(t, Fingerprint("a", "bc"), Fingerprint("ab", "c"))
}

func TestMemoryGuard_TryClaim(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	ctx := context.Background()

	claimed, err := g.TryClaim(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = g.TryClaim(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must lose")

	claimed, err = g.TryClaim(ctx, "fp-2")
	require.NoError(t, err)
	assert.True(t, claimed, "other fingerprints are unaffected")
}

func TestMemoryGuard_ExpiredClaimIsReclaimable(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	current := time.Now()
	g.now = func() time.Time { return current }

	claimed, err := g.TryClaim(context.Background(), "fp")
	require.NoError(t, err)
	require.True(t, claimed)

	current = current.Add(61 * time.Second)

	claimed, err = g.TryClaim(context.Background(), "fp")
	require.NoError(t, err)
	assert.True(t, claimed, "expired claim can be taken again")
}

func TestMemoryGuard_ConcurrentClaims(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	const goroutines = 50

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := g.TryClaim(context.Background(), "contested")
			assert.NoError(t, err)
			if claimed {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one claimant may win")
}

func newRedisGuard(t *testing.T, ttl time.Duration) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisGuard(client, ttl), mr
}

func TestRedisGuard_TryClaim(t *testing.T) {
	g, _ := newRedisGuard(t, time.Minute)
	ctx := context.Background()

	claimed, err := g.TryClaim(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = g.TryClaim(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRedisGuard_ClaimExpires(t *testing.T) {
	g, mr := newRedisGuard(t, time.Minute)
	ctx := context.Background()

	claimed, err := g.TryClaim(ctx, "fp")
	require.NoError(t, err)
	require.True(t, claimed)

	mr.FastForward(2 * time.Minute)

	claimed, err = g.TryClaim(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, claimed, "claim is reclaimable after the redelivery window")
}

func TestRedisGuard_ConcurrentClaims(t *testing.T) {
	g, _ := newRedisGuard(t, time.Minute)
	const goroutines = 20

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claimed, err := g.TryClaim(context.Background(), "contested")
			assert.NoError(t, err)
			if claimed {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
