package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is a process-local guard for tests and single-node development.
// It provides the same linearizable claim semantics within one process; use
// RedisGuard when deliveries fan out across instances.
type MemoryGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryGuard builds an in-memory guard. A non-positive ttl falls back to
// DefaultClaimTTL.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &MemoryGuard{
		claims: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TryClaim claims the fingerprint unless a live claim exists. Expired claims
// are reclaimed in place.
func (g *MemoryGuard) TryClaim(_ context.Context, fingerprint string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, held := g.claims[fingerprint]; held && now.Before(expiry) {
		return false, nil
	}
	g.claims[fingerprint] = now.Add(g.ttl)
	return true, nil
}
