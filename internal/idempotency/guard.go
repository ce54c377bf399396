// Package idempotency tracks which (event, rule) pairs have already produced
// a dispatched action, so webhook redeliveries never re-execute a side
// effect. Claims are optimistic: a fingerprint is marked before the remote
// call, and a failed dispatch keeps its claim (at-most-once over
// at-least-once delivery).
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultClaimTTL covers the provider's maximum redelivery window. Claims
// older than this may be evicted without risking duplicate dispatch.
const DefaultClaimTTL = 7 * 24 * time.Hour

// Fingerprint derives the deterministic claim key for one (event, rule)
// pairing. The same event delivered twice yields the same fingerprint for
// the same rule.
func Fingerprint(eventID, ruleName string) string {
	sum := sha256.Sum256([]byte(eventID + "\x00" + ruleName))
	return hex.EncodeToString(sum[:])
}

// Guard atomically checks-and-marks fingerprints. TryClaim returns true only
// to the caller that claims the fingerprint first; concurrent claims for the
// same fingerprint are arbitrated by the backing store.
type Guard interface {
	TryClaim(ctx context.Context, fingerprint string) (bool, error)
}
