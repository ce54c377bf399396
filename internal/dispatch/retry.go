package dispatch

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"payhook/pkg/platform/sentinel"
)

const (
	defaultMaxAttempts   = 3
	defaultBackoffBase   = 250 * time.Millisecond
	defaultProbeInterval = 30 * time.Second
)

// retryTransient runs fn up to maxAttempts times, sleeping with
// exponential backoff plus jitter between attempts. Only errors that
// carry sentinel.ErrTransient are retried; terminal errors and context
// cancellation return immediately.
func retryTransient(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrTransient) || attempt >= maxAttempts {
			return err
		}

		delay := base << (attempt - 1)
		delay += time.Duration(rand.Int64N(int64(delay / 2)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
