package bank

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"payhook/pkg/platform/sentinel"
)

// APIError is a non-2xx response from the provider API. It unwraps to
// sentinel.ErrTransient or sentinel.ErrTerminal so callers can decide
// whether a retry is worthwhile with errors.Is.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bank api: status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests {
		return sentinel.ErrTransient
	}
	return sentinel.ErrTerminal
}

// classify maps transport-level failures onto the sentinel taxonomy.
// Timeouts and connection resets are worth retrying; everything else
// from the HTTP stack is treated as terminal.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", sentinel.ErrTransient, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", sentinel.ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", sentinel.ErrTerminal, err)
}
