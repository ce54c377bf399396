package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, clients, and other
// infrastructure layers return these (optionally wrapped) so callers can
// classify failures without inspecting provider-specific error shapes.
//
// - ErrTransient: call may succeed if retried (timeout, 5xx)
// - ErrTerminal: call will never succeed as issued (validation, 4xx)
// - ErrUnavailable: dependency temporarily refusing work (circuit open,
//   store unreachable)
var (
	ErrTransient   = errors.New("transient")
	ErrTerminal    = errors.New("terminal")
	ErrUnavailable = errors.New("unavailable")
)
