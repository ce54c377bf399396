package rules

import (
	"sync/atomic"

	"payhook/internal/event"
)

// Store holds the loaded rule set and answers which rules listen to an event
// type. Reads are lock-free; reloads swap the whole slice atomically so
// concurrent evaluators never observe a partially-updated set.
type Store struct {
	defs atomic.Pointer[[]Definition]
}

// NewStore builds a store around an already-validated rule set.
func NewStore(defs []Definition) *Store {
	s := &Store{}
	s.Swap(defs)
	return s
}

// Candidates returns the rules whose action subscribes to the event type, in
// declaration order. Every subscribed rule is returned; matching one rule
// never prunes the others.
func (s *Store) Candidates(t event.Type) []Definition {
	defs := *s.defs.Load()
	var out []Definition
	for _, def := range defs {
		if def.Action.ListensTo(t) {
			out = append(out, def)
		}
	}
	return out
}

// All returns the full rule set in declaration order.
func (s *Store) All() []Definition {
	return *s.defs.Load()
}

// Swap atomically replaces the entire rule set. The caller must pass a fully
// validated set; partial mutation of a live set is not supported.
func (s *Store) Swap(defs []Definition) {
	copied := make([]Definition, len(defs))
	copy(copied, defs)
	s.defs.Store(&copied)
}
