// Package audit records every rule evaluation and dispatch outcome.
// Records are append-only and side-effect-only: a sink failure is
// logged, never propagated into engine control flow.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one evaluation or dispatch outcome for an (event, rule) pair.
type Record struct {
	ID        uuid.UUID
	EventID   string
	RuleName  string
	Matched   bool
	Outcome   string
	Reason    string
	RequestID string
	Timestamp time.Time
}

// Sink accepts records for persistence or forwarding.
type Sink interface {
	Append(ctx context.Context, record Record) error
}

// Store is a sink that can also be queried, used by the dashboard
// consumer and by tests.
type Store interface {
	Sink
	ListByEvent(ctx context.Context, eventID string) ([]Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// Fanout appends each record to every sink. The first error is
// returned after all sinks have been attempted.
type Fanout []Sink

func (f Fanout) Append(ctx context.Context, record Record) error {
	var first error
	for _, sink := range f {
		if err := sink.Append(ctx, record); err != nil && first == nil {
			first = err
		}
	}
	return first
}
