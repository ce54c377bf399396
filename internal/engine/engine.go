// Package engine ties the pipeline together: candidate rules for an
// event are evaluated, matches are dispatched, and every evaluation is
// audited.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"payhook/internal/audit"
	"payhook/internal/dispatch"
	"payhook/internal/engine/metrics"
	"payhook/internal/event"
	"payhook/internal/rules"
	"payhook/pkg/requestcontext"
)

// Dispatcher executes the action of a matched rule.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, def rules.Definition, ev *event.Event) dispatch.Outcome
}

// Recorder accepts one audit record per (event, rule) evaluation.
type Recorder interface {
	Emit(ctx context.Context, record audit.Record) error
}

// Engine processes events against the loaded rule set. It holds no
// mutable state of its own; evaluation is pure and all shared state
// lives behind the dispatcher and recorder.
type Engine struct {
	store      *rules.Store
	evaluator  *rules.Evaluator
	dispatcher Dispatcher
	recorder   Recorder
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
		e.evaluator = rules.NewEvaluator(l)
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine.
func New(store *rules.Store, dispatcher Dispatcher, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		evaluator:  rules.NewEvaluator(nil),
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs every candidate rule against the event. Rules are
// isolated from each other: a failure in one never prevents the rest
// from running.
func (e *Engine) Process(ctx context.Context, userID string, ev *event.Event) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveProcessLatency(time.Since(start))
	}()
	e.metrics.IncrementEvents(string(ev.Category()))

	candidates := e.store.Candidates(ev.Type())
	e.logger.InfoContext(ctx, "processing event",
		"event_id", ev.ID(),
		"event_type", ev.Type(),
		"candidates", len(candidates))

	for _, def := range candidates {
		e.processRule(ctx, userID, def, ev)
	}
}

// processRule evaluates one rule and dispatches on match, emitting
// exactly one audit record for the (event, rule) pair.
func (e *Engine) processRule(ctx context.Context, userID string, def rules.Definition, ev *event.Event) {
	// matched stays false until evaluation completes, so a panic raised
	// before or during evaluation is not recorded as a match.
	var matched bool
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "rule processing panicked",
				"event_id", ev.ID(), "rule", def.Name, "panic", r)
			e.emit(ctx, ev, def, matched, dispatch.Outcome{
				Status: dispatch.StatusFailed,
				Reason: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	matched = e.evaluator.Evaluate(&def.Rule, ev)
	e.metrics.IncrementEvaluations(matched)

	if !matched {
		e.emit(ctx, ev, def, false, dispatch.Outcome{})
		return
	}

	outcome := e.dispatcher.Dispatch(ctx, userID, def, ev)
	e.emit(ctx, ev, def, true, outcome)
}

func (e *Engine) emit(ctx context.Context, ev *event.Event, def rules.Definition, matched bool, outcome dispatch.Outcome) {
	record := audit.Record{
		EventID:   ev.ID(),
		RuleName:  def.Name,
		Matched:   matched,
		Outcome:   string(outcome.Status),
		Reason:    outcome.Reason,
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx).UTC(),
	}
	if err := e.recorder.Emit(ctx, record); err != nil {
		e.logger.ErrorContext(ctx, "audit emit failed",
			"event_id", ev.ID(), "rule", def.Name, "error", err)
	}
}
