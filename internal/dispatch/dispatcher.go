// Package dispatch executes the action attached to a matched rule:
// it claims the idempotency fingerprint, renders the provider payload,
// and invokes the bank client under per-account serialization with
// bounded retry.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"payhook/internal/bank"
	"payhook/internal/dispatch/metrics"
	"payhook/internal/event"
	"payhook/internal/idempotency"
	"payhook/internal/rules"
	"payhook/pkg/platform/circuit"
)

// BankClient is the provider API surface the dispatcher needs.
type BankClient interface {
	CreateMoneyRequest(ctx context.Context, userID, accountID string, req bank.MoneyRequest) error
	TransferPayment(ctx context.Context, userID, accountID string, order bank.PaymentOrder) error
	ListAccounts(ctx context.Context, userID string) ([]bank.Account, error)
}

// Dispatcher turns matched rules into provider calls.
type Dispatcher struct {
	guard       idempotency.Guard
	client      BankClient
	breaker     *circuit.Breaker
	logger      *slog.Logger
	metrics     *metrics.Metrics
	locks       *accountLocks
	maxAttempts int
	backoffBase time.Duration

	probeMu       sync.Mutex
	nextProbe     time.Time
	probeInterval time.Duration
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithBreaker sets the circuit breaker guarding provider calls.
func WithBreaker(b *circuit.Breaker) Option {
	return func(d *Dispatcher) {
		d.breaker = b
	}
}

// WithRetry overrides the maximum attempt count and backoff base.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxAttempts = maxAttempts
		d.backoffBase = base
	}
}

// WithProbeInterval sets how often one trial call may go through while
// the breaker is open.
func WithProbeInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		d.probeInterval = interval
	}
}

// New creates a Dispatcher.
func New(guard idempotency.Guard, client BankClient, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		guard:       guard,
		client:      client,
		breaker:     circuit.New("bank-api"),
		logger:      slog.New(slog.DiscardHandler),
		locks:       newAccountLocks(),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,

		probeInterval: defaultProbeInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes the rule's action for the matched event. The
// fingerprint is claimed before the remote call so a crash between
// claim and call can never double-execute; a dispatch that then fails
// permanently stays claimed and is surfaced for manual review.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, def rules.Definition, ev *event.Event) Outcome {
	start := time.Now()
	outcome := d.dispatch(ctx, userID, def, ev)
	d.metrics.IncrementOutcome(string(def.Action.Type), string(outcome.Status))
	d.metrics.ObserveDispatchLatency(time.Since(start))

	logger := d.logger.With(
		"event_id", ev.ID(),
		"rule", def.Name,
		"action", def.Action.Type,
		"status", outcome.Status)
	if outcome.Status == StatusFailed {
		logger.ErrorContext(ctx, "dispatch failed", "reason", outcome.Reason)
	} else {
		logger.InfoContext(ctx, "dispatch finished", "reason", outcome.Reason)
	}
	return outcome
}

func (d *Dispatcher) dispatch(ctx context.Context, userID string, def rules.Definition, ev *event.Event) Outcome {
	fingerprint := idempotency.Fingerprint(ev.ID(), def.Name)

	// An open breaker fails fast before the claim: a short circuit that
	// never reached the provider must not cost the event its one claim,
	// so redelivery after recovery still dispatches. While open, one
	// trial call per probe window goes through; its success closes the
	// breaker again.
	probe := false
	if def.Action.Type != rules.ActionDummy && !def.Action.DryRun && d.breaker.IsOpen() {
		if !d.allowProbe() {
			return failed("circuit breaker open")
		}
		probe = true
	}

	claimed, err := d.guard.TryClaim(ctx, fingerprint)
	if err != nil {
		return failed(fmt.Sprintf("idempotency claim: %v", err))
	}
	if !claimed {
		return skippedDuplicate()
	}

	// DUMMY audits the match without touching the provider.
	if def.Action.Type == rules.ActionDummy {
		if def.Action.DryRun {
			return dryRun()
		}
		return dispatched()
	}

	// A dry run renders without touching the provider, so the account
	// list stays nil and the own-accounts restriction is not checked.
	if def.Action.DryRun {
		p, skipReason, err := render(def.Action, ev, nil)
		if err != nil {
			return failed(fmt.Sprintf("render payload: %v", err))
		}
		if skipReason != "" {
			return skipped(skipReason)
		}
		d.logger.InfoContext(ctx, "dry run",
			"rule", def.Name,
			"action", p.action,
			"account_id", p.accountID,
			"amount", p.amount.Value,
			"counterparty_iban", p.counterparty.IBAN,
			"description", p.description)
		return dryRun()
	}

	accounts, err := d.client.ListAccounts(ctx, userID)
	if err != nil {
		return failed(fmt.Sprintf("list accounts: %v", err))
	}

	p, skipReason, err := render(def.Action, ev, accounts)
	if err != nil {
		return failed(fmt.Sprintf("render payload: %v", err))
	}
	if skipReason != "" {
		return skipped(skipReason)
	}

	// A probe gets a single attempt; retrying against a dependency that
	// just tripped the breaker only prolongs the outage.
	maxAttempts := d.maxAttempts
	if probe {
		maxAttempts = 1
	}

	release := d.locks.acquire(userID + "/" + p.accountID)
	defer release()

	if err := d.call(ctx, userID, p, maxAttempts); err != nil {
		return failed(err.Error())
	}
	return dispatched()
}

// allowProbe grants at most one trial call per probe window while the
// breaker is open.
func (d *Dispatcher) allowProbe() bool {
	d.probeMu.Lock()
	defer d.probeMu.Unlock()
	now := time.Now()
	if now.Before(d.nextProbe) {
		return false
	}
	d.nextProbe = now.Add(d.probeInterval)
	return true
}

// armProbe starts a fresh probe window when the breaker opens, so the
// first trial waits out the full interval.
func (d *Dispatcher) armProbe() {
	d.probeMu.Lock()
	d.nextProbe = time.Now().Add(d.probeInterval)
	d.probeMu.Unlock()
}

// call invokes the provider operation for the payload with bounded
// retry, feeding the circuit breaker on each attempt.
func (d *Dispatcher) call(ctx context.Context, userID string, p *payload, maxAttempts int) error {
	attempts := 0
	return retryTransient(ctx, maxAttempts, d.backoffBase, func() error {
		attempts++
		if attempts > 1 {
			d.metrics.IncrementRetries(string(p.action))
			d.logger.InfoContext(ctx, "retrying provider call",
				"action", p.action, "attempt", attempts)
		}

		var err error
		switch p.action {
		case rules.ActionRequestFromExpense:
			err = d.client.CreateMoneyRequest(ctx, userID, p.accountID, bank.MoneyRequest{
				Amount:       p.amount,
				Counterparty: p.counterparty,
				Description:  p.description,
			})
		default:
			err = d.client.TransferPayment(ctx, userID, p.accountID, bank.PaymentOrder{
				Amount:       p.amount,
				Counterparty: p.counterparty,
				Description:  p.description,
			})
		}

		if err != nil {
			if _, change := d.breaker.RecordFailure(); change.Opened {
				d.armProbe()
				d.logger.WarnContext(ctx, "circuit breaker opened", "breaker", d.breaker.Name())
			}
			return err
		}
		if _, change := d.breaker.RecordSuccess(); change.Closed {
			d.logger.InfoContext(ctx, "circuit breaker closed", "breaker", d.breaker.Name())
		}
		return nil
	})
}
