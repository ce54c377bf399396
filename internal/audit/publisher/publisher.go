// Package publisher is the recorder the engine writes through. It can
// append synchronously or hand records to a buffered background worker
// so slow sinks never stall event processing.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"payhook/internal/audit"
)

// ErrBufferFull is returned when the async buffer cannot accept more
// records. The record is dropped; audit is side-effect-only.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher appends audit records to a sink.
type Publisher struct {
	sink   audit.Sink
	logger *slog.Logger

	inbox chan audit.Record
	wg    sync.WaitGroup
	once  sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables background appending with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Record, size)
	}
}

// WithLogger sets the logger for append failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

// NewPublisher creates a publisher for the sink. Without options it
// appends synchronously.
func NewPublisher(sink audit.Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:   sink,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.inbox != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for record := range p.inbox {
		if err := p.sink.Append(context.Background(), record); err != nil {
			p.logger.Error("audit append failed",
				"event_id", record.EventID, "rule", record.RuleName, "error", err)
		}
	}
}

// Emit appends one record, stamping ID and timestamp when unset. In
// async mode a full buffer drops the record with ErrBufferFull.
func (p *Publisher) Emit(ctx context.Context, record audit.Record) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	if p.inbox == nil {
		return p.sink.Append(ctx, record)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- record:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close drains the async buffer and stops the worker. Safe to call
// more than once.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.once.Do(func() {
		close(p.inbox)
	})
	p.wg.Wait()
}
