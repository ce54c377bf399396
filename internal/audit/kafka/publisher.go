// Package kafka forwards audit records to a Kafka topic for the
// dashboard consumer. Produces are fire-and-forget with delivery
// logging; audit must never block or fail the dispatch path.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"payhook/internal/audit"
)

// Publisher produces audit records to a Kafka topic.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets the logger for delivery reports.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

// NewPublisher connects to the brokers and ensures the topic exists.
func NewPublisher(ctx context.Context, brokers []string, topic string, opts ...Option) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	p := &Publisher{
		client: client,
		topic:  topic,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.ensureTopic(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureTopic(ctx context.Context) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopic(ctx, 1, -1, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

// recordPayload is the wire format for audit records on the topic.
type recordPayload struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	RuleName  string `json:"rule_name"`
	Matched   bool   `json:"matched"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Append produces the record asynchronously, keyed by event identifier
// so records for one event stay ordered within a partition.
func (p *Publisher) Append(ctx context.Context, record audit.Record) error {
	payload, err := json.Marshal(recordPayload{
		ID:        record.ID.String(),
		EventID:   record.EventID,
		RuleName:  record.RuleName,
		Matched:   record.Matched,
		Outcome:   record.Outcome,
		Reason:    record.Reason,
		RequestID: record.RequestID,
		Timestamp: record.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	p.client.Produce(ctx, &kgo.Record{
		Key:   []byte(record.EventID),
		Value: payload,
	}, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit record delivery failed",
				"topic", p.topic, "event_id", record.EventID, "error", err)
		}
	})
	return nil
}

// Close flushes outstanding produces and releases the client.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
