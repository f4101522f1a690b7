package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher ships audit events to a Kafka topic, keyed by session so
// one flow's events stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithKafkaLogger injects a structured logger.
func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// NewKafkaPublisher connects to the brokers and ensures the topic exists.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	// Idempotent: CreateTopic on an existing topic reports an error we
	// tolerate below.
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		if !kadmTopicExists(err) {
			client.Close()
			return nil, fmt.Errorf("ensure topic %q: %w", topic, err)
		}
	}

	p := &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// kadmTopicExists reports whether the create failed only because the topic
// is already there. kadm surfaces TOPIC_ALREADY_EXISTS in the error text;
// good enough for a best-effort ensure.
func kadmTopicExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "TOPIC_ALREADY_EXISTS")
}

// Emit produces the event asynchronously. Delivery failures are logged; the
// flow is never blocked on the event pipeline.
func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.SessionID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event delivery failed",
				"kind", string(event.Kind),
				"session_id", event.SessionID,
				"error", err,
			)
		}
	})
	return nil
}

// Flush drains outstanding records; call before shutdown.
func (p *KafkaPublisher) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

// Close flushes and releases the client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
