package repository

import (
	"context"
	"fmt"

	"PortfolioHistory/internal/domain/models"
	domainrepo "PortfolioHistory/internal/domain/repository"
	pkgkafka "PortfolioHistory/pkg/kafka"
)

// batchWriter is the part of the Kafka producer the publisher needs.
type batchWriter interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher announces history updates on a topic keyed by dimension
// name, so updates of one dimension stay ordered on one partition. It also
// serves as the logger collector's publisher.
type KafkaPublisher struct {
	w     batchWriter
	topic string
}

var _ domainrepo.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(p *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: p, topic: topic}
}

func (p *KafkaPublisher) PublishHistoryUpdated(ctx context.Context, ev models.HistoryUpdated) error {
	msg := pkgkafka.Message{
		Key:     []byte(ev.Dimension.String()),
		Value:   ev,
		Headers: map[string]string{"trace_id": ev.RunID.String(), "event": "history_updated"},
	}
	if err := p.w.PublishBatch(ctx, p.topic, []pkgkafka.Message{msg}); err != nil {
		return fmt.Errorf("publish history update for %s: %w", ev.Dimension, err)
	}
	return nil
}

// PublishMessage sends an arbitrary JSON payload; used for aggregated log batches.
func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.w.PublishBatch(ctx, topic, []pkgkafka.Message{{Value: payload}})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// NopPublisher drops every event. It stands in when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishHistoryUpdated(context.Context, models.HistoryUpdated) error { return nil }
func (NopPublisher) PublishMessage(context.Context, string, interface{}) error { return nil }
func (NopPublisher) Close() error { return nil }
