package repository

import (
	"context"
	"time"

	"Argo/internal/domain/models"
	"Argo/internal/domain/repository"
	pkgkafka "Argo/pkg/kafka"
)

const (
	EventSignalCreated  = "signal.created"
	EventSignalResolved = "signal.resolved"
)

// SignalEvent is the wire form of a lifecycle event, keyed by symbol.
type SignalEvent struct {
	Type       string        `json:"type"`
	Signal     models.Signal `json:"signal"`
	EmittedAt  time.Time     `json:"emitted_at"`
	SignalHash string        `json:"signal_hash"`
}

type batchProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher streams signal lifecycle events to one topic.
type KafkaSignalPublisher struct {
	producer batchProducer
	topic    string
	now      func() time.Time
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return newKafkaSignalPublisher(producer, topic)
}

func newKafkaSignalPublisher(producer batchProducer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *KafkaSignalPublisher) event(typ string, s models.Signal) SignalEvent {
	return SignalEvent{Type: typ, Signal: s, EmittedAt: p.now().UTC(), SignalHash: s.ContentHash}
}

func (p *KafkaSignalPublisher) PublishCreated(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = pkgkafka.Message{Key: []byte(s.Symbol), Value: p.event(EventSignalCreated, s)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) PublishResolved(ctx context.Context, s models.Signal) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.Symbol), p.event(EventSignalResolved, s))
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopSignalPublisher is used when no broker is configured.
type NopSignalPublisher struct{}

func (NopSignalPublisher) PublishCreated(context.Context, []models.Signal) error { return nil }
func (NopSignalPublisher) PublishResolved(context.Context, models.Signal) error  { return nil }
func (NopSignalPublisher) Close() error                                         { return nil }

var (
	_ repository.SignalPublisher = (*KafkaSignalPublisher)(nil)
	_ repository.SignalPublisher = NopSignalPublisher{}
)
