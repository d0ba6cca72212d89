package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Sequencer hands out per-partition sequence numbers.
type Sequencer interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// DomainPublisher is the set of events this service emits. Publisher and
// NopPublisher implement it.
type DomainPublisher interface {
	PublishOrderPlaced(ctx context.Context, meta EventMeta, payload OrderPlacedPayload) error
	PublishPaymentVerified(ctx context.Context, meta EventMeta, payload PaymentVerifiedPayload) error
	PublishOrderExpired(ctx context.Context, meta EventMeta, payload OrderExpiredPayload) error
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher emits enveloped domain events to the topic exchange.
type Publisher struct {
	mu       sync.Mutex
	ch       channel
	seq      Sequencer
	producer string
	now      func() time.Time
}

func NewPublisher(conn *amqp.Connection, seq Sequencer, producer string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return newPublisher(ch, seq, producer), nil
}

func newPublisher(ch channel, seq Sequencer, producer string) *Publisher {
	if producer == "" {
		producer = defaultProducer
	}
	return &Publisher{ch: ch, seq: seq, producer: producer, now: time.Now}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishOrderPlaced(ctx context.Context, meta EventMeta, payload OrderPlacedPayload) error {
	return publish(ctx, p, meta, EventTypeOrderPlaced, orderPlacedSchema, OrderPlacedRoutingKey, payload)
}

func (p *Publisher) PublishPaymentVerified(ctx context.Context, meta EventMeta, payload PaymentVerifiedPayload) error {
	return publish(ctx, p, meta, EventTypePaymentVerified, paymentVerifiedSchema, PaymentVerifiedRoutingKey, payload)
}

func (p *Publisher) PublishOrderExpired(ctx context.Context, meta EventMeta, payload OrderExpiredPayload) error {
	return publish(ctx, p, meta, EventTypeOrderExpired, orderExpiredSchema, OrderExpiredRoutingKey, payload)
}

func publish[T any](ctx context.Context, p *Publisher, meta EventMeta, name, schema, routingKey string, payload T) error {
	seq, err := p.seq.NextSequence(ctx, meta.PartitionKey)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	env := newEnvelope(meta, seq, p.producer, name, schema, payload, p.now().UTC())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", name, err)
	}
	return p.publishJSON(ctx, routingKey, env.EventID, body)
}

func newEnvelope[T any](meta EventMeta, seq int64, producer, name, schema string, payload T, occurredAt time.Time) EventEnvelope[T] {
	return EventEnvelope[T]{
		EventName:     name,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producer,
		PartitionKey:  meta.PartitionKey,
		Sequence:      seq,
		OccurredAt:    occurredAt,
		Schema:        schema,
		Payload:       payload,
	}
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey, messageID string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Body:         body,
		},
	)
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPlaced(context.Context, EventMeta, OrderPlacedPayload) error {
	return nil
}

func (NopPublisher) PublishPaymentVerified(context.Context, EventMeta, PaymentVerifiedPayload) error {
	return nil
}

func (NopPublisher) PublishOrderExpired(context.Context, EventMeta, OrderExpiredPayload) error {
	return nil
}
