package events

import (
	"context"
	"fmt"
	"time"
)

// EventEnvelope is the common wrapper of every published event.
type EventEnvelope[T any] struct {
	EventName     string    `json:"eventName"`
	EventVersion  int       `json:"eventVersion"`
	EventID       string    `json:"eventId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CausationID   string    `json:"causationId,omitempty"`
	Producer      string    `json:"producer"`
	PartitionKey  string    `json:"partitionKey"`
	Sequence      int64     `json:"sequence"`
	OccurredAt    time.Time `json:"occurredAt"`
	Schema        string    `json:"schema"`
	Payload       T         `json:"payload"`
}

func (e EventEnvelope[T]) Validate(expectedName string, expectedVersion int) error {
	if e.EventName != expectedName {
		return fmt.Errorf("unexpected eventName: %s", e.EventName)
	}
	if e.EventVersion != expectedVersion {
		return fmt.Errorf("unexpected eventVersion: %d", e.EventVersion)
	}
	if e.PartitionKey == "" {
		return fmt.Errorf("missing partitionKey")
	}
	if e.Sequence <= 0 {
		return fmt.Errorf("missing sequence")
	}
	return nil
}

type EventMeta struct {
	CorrelationID string
	CausationID   string
	PartitionKey  string
}

type ctxKey struct{}

// WithCorrelationID stores the request correlation id for events emitted while serving it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// MetaFor builds event metadata for an order partition from ctx.
func MetaFor(ctx context.Context, orderID int64) EventMeta {
	return EventMeta{
		CorrelationID: CorrelationID(ctx),
		PartitionKey:  fmt.Sprintf("order-%d", orderID),
	}
}
