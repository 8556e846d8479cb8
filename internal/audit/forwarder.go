package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"masterdata/internal/domain"
)

// Forwarder consumes workflow events from the recorder's outbox and publishes
// them to Kafka for downstream consumers. Forwarding is advisory: the store is
// the source of truth, and delivery failures are logged, not retried forever.
type Forwarder struct {
	client *kgo.Client
	topic  string
	inbox  <-chan domain.WorkflowEvent
	log    *slog.Logger
}

// NewForwarder connects a Kafka producer for the given brokers and topic.
func NewForwarder(brokers []string, topic string, inbox <-chan domain.WorkflowEvent, log *slog.Logger) (*Forwarder, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{client: client, topic: topic, inbox: inbox, log: log}, nil
}

// wireEvent is the published JSON shape. The payload is embedded as-is so
// consumers see the same structure the store holds.
type wireEvent struct {
	ID         string              `json:"id"`
	RequestID  string              `json:"requestId"`
	Action     domain.EventAction  `json:"action"`
	FromStatus string              `json:"fromStatus,omitempty"`
	ToStatus   string              `json:"toStatus,omitempty"`
	Actor      string              `json:"actor"`
	ActorRole  domain.Role         `json:"actorRole"`
	Note       string              `json:"note,omitempty"`
	Payload    domain.EventPayload `json:"payload,omitempty"`
	At         time.Time           `json:"at"`
}

// Run forwards events until the context is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-f.inbox:
			f.publish(ctx, event)
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, event domain.WorkflowEvent) {
	value, err := json.Marshal(wireEvent{
		ID:         event.ID,
		RequestID:  event.RequestID,
		Action:     event.Action,
		FromStatus: event.FromStatus,
		ToStatus:   event.ToStatus,
		Actor:      event.Actor,
		ActorRole:  event.ActorRole,
		Note:       event.Note,
		Payload:    event.Payload,
		At:         event.At,
	})
	if err != nil {
		f.log.Error("encode forwarded event", "event_id", event.ID, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(event.RequestID),
		Value: value,
	}
	f.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			f.log.Error("forward workflow event",
				"event_id", event.ID, "action", event.Action, "error", err)
		}
	})
}

// Close flushes pending produce batches and releases the client.
func (f *Forwarder) Close(ctx context.Context) error {
	if err := f.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	f.client.Close()
	return nil
}
