package audit

import (
	"context"
	"log/slog"
	"time"

	"masterdata/internal/domain"
	"masterdata/internal/platform/metrics"
	"masterdata/internal/storage"
	"masterdata/pkg/ids"
	txcontext "masterdata/pkg/platform/tx"
)

// Recorder appends workflow events to the store and mirrors them to an
// outbox channel for asynchronous forwarding. The database append runs in
// the caller's transaction and is authoritative; the channel send is
// best-effort, never blocks a command, and is deferred until the
// transaction commits so rolled-back events are never forwarded.
type Recorder struct {
	events  storage.EventStore
	ids     ids.Generator
	metrics *metrics.Metrics
	log     *slog.Logger
	outbox  chan<- domain.WorkflowEvent
}

// NewRecorder builds a recorder. outbox may be nil when no forwarder is wired.
func NewRecorder(events storage.EventStore, gen ids.Generator, m *metrics.Metrics, log *slog.Logger, outbox chan<- domain.WorkflowEvent) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{events: events, ids: gen, metrics: m, log: log, outbox: outbox}
}

// Record persists one event, assigning ID and timestamp when unset.
func (r *Recorder) Record(ctx context.Context, event domain.WorkflowEvent) error {
	if event.ID == "" {
		event.ID = r.ids.NewID()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := r.events.AppendEvent(ctx, &event); err != nil {
		return err
	}
	r.metrics.IncrementEventsRecorded()

	if r.outbox == nil {
		return nil
	}
	if hooks, ok := txcontext.HooksFrom(ctx); ok {
		hooks.Add(func() { r.forward(event) })
		return nil
	}
	r.forward(event)
	return nil
}

func (r *Recorder) forward(event domain.WorkflowEvent) {
	select {
	case r.outbox <- event:
	default:
		r.log.Warn("audit outbox full, dropping forwarded event",
			"event_id", event.ID, "action", event.Action)
	}
}
