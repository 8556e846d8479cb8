package lineage

import (
	"context"
	"strings"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
)

// Entry is one lineage view of a workflow event: the event itself plus its
// change set, with each change classified as a field or contact change.
type Entry struct {
	Event   domain.WorkflowEvent `json:"event"`
	Changes []domain.ChangeEntry `json:"changes"`
}

// Trail is the full lineage of one request.
type Trail struct {
	RequestID    string  `json:"requestId"`
	Entries      []Entry `json:"history"`
	TotalChanges int     `json:"totalChanges"`
}

// Service builds read models over the immutable workflow event log.
type Service struct {
	events storage.EventStore
}

func NewService(events storage.EventStore) *Service {
	return &Service{events: events}
}

// History returns the raw event log for a request, newest first, with typed
// payloads already decoded by the store.
func (s *Service) History(ctx context.Context, requestID string) ([]domain.WorkflowEvent, error) {
	events, err := s.events.ListEvents(ctx, requestID)
	if err != nil {
		return nil, err
	}
	// The store returns chronological order; history views read newest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Lineage returns the event log enriched with per-event change sets. Change
// entries carried by UPDATE payloads are classified so viewers can separate
// profile edits from contact and document changes.
func (s *Service) Lineage(ctx context.Context, requestID string) (*Trail, error) {
	events, err := s.History(ctx, requestID)
	if err != nil {
		return nil, err
	}

	trail := &Trail{RequestID: requestID}
	for _, event := range events {
		entry := Entry{Event: event}
		if update, ok := event.Payload.(domain.UpdatePayload); ok {
			entry.Changes = classifyChanges(update.Changes)
		}
		trail.Entries = append(trail.Entries, entry)
	}
	trail.TotalChanges = len(trail.Entries)
	return trail, nil
}

// classifyChanges backfills the change kind for entries recorded before the
// kind tag existed, using the field-name convention the log has always used.
func classifyChanges(changes []domain.ChangeEntry) []domain.ChangeEntry {
	out := make([]domain.ChangeEntry, len(changes))
	for i, change := range changes {
		if change.Kind == "" {
			switch {
			case strings.HasPrefix(change.Field, "Contact:"):
				change.Kind = domain.ChangeContact
			case strings.HasPrefix(change.Field, "Document:"):
				change.Kind = domain.ChangeDocument
			default:
				change.Kind = domain.ChangeField
			}
		}
		out[i] = change
	}
	return out
}
