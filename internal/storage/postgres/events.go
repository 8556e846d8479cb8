package postgres

import (
	"context"
	"fmt"

	"masterdata/internal/domain"
)

func (s *Store) AppendEvent(ctx context.Context, event *domain.WorkflowEvent) error {
	payload, err := domain.EncodePayload(event.Payload)
	if err != nil {
		return err
	}
	query := `INSERT INTO workflow_events
		(id, request_id, action, from_status, to_status, actor, actor_role, note, payload, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID, event.RequestID, event.Action, event.FromStatus, event.ToStatus,
		event.Actor, event.ActorRole, event.Note, payload, event.At,
	)
	if err != nil {
		return fmt.Errorf("insert workflow event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, requestID string) ([]domain.WorkflowEvent, error) {
	query := `SELECT id, request_id, action, from_status, to_status, actor, actor_role, note, payload, at
		FROM workflow_events WHERE request_id = $1 ORDER BY at, id`
	rows, err := s.execer(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query workflow events: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkflowEvent
	for rows.Next() {
		var (
			event   domain.WorkflowEvent
			payload []byte
		)
		err := rows.Scan(
			&event.ID, &event.RequestID, &event.Action, &event.FromStatus, &event.ToStatus,
			&event.Actor, &event.ActorRole, &event.Note, &payload, &event.At,
		)
		if err != nil {
			return nil, fmt.Errorf("scan workflow event: %w", err)
		}
		if event.Payload, err = domain.DecodePayload(event.Action, payload); err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow events: %w", err)
	}
	return out, nil
}
