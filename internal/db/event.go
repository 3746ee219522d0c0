package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/weft"
)

var _ repository.EventRepository = (*EventStore)(nil)

// EventStore persists the append-only event log. Append allocates the
// per-run sequence number inside the insert statement itself, so
// sequences are exactly 1..k with no gaps; UNIQUE(run_id, seq)
// backstops the allocation and a collision surfaces as an append error
// for the caller's retry.
type EventStore struct {
	db *DB
}

func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Append(ctx context.Context, ev *weft.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	err = s.db.Pool.QueryRowContext(ctx, s.db.q(
		`INSERT INTO events (id, run_id, seq, type, payload, created_at)
		 SELECT $1, $2, COALESCE((SELECT MAX(seq) FROM events WHERE run_id = $3), 0) + 1, $4, $5, $6
		 RETURNING seq`),
		ev.ID, ev.RunID, ev.RunID, string(ev.Type), string(payload), fmtTime(ev.CreatedAt),
	).Scan(&ev.Seq)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *EventStore) List(ctx context.Context, runID string, limit, offset int) ([]*weft.Event, error) {
	limit, offset = pageBounds(limit, offset)
	rows, err := s.db.Pool.QueryContext(ctx, s.db.q(
		`SELECT id, run_id, seq, type, payload, created_at
		 FROM events WHERE run_id = $1 ORDER BY seq ASC LIMIT $2 OFFSET $3`),
		runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*weft.Event
	for rows.Next() {
		var ev weft.Event
		var typ string
		var payload []byte
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Seq, &typ, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = weft.EventType(typ)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}
