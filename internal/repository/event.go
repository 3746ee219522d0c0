package repository

import (
	"context"

	"github.com/minseok/weft/internal/weft"
)

// EventRepository abstracts the append-only event log. Append assigns
// the event's Seq: per run, sequence numbers are exactly 1..k with no
// gaps or reuse. Events are never updated or deleted.
type EventRepository interface {
	// Append persists the event and fills in ev.Seq atomically for its
	// run.
	Append(ctx context.Context, ev *weft.Event) error
	// List returns a run's events in ascending seq order.
	List(ctx context.Context, runID string, limit, offset int) ([]*weft.Event, error)
}
