package repository

import (
	"context"

	"github.com/minseok/weft/internal/weft"
)

// RunRepository abstracts persistence for run records.
type RunRepository interface {
	Create(ctx context.Context, run *weft.Run) error
	Get(ctx context.Context, id string) (*weft.Run, error)
	// Update overwrites the stored record. Once the stored record has a
	// terminal status the update is a silent no-op, so a racing writer
	// can never resurrect a finished run. A stored cancel_requested flag
	// survives the overwrite: a writer holding a stale copy cannot clear
	// it.
	Update(ctx context.Context, run *weft.Run) error
	// SetCancelRequested marks the run's cancel flag without touching
	// any other field, so it cannot race with a concurrent whole-record
	// Update. Terminal runs are a silent no-op.
	SetCancelRequested(ctx context.Context, id string) error
	// List returns runs newest first, narrowed by the filter's non-zero
	// fields.
	List(ctx context.Context, filter weft.RunFilter) ([]*weft.Run, int, error)
}
