package repository

import (
	"context"

	"github.com/minseok/weft/internal/weft"
)

// WorkflowRepository abstracts workflow persistence so callers don't
// need to know whether storage is in-memory, SQLite, or PostgreSQL.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *weft.Workflow) error
	Get(ctx context.Context, id string) (*weft.Workflow, error)
	// List returns workflows newest-updated first.
	List(ctx context.Context, limit, offset int) ([]*weft.Workflow, int, error)
	Update(ctx context.Context, wf *weft.Workflow) error
	Delete(ctx context.Context, id string) error
}
