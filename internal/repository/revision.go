package repository

import (
	"context"

	"github.com/minseok/weft/internal/weft"
)

// RevisionRepository abstracts persistence for immutable workflow
// revisions. Revisions are only ever created and deleted alongside
// their workflow, never updated.
type RevisionRepository interface {
	Create(ctx context.Context, rev *weft.Revision) error
	Get(ctx context.Context, id string) (*weft.Revision, error)
	// ListByWorkflow returns revisions with the highest version first.
	ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*weft.Revision, int, error)
	// Latest returns the highest-version revision of a workflow.
	Latest(ctx context.Context, workflowID string) (*weft.Revision, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}
