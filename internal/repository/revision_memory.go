package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/minseok/weft/internal/weft"
)

// MemoryRevisionRepository stores revisions in memory.
type MemoryRevisionRepository struct {
	mu        sync.RWMutex
	revisions map[string]*weft.Revision
}

func NewMemoryRevisionRepository() *MemoryRevisionRepository {
	return &MemoryRevisionRepository{revisions: make(map[string]*weft.Revision)}
}

func (r *MemoryRevisionRepository) Create(_ context.Context, rev *weft.Revision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rev
	r.revisions[rev.ID] = &cp
	return nil
}

func (r *MemoryRevisionRepository) Get(_ context.Context, id string) (*weft.Revision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rev, ok := r.revisions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rev
	return &cp, nil
}

func (r *MemoryRevisionRepository) ListByWorkflow(_ context.Context, workflowID string, limit, offset int) ([]*weft.Revision, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*weft.Revision
	for _, rev := range r.revisions {
		if rev.WorkflowID == workflowID {
			cp := *rev
			filtered = append(filtered, &cp)
		}
	}
	// Highest version first.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Version > filtered[j].Version
	})
	return paginate(filtered, limit, offset)
}

func (r *MemoryRevisionRepository) Latest(ctx context.Context, workflowID string) (*weft.Revision, error) {
	revs, _, err := r.ListByWorkflow(ctx, workflowID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, ErrNotFound
	}
	return revs[0], nil
}

func (r *MemoryRevisionRepository) DeleteByWorkflow(_ context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rev := range r.revisions {
		if rev.WorkflowID == workflowID {
			delete(r.revisions, id)
		}
	}
	return nil
}
