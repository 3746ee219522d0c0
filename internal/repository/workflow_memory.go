package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/minseok/weft/internal/weft"
)

// MemoryWorkflowRepository stores workflows in memory.
type MemoryWorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[string]*weft.Workflow
}

func NewMemoryWorkflowRepository() *MemoryWorkflowRepository {
	return &MemoryWorkflowRepository{workflows: make(map[string]*weft.Workflow)}
}

func (r *MemoryWorkflowRepository) Create(_ context.Context, wf *weft.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *wf
	r.workflows[wf.ID] = &cp
	return nil
}

func (r *MemoryWorkflowRepository) Get(_ context.Context, id string) (*weft.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (r *MemoryWorkflowRepository) List(_ context.Context, limit, offset int) ([]*weft.Workflow, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*weft.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		cp := *wf
		all = append(all, &cp)
	}
	// Newest-updated first.
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	return paginate(all, limit, offset)
}

func (r *MemoryWorkflowRepository) Update(_ context.Context, wf *weft.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	cp := *wf
	r.workflows[wf.ID] = &cp
	return nil
}

func (r *MemoryWorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(r.workflows, id)
	return nil
}

// paginate slices a sorted result set, returning the page and the total
// count before paging. A non-positive limit means no limit.
func paginate[T any](all []T, limit, offset int) ([]T, int, error) {
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
