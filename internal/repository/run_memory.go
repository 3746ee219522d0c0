package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/minseok/weft/internal/weft"
)

const maxRunRecords = 1000

// MemoryRunRepository stores run records in memory with FIFO eviction.
type MemoryRunRepository struct {
	mu    sync.RWMutex
	runs  map[string]*weft.Run
	order []string // insertion order for FIFO eviction
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]*weft.Run)}
}

func (r *MemoryRunRepository) Create(_ context.Context, run *weft.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// FIFO eviction when at capacity.
	if len(r.order) >= maxRunRecords {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.runs, oldest)
	}

	cp := *run
	r.runs[run.ID] = &cp
	r.order = append(r.order, run.ID)
	return nil
}

func (r *MemoryRunRepository) Get(_ context.Context, id string) (*weft.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *MemoryRunRepository) Update(_ context.Context, run *weft.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[run.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.Terminal() {
		return nil
	}
	cp := *run
	// The cancel flag is monotonic; a stale copy cannot clear it.
	if stored.CancelRequested {
		cp.CancelRequested = true
	}
	r.runs[run.ID] = &cp
	return nil
}

func (r *MemoryRunRepository) SetCancelRequested(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.Terminal() {
		return nil
	}
	stored.CancelRequested = true
	return nil
}

func (r *MemoryRunRepository) List(_ context.Context, filter weft.RunFilter) ([]*weft.Run, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*weft.Run
	for _, run := range r.runs {
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.RevisionID != "" && run.RevisionID != filter.RevisionID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		cp := *run
		filtered = append(filtered, &cp)
	}

	// Newest first.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	return paginate(filtered, filter.Limit, filter.Offset)
}
