package repository

import (
	"context"
	"sync"

	"github.com/minseok/weft/internal/weft"
)

// MemoryEventRepository stores per-run event logs in memory. Appends
// for the same run serialize on the repository lock, so seq assignment
// is race-free even with concurrent writers.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string][]*weft.Event
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{events: make(map[string][]*weft.Event)}
}

func (r *MemoryEventRepository) Append(_ context.Context, ev *weft.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.events[ev.RunID]
	ev.Seq = int64(len(log)) + 1
	cp := *ev
	r.events[ev.RunID] = append(log, &cp)
	return nil
}

func (r *MemoryEventRepository) List(_ context.Context, runID string, limit, offset int) ([]*weft.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.events[runID]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(log) {
		return nil, nil
	}
	end := len(log)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]*weft.Event, 0, end-offset)
	for _, ev := range log[offset:end] {
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}
