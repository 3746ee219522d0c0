package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/minseok/weft/internal/weft"
)

// MemoryScheduleRepository stores schedules in memory.
type MemoryScheduleRepository struct {
	mu        sync.RWMutex
	schedules map[string]*weft.Schedule
}

func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{schedules: make(map[string]*weft.Schedule)}
}

func (r *MemoryScheduleRepository) Create(_ context.Context, s *weft.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.schedules[s.ID] = &cp
	return nil
}

func (r *MemoryScheduleRepository) Get(_ context.Context, id string) (*weft.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryScheduleRepository) List(_ context.Context) ([]*weft.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*weft.Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		cp := *s
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

func (r *MemoryScheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(r.schedules, id)
	return nil
}
