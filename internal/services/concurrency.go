package services

import (
	"context"
	"sync"
	"sync/atomic"
)

// ConcurrencyLimiter bounds how many runs execute simultaneously with
// channel-based counting semaphores at two levels: system-wide and per
// workflow. Runs without a workflow (ad-hoc documents) only take a
// global slot.
type ConcurrencyLimiter struct {
	global      chan struct{}
	perWorkflow map[string]chan struct{}
	mu          sync.Mutex
	globalMax   int
	workflowMax int
	activeCount atomic.Int64
}

// NewConcurrencyLimiter creates a limiter. Non-positive limits fall
// back to 4 global and 2 per workflow.
func NewConcurrencyLimiter(globalMax, workflowMax int) *ConcurrencyLimiter {
	if globalMax <= 0 {
		globalMax = 4
	}
	if workflowMax <= 0 {
		workflowMax = 2
	}
	return &ConcurrencyLimiter{
		global:      make(chan struct{}, globalMax),
		perWorkflow: make(map[string]chan struct{}),
		globalMax:   globalMax,
		workflowMax: workflowMax,
	}
}

// Acquire blocks until a global slot and, when workflowID is set, a
// per-workflow slot are both held, or returns the context's error.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context, workflowID string) error {
	select {
	case c.global <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if workflowID == "" {
		c.activeCount.Add(1)
		return nil
	}

	wfCh := c.workflowChan(workflowID)
	select {
	case wfCh <- struct{}{}:
		c.activeCount.Add(1)
		return nil
	case <-ctx.Done():
		// Give the global slot back since the pair was not acquired.
		<-c.global
		return ctx.Err()
	}
}

// Release returns the slots taken by Acquire.
func (c *ConcurrencyLimiter) Release(workflowID string) {
	c.activeCount.Add(-1)

	if workflowID != "" {
		c.mu.Lock()
		if ch, ok := c.perWorkflow[workflowID]; ok {
			select {
			case <-ch:
			default:
			}
		}
		c.mu.Unlock()
	}

	select {
	case <-c.global:
	default:
	}
}

// ConcurrencyStats reports current usage.
type ConcurrencyStats struct {
	ActiveRuns  int `json:"active_runs"`
	GlobalMax   int `json:"global_max"`
	PerWorkflow int `json:"per_workflow"`
}

// Stats returns the current concurrency statistics.
func (c *ConcurrencyLimiter) Stats() ConcurrencyStats {
	return ConcurrencyStats{
		ActiveRuns:  int(c.activeCount.Load()),
		GlobalMax:   c.globalMax,
		PerWorkflow: c.workflowMax,
	}
}

func (c *ConcurrencyLimiter) workflowChan(id string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.perWorkflow[id]
	if !ok {
		ch = make(chan struct{}, c.workflowMax)
		c.perWorkflow[id] = ch
	}
	return ch
}
