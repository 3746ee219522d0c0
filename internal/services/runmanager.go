package services

import (
	"sync"
	"time"

	"github.com/minseok/weft/internal/weft"
)

const defaultBufferTTL = 5 * time.Minute

// runEntry holds the live state for a single run: buffered events in
// seq order, completion status, and subscriber wakeup channels.
type runEntry struct {
	mu          sync.RWMutex
	events      []*weft.Event
	done        bool
	donePayload map[string]any // closing frame payload (status, run_id, final_output or error)
	subs        []chan struct{} // closed-and-replaced on each append (fan-out wakeup)
	finishedAt  time.Time
}

// snapshot returns buffered events with seq greater than afterSeq,
// registers a subscriber wakeup channel, and reports the done state.
// Registration happens in the same critical section as the copy, so an
// append racing with a subscribe either lands in the snapshot or wakes
// the new channel; it can never be missed.
func (e *runEntry) snapshot(afterSeq int64) (events []*weft.Event, notify <-chan struct{}, done bool, donePayload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ev := range e.events {
		if ev.Seq > afterSeq {
			events = append(events, ev)
		}
	}

	ch := make(chan struct{})
	e.subs = append(e.subs, ch)
	return events, ch, e.done, e.donePayload
}

// RunManager tracks in-flight and recently finished runs with a
// per-run event buffer and subscriber fan-out. Events enter the buffer
// only after they are durably persisted, carrying their store-assigned
// seq, so a subscriber merging buffered and live events by seq never
// sees a gap or a duplicate.
type RunManager struct {
	mu   sync.RWMutex
	runs map[string]*runEntry
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// NewRunManager creates a RunManager that keeps finished run buffers
// around for the given TTL before garbage-collecting them. Zero ttl
// selects the default of five minutes.
func NewRunManager(ttl time.Duration) *RunManager {
	if ttl <= 0 {
		ttl = defaultBufferTTL
	}
	rm := &RunManager{
		runs: make(map[string]*runEntry),
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	go rm.gc()
	return rm
}

// Stop terminates the GC goroutine.
func (rm *RunManager) Stop() {
	rm.once.Do(func() { close(rm.stop) })
}

// Register creates the live buffer for a run. Call before the run's
// first event is appended.
func (rm *RunManager) Register(runID string) {
	rm.mu.Lock()
	rm.runs[runID] = &runEntry{}
	rm.mu.Unlock()
}

// Append adds a persisted event to its run's buffer and wakes all
// subscribers. Unknown runs are ignored.
func (rm *RunManager) Append(ev *weft.Event) {
	rm.mu.RLock()
	entry, ok := rm.runs[ev.RunID]
	rm.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	entry.events = append(entry.events, ev)
	subs := entry.subs
	entry.subs = nil
	entry.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// Finish marks a run done with the payload for the stream's closing
// frame and wakes all subscribers. The buffer stays available to late
// subscribers until the TTL expires.
func (rm *RunManager) Finish(runID string, payload map[string]any) {
	rm.mu.RLock()
	entry, ok := rm.runs[runID]
	rm.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	entry.done = true
	entry.donePayload = payload
	entry.finishedAt = time.Now()
	subs := entry.subs
	entry.subs = nil
	entry.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// Subscribe returns buffered events with seq greater than afterSeq, a
// wakeup channel that is closed when the buffer changes, and the run's
// done state. found is false when the run is not tracked, either
// because it never started here or its buffer was already collected;
// callers then fall back to the persisted log.
func (rm *RunManager) Subscribe(runID string, afterSeq int64) (events []*weft.Event, notify <-chan struct{}, done bool, donePayload map[string]any, found bool) {
	rm.mu.RLock()
	entry, ok := rm.runs[runID]
	rm.mu.RUnlock()
	if !ok {
		return nil, nil, false, nil, false
	}

	events, notify, done, donePayload = entry.snapshot(afterSeq)
	return events, notify, done, donePayload, true
}

// gc periodically drops finished run buffers older than the TTL.
func (rm *RunManager) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case <-ticker.C:
			rm.collectExpired()
		}
	}
}

func (rm *RunManager) collectExpired() {
	now := time.Now()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for id, entry := range rm.runs {
		entry.mu.RLock()
		expired := entry.done && now.Sub(entry.finishedAt) > rm.ttl
		entry.mu.RUnlock()
		if expired {
			delete(rm.runs, id)
		}
	}
}
