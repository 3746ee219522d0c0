package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/minseok/weft/internal/dag"
	"github.com/minseok/weft/internal/engine"
	"github.com/minseok/weft/internal/metrics"
	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/weft"
)

const maxEventPage = 2000

// StorageError reports a failure to durably append an event after a
// retry. The run fails; the trace up to the failure stays persisted.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("event append failed: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// CreateRunParams describes a run to start.
type CreateRunParams struct {
	RevisionID string
	Inputs     map[string]any
	Tags       []string
	GroupID    string
}

// runHandle is the in-process control block for one run: the
// cooperative cancel flag and a way to abort the queued wait for a
// concurrency slot.
type runHandle struct {
	cancelled atomic.Bool
	waitCtx   context.Context
	stopWait  context.CancelFunc
}

func (h *runHandle) requestCancel() {
	h.cancelled.Store(true)
	h.stopWait()
}

// RunService owns the run lifecycle: it compiles the revision, creates
// the record, executes the plan on a goroutine behind the concurrency
// limiter, persists every event, and drives the status machine
// queued → running → completed | failed | cancelled. Each run has a
// single writer goroutine; terminal states never change.
type RunService struct {
	runs      repository.RunRepository
	revisions repository.RevisionRepository
	events    repository.EventRepository
	engine    *engine.Engine
	manager   *RunManager
	limiter   *ConcurrencyLimiter

	baseCtx  context.Context
	stopRuns context.CancelFunc

	mu     sync.Mutex
	active map[string]*runHandle
	wg     sync.WaitGroup
}

func NewRunService(
	runs repository.RunRepository,
	revisions repository.RevisionRepository,
	events repository.EventRepository,
	eng *engine.Engine,
	manager *RunManager,
	limiter *ConcurrencyLimiter,
) *RunService {
	baseCtx, stopRuns := context.WithCancel(context.Background())
	return &RunService{
		runs:      runs,
		revisions: revisions,
		events:    events,
		engine:    eng,
		manager:   manager,
		limiter:   limiter,
		baseCtx:   baseCtx,
		stopRuns:  stopRuns,
		active:    make(map[string]*runHandle),
	}
}

// Create compiles the revision's document, persists a queued run, and
// starts executing it in the background. The returned run is the
// queued record; progress is observable through events.
func (s *RunService) Create(ctx context.Context, p CreateRunParams) (*weft.Run, error) {
	rev, err := s.revisions.Get(ctx, p.RevisionID)
	if err != nil {
		return nil, err
	}
	plan, err := dag.Compile(rev.Document)
	if err != nil {
		return nil, err
	}

	run := &weft.Run{
		ID:         weft.GenerateID("run"),
		WorkflowID: rev.WorkflowID,
		RevisionID: rev.ID,
		Status:     weft.RunStatusQueued,
		Inputs:     p.Inputs,
		Tags:       p.Tags,
		GroupID:    p.GroupID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.manager.Register(run.ID)

	waitCtx, stopWait := context.WithCancel(s.baseCtx)
	h := &runHandle{waitCtx: waitCtx, stopWait: stopWait}
	s.mu.Lock()
	s.active[run.ID] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(h, run, plan)

	slog.Info("run queued",
		"run_id", run.ID, "workflow_id", run.WorkflowID, "revision_id", run.RevisionID)
	return run, nil
}

func (s *RunService) Get(ctx context.Context, id string) (*weft.Run, error) {
	return s.runs.Get(ctx, id)
}

// List returns runs newest first. The page size is capped at 500.
func (s *RunService) List(ctx context.Context, filter weft.RunFilter) ([]*weft.Run, int, error) {
	if filter.Limit <= 0 || filter.Limit > maxListPage {
		filter.Limit = maxListPage
	}
	return s.runs.List(ctx, filter)
}

// ListEvents returns a run's persisted events in ascending seq order.
// The page size is capped at 2000.
func (s *RunService) ListEvents(ctx context.Context, runID string, limit, offset int) ([]*weft.Event, error) {
	if _, err := s.runs.Get(ctx, runID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	return s.events.List(ctx, runID, limit, offset)
}

// Subscribe attaches to a run's live event feed. See RunManager.Subscribe.
func (s *RunService) Subscribe(runID string, afterSeq int64) (events []*weft.Event, notify <-chan struct{}, done bool, donePayload map[string]any, found bool) {
	return s.manager.Subscribe(runID, afterSeq)
}

// Cancel requests cooperative cancellation. The run stops before its
// next step; cancelling a terminal run is a no-op. Cancel is
// idempotent.
func (s *RunService) Cancel(ctx context.Context, id string) (*weft.Run, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}

	if !run.CancelRequested {
		// Field-level write: the executor's concurrent whole-record
		// updates cannot clobber it, and it cannot regress the status
		// the executor persisted after our Get. The repository ignores
		// it if the run finished in the meantime.
		if err := s.runs.SetCancelRequested(ctx, id); err != nil {
			return nil, fmt.Errorf("update run: %w", err)
		}
		run.CancelRequested = true
	}

	s.mu.Lock()
	h, ok := s.active[id]
	s.mu.Unlock()
	if ok {
		h.requestCancel()
	}

	slog.Info("run cancel requested", "run_id", id)
	return run, nil
}

// Close cancels all in-flight runs at their next step boundary and
// waits for them to reach a terminal state.
func (s *RunService) Close() {
	s.stopRuns()
	s.wg.Wait()
}

// execute runs one plan to a terminal state. It is the only goroutine
// that writes this run's record after creation.
func (s *RunService) execute(h *runHandle, run *weft.Run, plan *dag.Plan) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.active, run.ID)
		s.mu.Unlock()
	}()
	defer h.stopWait()

	em := &emitter{events: s.events, manager: s.manager, handle: h, runID: run.ID}

	if err := s.limiter.Acquire(h.waitCtx, run.WorkflowID); err != nil {
		reason := "server shutting down"
		if h.cancelled.Load() {
			reason = "cancel requested"
		}
		s.finish(run, em, "", engine.ErrCancelled, reason)
		return
	}
	defer s.limiter.Release(run.WorkflowID)

	if h.cancelled.Load() {
		s.finish(run, em, "", engine.ErrCancelled, "cancel requested")
		return
	}

	now := time.Now().UTC()
	run.Status = weft.RunStatusRunning
	run.StartedAt = &now
	if err := s.runs.Update(s.baseCtx, run); err != nil {
		s.finish(run, em, "", fmt.Errorf("mark running: %w", err), "")
		return
	}
	metrics.RunsStarted.Inc()
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	output, err := s.engine.Execute(s.baseCtx, plan, run.Inputs, em)
	reason := ""
	if errors.Is(err, engine.ErrCancelled) || errors.Is(err, context.Canceled) {
		reason = "cancel requested"
		if !h.cancelled.Load() {
			reason = "server shutting down"
		}
	}
	s.finish(run, em, output, err, reason)
}

// finish settles the run: terminal event, record update, fan-out done
// signal, metrics. The engine emits run.completed itself; failed and
// cancelled terminals are emitted here, where the cause is known.
func (s *RunService) finish(run *weft.Run, em *emitter, output string, execErr error, reason string) {
	// Detached context: terminal bookkeeping must survive shutdown and
	// step deadlines.
	ctx := context.Background()
	now := time.Now().UTC()
	run.FinishedAt = &now

	switch {
	case execErr == nil:
		run.Status = weft.RunStatusCompleted
		run.FinalOutput = output
	case errors.Is(execErr, engine.ErrCancelled), errors.Is(execErr, context.Canceled):
		run.Status = weft.RunStatusCancelled
		run.CancelRequested = true
		if err := em.Emit(ctx, weft.EventRunCancelled, map[string]any{"reason": reason}); err != nil {
			slog.Error("emit run.cancelled", "run_id", run.ID, "err", err)
		}
	default:
		run.Status = weft.RunStatusFailed
		run.Error = execErr.Error()
		if err := em.Emit(ctx, weft.EventRunFailed, map[string]any{
			"error":      execErr.Error(),
			"error_type": classifyError(execErr),
		}); err != nil {
			slog.Error("emit run.failed", "run_id", run.ID, "err", err)
		}
	}

	if err := s.runs.Update(ctx, run); err != nil {
		slog.Error("persist terminal run state", "run_id", run.ID, "status", run.Status, "err", err)
	}

	metrics.RunsFinished.WithLabelValues(string(run.Status)).Inc()
	if run.StartedAt != nil {
		metrics.RunDuration.Observe(now.Sub(*run.StartedAt).Seconds())
	}

	payload := map[string]any{"run_id": run.ID, "status": string(run.Status)}
	if run.Status == weft.RunStatusCompleted {
		payload["final_output"] = run.FinalOutput
	}
	if run.Error != "" {
		payload["error"] = run.Error
	}
	s.manager.Finish(run.ID, payload)

	slog.Info("run finished", "run_id", run.ID, "status", run.Status)
}

// classifyError maps an execution failure to the error_type payload
// field of run.failed.
func classifyError(err error) string {
	var rejection *engine.GuardrailRejection
	var storage *StorageError
	switch {
	case errors.As(err, &rejection):
		return "guardrail_rejection"
	case errors.As(err, &storage):
		return "storage_error"
	default:
		return "execution_error"
	}
}

// emitter implements engine.EventSink for one run. Every event is
// durably appended (with one retry) before it is fanned out to live
// subscribers, so observers only ever see persisted events.
type emitter struct {
	events  repository.EventRepository
	manager *RunManager
	handle  *runHandle
	runID   string
}

// Cancelled reports the pending-cancel flag checked at step boundaries.
func (em *emitter) Cancelled(context.Context) bool {
	return em.handle.cancelled.Load()
}

// Emit persists the event and fans it out. A non-terminal emit for a
// cancel-requested run aborts the step with ErrCancelled; terminal
// events always go through.
func (em *emitter) Emit(ctx context.Context, typ weft.EventType, payload map[string]any) error {
	if !typ.Terminal() && em.handle.cancelled.Load() {
		return engine.ErrCancelled
	}

	ev := &weft.Event{
		ID:        uuid.NewString(),
		RunID:     em.runID,
		Type:      typ,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	// Persistence is detached from the step context: a timed-out step
	// must still get its trace written.
	pctx := context.WithoutCancel(ctx)
	if err := em.events.Append(pctx, ev); err != nil {
		slog.Warn("event append failed, retrying", "run_id", em.runID, "type", typ, "err", err)
		if err = em.events.Append(pctx, ev); err != nil {
			return &StorageError{Err: err}
		}
	}

	metrics.EventsAppended.Inc()
	switch typ {
	case weft.EventStepCompleted:
		metrics.StepsTotal.WithLabelValues("completed").Inc()
	case weft.EventStepFailed:
		metrics.StepsTotal.WithLabelValues("failed").Inc()
	}

	em.manager.Append(ev)
	return nil
}
