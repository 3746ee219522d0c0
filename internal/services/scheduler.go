package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/weft"
)

// SchedulerService fires runs of a workflow's latest revision on cron
// expressions. It wraps robfig/cron; one cron entry per enabled
// schedule.
type SchedulerService struct {
	cron      *cron.Cron
	schedules repository.ScheduleRepository
	workflows *WorkflowService
	runs      *RunService
	entryMap  map[string]cron.EntryID // schedule ID → cron entry
	mu        sync.Mutex
}

func NewSchedulerService(schedules repository.ScheduleRepository, workflows *WorkflowService, runs *RunService) *SchedulerService {
	return &SchedulerService{
		cron:      cron.New(cron.WithSeconds()),
		schedules: schedules,
		workflows: workflows,
		runs:      runs,
		entryMap:  make(map[string]cron.EntryID),
	}
}

// Start registers all enabled schedules from the repository and begins
// firing them.
func (s *SchedulerService) Start(ctx context.Context) error {
	schedules, err := s.schedules.List(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}
		if err := s.registerCronJob(sched); err != nil {
			slog.Warn("scheduler: failed to register schedule", "schedule_id", sched.ID, "err", err)
		}
	}

	s.cron.Start()
	slog.Info("scheduler: started", "schedules", len(schedules))
	return nil
}

// Stop halts the cron scheduler and waits for in-flight jobs.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler: stopped")
}

// AddSchedule validates the cron expression and workflow, persists the
// schedule, and registers its cron entry when enabled.
func (s *SchedulerService) AddSchedule(ctx context.Context, workflowID, cronExpr string, inputs map[string]any, enabled bool) (*weft.Schedule, error) {
	if _, err := parseCronExpr(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	if _, err := s.workflows.Get(ctx, workflowID); err != nil {
		return nil, err
	}

	schedule := &weft.Schedule{
		ID:         weft.GenerateID("sched"),
		WorkflowID: workflowID,
		Cron:       cronExpr,
		Inputs:     inputs,
		Enabled:    enabled,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	if schedule.Enabled {
		if err := s.registerCronJob(schedule); err != nil {
			return nil, err
		}
	}
	return schedule, nil
}

// RemoveSchedule unregisters and deletes a schedule.
func (s *SchedulerService) RemoveSchedule(ctx context.Context, id string) error {
	if _, err := s.schedules.Get(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	if entryID, ok := s.entryMap[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entryMap, id)
	}
	s.mu.Unlock()

	if err := s.schedules.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	slog.Info("scheduler: schedule removed", "schedule_id", id)
	return nil
}

// ListSchedules returns all schedules.
func (s *SchedulerService) ListSchedules(ctx context.Context) ([]*weft.Schedule, error) {
	return s.schedules.List(ctx)
}

// registerCronJob parses the schedule's cron expression, registers a
// cron entry, and stores the resulting EntryID in entryMap.
func (s *SchedulerService) registerCronJob(schedule *weft.Schedule) error {
	cronSched, err := parseCronExpr(schedule.Cron)
	if err != nil {
		return err
	}

	entryID := s.cron.Schedule(cronSched, cron.FuncJob(func() {
		s.fire(schedule)
	}))

	s.mu.Lock()
	s.entryMap[schedule.ID] = entryID
	s.mu.Unlock()

	slog.Info("scheduler: registered cron job",
		"schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID, "cron", schedule.Cron)
	return nil
}

// fire is called by cron when a schedule triggers. The run executes on
// the workflow's latest revision; a workflow with no revision yet is
// skipped with a warning.
func (s *SchedulerService) fire(schedule *weft.Schedule) {
	ctx := context.Background()

	rev, err := s.workflows.LatestRevision(ctx, schedule.WorkflowID)
	if err != nil {
		slog.Warn("scheduler: no revision to run, skipping",
			"schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID, "err", err)
		return
	}

	run, err := s.runs.Create(ctx, CreateRunParams{
		RevisionID: rev.ID,
		Inputs:     schedule.Inputs,
		Tags:       []string{"scheduled"},
	})
	if err != nil {
		slog.Error("scheduler: failed to start run",
			"schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID, "err", err)
		return
	}
	slog.Info("scheduler: run started",
		"schedule_id", schedule.ID, "run_id", run.ID, "revision_id", rev.ID)
}

// parseCronExpr tries 6-field (with seconds) then standard 5-field
// parsing.
func parseCronExpr(expr string) (cron.Schedule, error) {
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser6.Parse(expr)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser5.Parse(expr)
}
