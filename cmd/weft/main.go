package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/minseok/weft/internal/api"
	"github.com/minseok/weft/internal/backend"
	"github.com/minseok/weft/internal/config"
	"github.com/minseok/weft/internal/db"
	"github.com/minseok/weft/internal/engine"
	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/services"
	"github.com/minseok/weft/internal/tools"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serve()
		return
	}
	fmt.Println("weft v0.1.0")
	fmt.Println("Usage: weft serve")
}

func serve() {
	// .env is optional; real env vars still win inside config.Load.
	_ = godotenv.Load()

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})))

	ctx := context.Background()

	stores, database, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("storage error", "driver", cfg.Database.Driver, "err", err)
		os.Exit(1)
	}

	backends := backend.NewRegistry()
	backends.Register(&backend.Echo{})

	toolReg := tools.NewRegistry()

	eng := engine.New(backends, toolReg, cfg.Engine.MaxTurns)
	eng.SetStepTimeout(cfg.Engine.StepTimeout)

	manager := services.NewRunManager(0)
	limiter := services.NewConcurrencyLimiter(cfg.Engine.MaxConcurrentRuns, cfg.Engine.PerWorkflowRuns)

	workflowSvc := services.NewWorkflowService(stores.workflows, stores.revisions)
	runSvc := services.NewRunService(stores.runs, stores.revisions, stores.events, eng, manager, limiter)
	schedulerSvc := services.NewSchedulerService(stores.schedules, workflowSvc, runSvc)

	if cfg.Scheduler.Enabled {
		if err := schedulerSvc.Start(ctx); err != nil {
			slog.Error("scheduler start error", "err", err)
			os.Exit(1)
		}
	}

	srv := api.NewServer(workflowSvc, runSvc)
	srv.SetSchedulerService(schedulerSvc)
	srv.SetConcurrencyLimiter(limiter)
	srv.SetToolRegistry(toolReg)
	srv.SetCORSOrigins(cfg.Server.CORSOrigins)

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Handler(),
	}

	go func() {
		slog.Info("starting weft server",
			"addr", httpSrv.Addr, "driver", cfg.Database.Driver)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
	}

	if cfg.Scheduler.Enabled {
		schedulerSvc.Stop()
	}
	// Close cancels in-flight runs at their next step boundary and waits
	// for their terminal events to persist.
	runSvc.Close()
	manager.Stop()

	if database != nil {
		if err := database.Close(); err != nil {
			slog.Error("database close error", "err", err)
		}
	}

	slog.Info("shutdown complete")
}

// stores bundles the repository wiring picked by the database driver.
type stores struct {
	workflows repository.WorkflowRepository
	revisions repository.RevisionRepository
	runs      repository.RunRepository
	events    repository.EventRepository
	schedules repository.ScheduleRepository
}

func openStores(ctx context.Context, cfg *config.Config) (stores, *db.DB, error) {
	if cfg.Database.Driver == "memory" {
		return stores{
			workflows: repository.NewMemoryWorkflowRepository(),
			revisions: repository.NewMemoryRevisionRepository(),
			runs:      repository.NewMemoryRunRepository(),
			events:    repository.NewMemoryEventRepository(),
			schedules: repository.NewMemoryScheduleRepository(),
		}, nil, nil
	}

	database, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return stores{}, nil, fmt.Errorf("migrate: %w", err)
	}

	return stores{
		workflows: db.NewWorkflowStore(database),
		revisions: db.NewRevisionStore(database),
		runs:      db.NewRunStore(database),
		events:    db.NewEventStore(database),
		schedules: db.NewScheduleStore(database),
	}, database, nil
}
