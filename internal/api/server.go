// Package api exposes the HTTP surface: document validation and
// compilation, workflow and revision management, run execution with
// live SSE streaming, and cron schedules.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minseok/weft/internal/services"
	"github.com/minseok/weft/internal/tools"
)

type Server struct {
	workflowSvc  *services.WorkflowService
	runSvc       *services.RunService
	schedulerSvc *services.SchedulerService
	limiter      *services.ConcurrencyLimiter
	toolReg      *tools.Registry
	corsOrigins  []string
}

func NewServer(workflowSvc *services.WorkflowService, runSvc *services.RunService) *Server {
	return &Server{workflowSvc: workflowSvc, runSvc: runSvc}
}

// SetSchedulerService enables the schedule endpoints.
func (s *Server) SetSchedulerService(svc *services.SchedulerService) {
	s.schedulerSvc = svc
}

// SetConcurrencyLimiter exposes limiter occupancy on /v1/stats.
func (s *Server) SetConcurrencyLimiter(limiter *services.ConcurrencyLimiter) {
	s.limiter = limiter
}

// SetToolRegistry exposes the native tool catalog on /v1/tools.
func (s *Server) SetToolRegistry(reg *tools.Registry) {
	s.toolReg = reg
}

// SetCORSOrigins restricts allowed origins. Default allows all.
func (s *Server) SetCORSOrigins(origins []string) {
	s.corsOrigins = origins
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Post("/spec/validate", s.validateDocument)
		r.Post("/spec/compile", s.compileDocument)

		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.createWorkflow)
			r.Get("/", s.listWorkflows)
			r.Get("/{id}", s.getWorkflow)
			r.Put("/{id}", s.updateWorkflow)
			r.Delete("/{id}", s.deleteWorkflow)
			r.Post("/{id}/revisions", s.saveRevision)
			r.Get("/{id}/revisions", s.listRevisions)
			r.Get("/{id}/revisions/latest", s.latestRevision)
		})
		r.Get("/revisions/{id}", s.getRevision)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.createRun)
			r.Get("/", s.listRuns)
			r.Get("/{id}", s.getRun)
			r.Post("/{id}/cancel", s.cancelRun)
			r.Get("/{id}/events", s.listRunEvents)
			r.Get("/{id}/events/stream", s.streamRunEvents)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", s.createSchedule)
			r.Get("/", s.listSchedules)
			r.Delete("/{id}", s.deleteSchedule)
		})

		r.Get("/tools", s.listTools)
		r.Get("/stats", s.getStats)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// listTools returns the tools available to tool nodes.
// GET /v1/tools
func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	if s.toolReg == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}
	respondJSON(w, http.StatusOK, s.toolReg.Infos())
}

// health is the liveness probe.
// GET /v1/health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getStats reports limiter occupancy.
// GET /v1/stats
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if s.limiter != nil {
		resp["concurrency"] = s.limiter.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}
