package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minseok/weft/internal/repository"
)

// ScheduleRequest is the JSON body for creating a schedule.
// Enabled defaults to true when omitted.
type ScheduleRequest struct {
	WorkflowID string         `json:"workflow_id"`
	Cron       string         `json:"cron"`
	Inputs     map[string]any `json:"inputs"`
	Enabled    *bool          `json:"enabled"`
}

// createSchedule registers a cron trigger for a workflow.
// POST /v1/schedules
func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkflowID == "" || req.Cron == "" {
		respondError(w, http.StatusBadRequest, "workflow_id and cron are required")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sched, err := s.schedulerSvc.AddSchedule(r.Context(), req.WorkflowID, req.Cron, req.Inputs, enabled)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "workflow not found")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, sched)
}

// listSchedules returns all schedules.
// GET /v1/schedules
func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}

	schedules, err := s.schedulerSvc.ListSchedules(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if schedules == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}

	respondJSON(w, http.StatusOK, schedules)
}

// deleteSchedule unregisters and removes a schedule.
// DELETE /v1/schedules/{id}
func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}

	if err := s.schedulerSvc.RemoveSchedule(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
