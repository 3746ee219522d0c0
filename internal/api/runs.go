package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/minseok/weft/internal/services"
	"github.com/minseok/weft/internal/weft"
)

// RunRequest is the JSON body for starting a run.
type RunRequest struct {
	RevisionID string         `json:"revision_id"`
	Inputs     map[string]any `json:"inputs"`
	Tags       []string       `json:"tags"`
	GroupID    string         `json:"group_id"`
}

// createRun queues a run of a revision and returns its id immediately.
// Clients follow progress on GET /v1/runs/{id}/events/stream.
// POST /v1/runs
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RevisionID == "" {
		respondError(w, http.StatusBadRequest, "revision_id is required")
		return
	}

	run, err := s.runSvc.Create(r.Context(), services.CreateRunParams{
		RevisionID: req.RevisionID,
		Inputs:     req.Inputs,
		Tags:       req.Tags,
		GroupID:    req.GroupID,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// listRuns returns runs newest first, optionally filtered.
// GET /v1/runs?workflow_id=&revision_id=&status=&limit=20&offset=0
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 20, 500)
	q := r.URL.Query()

	runs, total, err := s.runSvc.List(r.Context(), weft.RunFilter{
		WorkflowID: q.Get("workflow_id"),
		RevisionID: q.Get("revision_id"),
		Status:     weft.RunStatus(q.Get("status")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []*weft.Run{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}

// getRun returns a single run record.
// GET /v1/runs/{id}
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// cancelRun requests cancellation. The run stops at its next step
// boundary; cancelling a finished run changes nothing. Idempotent.
// POST /v1/runs/{id}/cancel
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	if _, err := s.runSvc.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// listRunEvents returns the persisted trace in ascending seq order.
// GET /v1/runs/{id}/events?limit=&offset=
func (s *Server) listRunEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := 0, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	events, err := s.runSvc.ListEvents(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if events == nil {
		events = []*weft.Event{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
