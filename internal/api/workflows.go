package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minseok/weft/internal/weft"
)

// WorkflowRequest is the JSON body for workflow create and update.
type WorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// createWorkflow makes a new, empty workflow.
// POST /v1/workflows
func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	wf, err := s.workflowSvc.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, wf)
}

// listWorkflows returns workflows ordered by most recently updated.
// GET /v1/workflows?limit=20&offset=0
func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 20, 500)

	workflows, total, err := s.workflowSvc.List(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if workflows == nil {
		workflows = []*weft.Workflow{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"workflows": workflows,
		"total":     total,
	})
}

// getWorkflow returns a single workflow.
// GET /v1/workflows/{id}
func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflowSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

// updateWorkflow renames a workflow or changes its description.
// PUT /v1/workflows/{id}
func (s *Server) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wf, err := s.workflowSvc.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf)
}

// deleteWorkflow removes a workflow and all of its revisions.
// DELETE /v1/workflows/{id}
func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workflowSvc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveRevision validates the posted document and snapshots it as the
// workflow's next revision. Posting an unchanged document returns the
// current head instead of minting a new version.
// POST /v1/workflows/{id}/revisions
func (s *Server) saveRevision(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")

	var doc weft.GraphDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rev, err := s.workflowSvc.SaveRevision(r.Context(), workflowID, doc)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, rev)
}

// listRevisions returns a workflow's revisions, newest version first.
// GET /v1/workflows/{id}/revisions?limit=20&offset=0
func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 20, 500)

	revisions, total, err := s.workflowSvc.ListRevisions(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if revisions == nil {
		revisions = []*weft.Revision{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"revisions": revisions,
		"total":     total,
	})
}

// latestRevision returns the workflow's head revision.
// GET /v1/workflows/{id}/revisions/latest
func (s *Server) latestRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := s.workflowSvc.LatestRevision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rev)
}

// getRevision returns a single revision by id.
// GET /v1/revisions/{id}
func (s *Server) getRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := s.workflowSvc.GetRevision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rev)
}
