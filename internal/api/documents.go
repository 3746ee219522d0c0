package api

import (
	"encoding/json"
	"net/http"

	"github.com/minseok/weft/internal/dag"
	"github.com/minseok/weft/internal/graph"
	"github.com/minseok/weft/internal/weft"
)

// validateDocument checks a graph document and reports every issue
// found. Validation problems are part of the answer, not a failure, so
// the response is always 200.
// POST /v1/spec/validate
func (s *Server) validateDocument(w http.ResponseWriter, r *http.Request) {
	var doc weft.GraphDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	respondJSON(w, http.StatusOK, graph.Validate(doc))
}

// compileDocument validates a document and returns its execution plan.
// POST /v1/spec/compile
func (s *Server) compileDocument(w http.ResponseWriter, r *http.Request) {
	var doc weft.GraphDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := graph.Validate(doc)
	if !res.OK {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "document invalid",
			"issues": res.Issues,
		})
		return
	}

	plan, err := dag.Compile(res.Normalized)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"compiled": plan})
}
