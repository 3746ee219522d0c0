package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/minseok/weft/internal/dag"
	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondServiceError maps service errors onto HTTP statuses: missing
// ids are 404, invalid documents and uncompilable revisions are 422
// with their issues, everything else is 500.
func respondServiceError(w http.ResponseWriter, err error) {
	var invalid *services.DocumentInvalidError
	var compile *dag.CompileError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.As(err, &invalid):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  invalid.Error(),
			"issues": invalid.Issues,
		})
	case errors.As(err, &compile):
		respondError(w, http.StatusUnprocessableEntity, compile.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// parsePagination extracts limit and offset query parameters. Zero
// limit lets the service apply its own default.
func parsePagination(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
