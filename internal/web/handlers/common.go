// Package handlers implements the HTTP API over the identity engine.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

var log = logrus.StandardLogger()

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps engine errors onto HTTP status codes:
// unknown face or person is 404, rejected input is 400 and an operation
// aborted by a running re-cluster is 409. Anything else is a 500.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case identity.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case identity.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case identity.IsConflict(err):
		respondError(w, http.StatusConflict, err.Error())
	default:
		log.Errorf("handler error: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// parseIDParam reads a positive int64 URL parameter. Returns 0 and writes
// a 400 response when the value is missing or not a positive integer.
func parseIDParam(w http.ResponseWriter, r *http.Request, name string) int64 {
	raw := chi.URLParam(r, name)
	if raw == "" {
		respondError(w, http.StatusBadRequest, name+" is required")
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0
	}
	return id
}
